package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	pkgutils "github.com/kubeharbor/kubeharbor/pkg/utils"
)

type BackupHandler struct {
	backupService  *service.BackupService
	executor       *service.BackupExecutor
	restoreService *service.RestoreService
}

func NewBackupHandler(
	backupService *service.BackupService,
	executor *service.BackupExecutor,
	restoreService *service.RestoreService,
) *BackupHandler {
	return &BackupHandler{
		backupService:  backupService,
		executor:       executor,
		restoreService: restoreService,
	}
}

// CreateSchedule 新建备份计划
// POST /api/v1/clusters/:clusterId/backup-schedules
func (h *BackupHandler) CreateSchedule(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	schedule, err := h.backupService.CreateSchedule(clusterID, &req, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusCreated, schedule)
}

// ListSchedules 列出集群的备份计划
// GET /api/v1/clusters/:clusterId/backup-schedules
func (h *BackupHandler) ListSchedules(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	schedules, err := h.backupService.ListSchedules(clusterID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{"schedules": schedules})
}

// GetSchedule 查询单个备份计划
// GET /api/v1/backup-schedules/:scheduleId
func (h *BackupHandler) GetSchedule(c *gin.Context) {
	scheduleID, err := utils.ParseUUID(c.Param("scheduleId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid schedule id: %s", c.Param("scheduleId"))
		return
	}

	schedule, err := h.backupService.GetSchedule(scheduleID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, schedule)
}

// UpdateSchedule 更新备份计划
// PUT /api/v1/backup-schedules/:scheduleId
func (h *BackupHandler) UpdateSchedule(c *gin.Context) {
	scheduleID, err := utils.ParseUUID(c.Param("scheduleId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid schedule id: %s", c.Param("scheduleId"))
		return
	}

	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	schedule, err := h.backupService.UpdateSchedule(scheduleID, &req, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, schedule)
}

type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetScheduleEnabled 启停备份计划
// PATCH /api/v1/backup-schedules/:scheduleId/enabled
func (h *BackupHandler) SetScheduleEnabled(c *gin.Context) {
	scheduleID, err := utils.ParseUUID(c.Param("scheduleId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid schedule id: %s", c.Param("scheduleId"))
		return
	}

	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	schedule, err := h.backupService.SetEnabled(scheduleID, *req.Enabled, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, schedule)
}

// DeleteSchedule 删除备份计划
// DELETE /api/v1/backup-schedules/:scheduleId
func (h *BackupHandler) DeleteSchedule(c *gin.Context) {
	scheduleID, err := utils.ParseUUID(c.Param("scheduleId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid schedule id: %s", c.Param("scheduleId"))
		return
	}

	if err := h.backupService.DeleteSchedule(scheduleID, actor(c)); err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type TriggerBackupRequest struct {
	Name       string `json:"name" binding:"required,min=1,max=255"`
	BackupType string `json:"backup_type" binding:"required,oneof=etcd cluster"`
}

// TriggerBackup 手动触发一次备份，同步返回running记录
// POST /api/v1/clusters/:clusterId/backups
func (h *BackupHandler) TriggerBackup(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	var req TriggerBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	record, err := h.executor.RunAdhoc(c.Request.Context(), clusterID, req.Name, req.BackupType, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusAccepted, record)
}

// ListBackups 按类型与状态过滤备份记录
// GET /api/v1/clusters/:clusterId/backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	page := utils.ParseInt(c.DefaultQuery("page", "1"), 1)
	limit := utils.ParseInt(c.DefaultQuery("limit", "20"), 20)

	records, total, err := h.backupService.ListRecords(clusterID, c.Query("backup_type"), c.Query("status"), page, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{
		"backups": records,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// GetBackup 查询单条备份记录
// GET /api/v1/backups/:backupId
func (h *BackupHandler) GetBackup(c *gin.Context) {
	backupID, err := utils.ParseUUID(c.Param("backupId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid backup id: %s", c.Param("backupId"))
		return
	}

	record, err := h.backupService.GetRecord(backupID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, record)
}

// DeleteBackup 删除备份记录及产物
// DELETE /api/v1/backups/:backupId
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	backupID, err := utils.ParseUUID(c.Param("backupId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid backup id: %s", c.Param("backupId"))
		return
	}

	if err := h.backupService.DeleteRecord(backupID, actor(c)); err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type RestoreRequest struct {
	BackupID string `json:"backup_id" binding:"required,uuid"`
	Name     string `json:"name" binding:"required,min=1,max=255"`
}

// StartRestore 从etcd快照发起恢复
// POST /api/v1/clusters/:clusterId/restores
func (h *BackupHandler) StartRestore(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	backupID, err := utils.ParseUUID(req.BackupID)
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid backup id: %s", req.BackupID)
		return
	}

	record, err := h.restoreService.StartRestore(c.Request.Context(), clusterID, backupID, req.Name, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusAccepted, record)
}

// GetRestore 查询恢复进度
// GET /api/v1/restores/:restoreId
func (h *BackupHandler) GetRestore(c *gin.Context) {
	restoreID, err := utils.ParseUUID(c.Param("restoreId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid restore id: %s", c.Param("restoreId"))
		return
	}

	record, err := h.restoreService.GetRestore(restoreID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, record)
}

// ListRestores 列出集群的恢复记录
// GET /api/v1/clusters/:clusterId/restores
func (h *BackupHandler) ListRestores(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	records, err := h.restoreService.ListRestores(clusterID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{"restores": records})
}
