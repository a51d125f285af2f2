package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	pkgutils "github.com/kubeharbor/kubeharbor/pkg/utils"
)

type ImportHandler struct {
	orchestrator *service.ImportOrchestrator
}

func NewImportHandler(orchestrator *service.ImportOrchestrator) *ImportHandler {
	return &ImportHandler{orchestrator: orchestrator}
}

type ImportClusterRequest struct {
	ImportSource    string            `json:"import_source" binding:"required,oneof=kubeconfig rancher"`
	Name            string            `json:"name" binding:"required,min=1,max=255"`
	Description     string            `json:"description" binding:"omitempty,max=1000"`
	Region          string            `json:"region" binding:"omitempty,max=100"`
	EnvironmentType string            `json:"environment_type" binding:"omitempty,oneof=production staging development test"`
	Kubeconfig      string            `json:"kubeconfig" binding:"required"`
	Labels          map[string]string `json:"labels"`
}

// SubmitImport 提交导入请求，同步返回pending的导入记录
// POST /api/v1/clusters/import
func (h *ImportHandler) SubmitImport(c *gin.Context) {
	var req ImportClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	record, err := h.orchestrator.SubmitImport(service.ImportRequest{
		ImportSource:    req.ImportSource,
		Name:            req.Name,
		Description:     req.Description,
		Region:          req.Region,
		EnvironmentType: req.EnvironmentType,
		Kubeconfig:      req.Kubeconfig,
		Labels:          req.Labels,
		ImportedBy:      actor(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusAccepted, record)
}

// GetImportStatus 查询单条导入记录
// GET /api/v1/imports/:importId/status
func (h *ImportHandler) GetImportStatus(c *gin.Context) {
	importID := c.Param("importId")
	if _, err := utils.ParseUUID(importID); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid import id: %s", importID)
		return
	}

	record, err := h.orchestrator.GetImportStatus(importID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, record)
}

// ListImports 按来源与状态过滤导入记录
// GET /api/v1/clusters/imports
func (h *ImportHandler) ListImports(c *gin.Context) {
	importSource := c.Query("import_source")
	status := c.Query("status")

	records, total, err := h.orchestrator.ListImports(importSource, status)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{
		"imports": records,
		"total":   total,
	})
}
