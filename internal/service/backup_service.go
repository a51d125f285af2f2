package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/constants"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/robfig/cron/v3"
)

// BackupService 备份计划的增删改查与备份记录管理。
// SSH口令不落计划表，入库前先进凭据库，计划上只留引用。
type BackupService struct {
	scheduleRepo *repository.BackupScheduleRepository
	recordRepo   *repository.BackupRecordRepository
	clusterRepo  *repository.ClusterRepository
	vault        *CredentialVault
	storage      *BackupStorage
	auditSvc     *AuditService
}

func NewBackupService(
	scheduleRepo *repository.BackupScheduleRepository,
	recordRepo *repository.BackupRecordRepository,
	clusterRepo *repository.ClusterRepository,
	vault *CredentialVault,
	storage *BackupStorage,
	auditSvc *AuditService,
) *BackupService {
	return &BackupService{
		scheduleRepo: scheduleRepo,
		recordRepo:   recordRepo,
		clusterRepo:  clusterRepo,
		vault:        vault,
		storage:      storage,
		auditSvc:     auditSvc,
	}
}

// ScheduleRequest 创建或更新备份计划的入参
type ScheduleRequest struct {
	Name               string `json:"name" binding:"required"`
	CronExpr           string `json:"cron_expr" binding:"required"`
	Timezone           string `json:"timezone"`
	BackupType         string `json:"backup_type" binding:"required"`
	RetentionDays      int    `json:"retention_days"`
	Enabled            *bool  `json:"enabled"`
	EtcdEndpoints      string `json:"etcd_endpoints"`
	EtcdCACert         string `json:"etcd_ca_cert"`
	EtcdCert           string `json:"etcd_cert"`
	EtcdKey            string `json:"etcd_key"`
	EtcdDataDir        string `json:"etcd_data_dir"`
	EtcdctlPath        string `json:"etcdctl_path"`
	EtcdDeploymentType string `json:"etcd_deployment_type"`
	K8sDeploymentType  string `json:"k8s_deployment_type"`
	SSHUsername        string `json:"ssh_username"`
	SSHPassword        string `json:"ssh_password"`
	SSHPrivateKey      string `json:"ssh_private_key"`
}

func (s *BackupService) validateScheduleRequest(req *ScheduleRequest) error {
	if _, err := cron.ParseStandard(req.CronExpr); err != nil {
		return NewValidationError("invalid cron expression %q: %v", req.CronExpr, err)
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return NewValidationError("invalid timezone %q: %v", req.Timezone, err)
		}
	}
	switch req.BackupType {
	case model.BackupTypeEtcd, model.BackupTypeCluster:
	default:
		return NewValidationError("unsupported backup type: %s", req.BackupType)
	}
	if req.RetentionDays < 0 {
		return NewValidationError("retention_days must not be negative")
	}
	if req.BackupType == model.BackupTypeEtcd && req.EtcdEndpoints == "" {
		return NewValidationError("etcd_endpoints is required for etcd backup schedules")
	}
	return nil
}

// CreateSchedule 新建备份计划
func (s *BackupService) CreateSchedule(clusterID uuid.UUID, req *ScheduleRequest, createdBy string) (*model.BackupSchedule, error) {
	if err := s.validateScheduleRequest(req); err != nil {
		return nil, err
	}

	cluster, err := s.clusterRepo.GetByID(clusterID.String())
	if err != nil {
		return nil, NewValidationError("cluster %s not found", clusterID)
	}

	schedule := &model.BackupSchedule{
		ClusterID:          cluster.ID,
		Name:               req.Name,
		CronExpr:           req.CronExpr,
		Timezone:           req.Timezone,
		BackupType:         req.BackupType,
		RetentionDays:      req.RetentionDays,
		Enabled:            true,
		EtcdEndpoints:      req.EtcdEndpoints,
		EtcdCACert:         req.EtcdCACert,
		EtcdCert:           req.EtcdCert,
		EtcdKey:            req.EtcdKey,
		EtcdDataDir:        req.EtcdDataDir,
		EtcdctlPath:        req.EtcdctlPath,
		EtcdDeploymentType: req.EtcdDeploymentType,
		K8sDeploymentType:  req.K8sDeploymentType,
		CreatedBy:          createdBy,
	}
	if schedule.Timezone == "" {
		schedule.Timezone = constants.DefaultTimezone
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}

	if req.SSHUsername != "" {
		credID, err := s.storeSSHCredential(cluster.ID, req)
		if err != nil {
			return nil, err
		}
		schedule.SSHCredentialID = &credID
	}

	if err := s.scheduleRepo.Create(schedule); err != nil {
		return nil, fmt.Errorf("failed to create backup schedule: %w", err)
	}

	s.auditSvc.Log(&cluster.ID, constants.AuditActionScheduleCreate, constants.ResourceTypeSchedule, createdBy, model.JSONMap{
		"schedule_id": schedule.ID.String(),
		"name":        schedule.Name,
		"cron_expr":   schedule.CronExpr,
	})

	return schedule, nil
}

// UpdateSchedule 更新备份计划；修改cron表达式或时区影响下一次触发的计算
func (s *BackupService) UpdateSchedule(scheduleID uuid.UUID, req *ScheduleRequest, updatedBy string) (*model.BackupSchedule, error) {
	if err := s.validateScheduleRequest(req); err != nil {
		return nil, err
	}

	schedule, err := s.scheduleRepo.GetByID(scheduleID.String())
	if err != nil {
		return nil, NewValidationError("backup schedule %s not found", scheduleID)
	}

	schedule.Name = req.Name
	schedule.CronExpr = req.CronExpr
	if req.Timezone != "" {
		schedule.Timezone = req.Timezone
	}
	schedule.BackupType = req.BackupType
	schedule.RetentionDays = req.RetentionDays
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}
	schedule.EtcdEndpoints = req.EtcdEndpoints
	schedule.EtcdCACert = req.EtcdCACert
	schedule.EtcdCert = req.EtcdCert
	schedule.EtcdKey = req.EtcdKey
	schedule.EtcdDataDir = req.EtcdDataDir
	schedule.EtcdctlPath = req.EtcdctlPath
	schedule.EtcdDeploymentType = req.EtcdDeploymentType
	schedule.K8sDeploymentType = req.K8sDeploymentType

	if req.SSHUsername != "" {
		credID, err := s.storeSSHCredential(schedule.ClusterID, req)
		if err != nil {
			return nil, err
		}
		schedule.SSHCredentialID = &credID
	}

	if err := s.scheduleRepo.Update(schedule); err != nil {
		return nil, fmt.Errorf("failed to update backup schedule: %w", err)
	}

	s.auditSvc.Log(&schedule.ClusterID, constants.AuditActionScheduleUpdate, constants.ResourceTypeSchedule, updatedBy, model.JSONMap{
		"schedule_id": schedule.ID.String(),
		"enabled":     schedule.Enabled,
	})

	return schedule, nil
}

func (s *BackupService) storeSSHCredential(clusterID uuid.UUID, req *ScheduleRequest) (uuid.UUID, error) {
	material := SSHMaterial{
		Username:   req.SSHUsername,
		Password:   req.SSHPassword,
		PrivateKey: req.SSHPrivateKey,
	}
	cred, err := s.vault.Store(clusterID, model.CredentialKindSSH, constants.CredentialNameSSH, material)
	if err != nil {
		return uuid.Nil, err
	}
	return cred.ID, nil
}

// SetEnabled 启停计划；停用只拦住后续触发，已在跑的运行不受影响
func (s *BackupService) SetEnabled(scheduleID uuid.UUID, enabled bool, updatedBy string) (*model.BackupSchedule, error) {
	schedule, err := s.scheduleRepo.GetByID(scheduleID.String())
	if err != nil {
		return nil, NewValidationError("backup schedule %s not found", scheduleID)
	}

	schedule.Enabled = enabled
	if err := s.scheduleRepo.Update(schedule); err != nil {
		return nil, fmt.Errorf("failed to update backup schedule: %w", err)
	}

	s.auditSvc.Log(&schedule.ClusterID, constants.AuditActionScheduleUpdate, constants.ResourceTypeSchedule, updatedBy, model.JSONMap{
		"schedule_id": schedule.ID.String(),
		"enabled":     enabled,
	})

	return schedule, nil
}

func (s *BackupService) GetSchedule(scheduleID uuid.UUID) (*model.BackupSchedule, error) {
	return s.scheduleRepo.GetByID(scheduleID.String())
}

func (s *BackupService) ListSchedules(clusterID uuid.UUID) ([]*model.BackupSchedule, error) {
	return s.scheduleRepo.ListByClusterID(clusterID.String())
}

// DeleteSchedule 删除计划；历史备份记录与产物保留
func (s *BackupService) DeleteSchedule(scheduleID uuid.UUID, deletedBy string) error {
	schedule, err := s.scheduleRepo.GetByID(scheduleID.String())
	if err != nil {
		return NewValidationError("backup schedule %s not found", scheduleID)
	}

	if err := s.scheduleRepo.Delete(scheduleID.String()); err != nil {
		return fmt.Errorf("failed to delete backup schedule: %w", err)
	}

	s.auditSvc.Log(&schedule.ClusterID, constants.AuditActionScheduleDelete, constants.ResourceTypeSchedule, deletedBy, model.JSONMap{
		"schedule_id": schedule.ID.String(),
		"name":        schedule.Name,
	})

	return nil
}

func (s *BackupService) GetRecord(recordID uuid.UUID) (*model.BackupRecord, error) {
	return s.recordRepo.GetByID(recordID.String())
}

func (s *BackupService) ListRecords(clusterID uuid.UUID, backupType, status string, page, limit int) ([]*model.BackupRecord, int64, error) {
	return s.recordRepo.List(clusterID.String(), backupType, status, page, limit)
}

// DeleteRecord 删除备份记录及其产物；运行中的记录不可删
func (s *BackupService) DeleteRecord(recordID uuid.UUID, deletedBy string) error {
	record, err := s.recordRepo.GetByID(recordID.String())
	if err != nil {
		return NewValidationError("backup record %s not found", recordID)
	}
	if record.Status == model.BackupStatusRunning {
		return NewConflictError("backup record %s is still running", recordID)
	}

	if record.ArtifactRef != "" {
		if err := s.storage.RemoveArtifact(record.ArtifactRef); err != nil {
			return fmt.Errorf("failed to remove backup artifact: %w", err)
		}
	}

	if err := s.recordRepo.Delete(recordID.String()); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}

	s.auditSvc.Log(&record.ClusterID, constants.AuditActionDelete, constants.ResourceTypeBackup, deletedBy, model.JSONMap{
		"record_id": record.ID.String(),
		"name":      record.Name,
	})

	return nil
}
