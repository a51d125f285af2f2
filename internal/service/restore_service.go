package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/constants"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/utils"
)

// RestoreService 从已成功的etcd快照恢复。
// 恢复异步执行，进度通过恢复记录轮询。
type RestoreService struct {
	restoreRepo  *repository.RestoreRecordRepository
	recordRepo   *repository.BackupRecordRepository
	scheduleRepo *repository.BackupScheduleRepository
	clusterRepo  *repository.ClusterRepository
	vault        *CredentialVault
	remote       RemoteExecutor
	auditSvc     *AuditService
	retryPolicy  utils.RetryPolicy
}

func NewRestoreService(
	restoreRepo *repository.RestoreRecordRepository,
	recordRepo *repository.BackupRecordRepository,
	scheduleRepo *repository.BackupScheduleRepository,
	clusterRepo *repository.ClusterRepository,
	vault *CredentialVault,
	remote RemoteExecutor,
	auditSvc *AuditService,
	retryPolicy utils.RetryPolicy,
) *RestoreService {
	return &RestoreService{
		restoreRepo:  restoreRepo,
		recordRepo:   recordRepo,
		scheduleRepo: scheduleRepo,
		clusterRepo:  clusterRepo,
		vault:        vault,
		remote:       remote,
		auditSvc:     auditSvc,
		retryPolicy:  retryPolicy,
	}
}

// StartRestore 校验备份可用后创建恢复记录并异步执行
func (s *RestoreService) StartRestore(ctx context.Context, clusterID, backupID uuid.UUID, name, startedBy string) (*model.RestoreRecord, error) {
	backup, err := s.recordRepo.GetByID(backupID.String())
	if err != nil {
		return nil, NewValidationError("backup record %s not found", backupID)
	}
	if backup.Status != model.BackupStatusSucceeded {
		return nil, NewValidationError("backup %s is not restorable, status: %s", backupID, backup.Status)
	}
	if backup.BackupType != model.BackupTypeEtcd {
		return nil, NewValidationError("only etcd backups can be restored, got type %s", backup.BackupType)
	}
	if backup.ClusterID != clusterID {
		return nil, NewValidationError("backup %s does not belong to cluster %s", backupID, clusterID)
	}

	schedule, err := s.etcdScheduleFor(clusterID)
	if err != nil {
		return nil, err
	}

	record := &model.RestoreRecord{
		ClusterID: clusterID,
		BackupID:  backupID,
		Name:      name,
		Status:    model.RestoreStatusPending,
	}
	if err := s.restoreRepo.Create(record); err != nil {
		return nil, fmt.Errorf("failed to create restore record: %w", err)
	}

	s.auditSvc.Log(&clusterID, constants.AuditActionRestore, constants.ResourceTypeRestore, startedBy, model.JSONMap{
		"restore_id": record.ID.String(),
		"backup_id":  backupID.String(),
	})

	go s.execute(context.Background(), record, backup, schedule)

	return record, nil
}

func (s *RestoreService) GetRestore(restoreID uuid.UUID) (*model.RestoreRecord, error) {
	return s.restoreRepo.GetByID(restoreID.String())
}

func (s *RestoreService) ListRestores(clusterID uuid.UUID) ([]*model.RestoreRecord, error) {
	return s.restoreRepo.ListByClusterID(clusterID.String())
}

func (s *RestoreService) etcdScheduleFor(clusterID uuid.UUID) (*model.BackupSchedule, error) {
	schedules, err := s.scheduleRepo.ListByClusterID(clusterID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query backup schedules: %w", err)
	}
	for _, schedule := range schedules {
		if schedule.EtcdEndpoints != "" {
			return schedule, nil
		}
	}
	return nil, NewValidationError("no backup schedule with etcd connection parameters for cluster %s", clusterID)
}

// execute 上传快照到etcd节点并执行etcdctl snapshot restore。
// 恢复目录带时间戳，不覆盖现有data-dir，切换交给运维。
func (s *RestoreService) execute(ctx context.Context, record *model.RestoreRecord, backup *model.BackupRecord, schedule *model.BackupSchedule) {
	s.progress(record, model.RestoreStatusRunning, 10)

	var ssh SSHMaterial
	var err error
	if schedule.SSHCredentialID != nil {
		err = s.vault.ResolveByID(*schedule.SSHCredentialID, &ssh)
	} else {
		err = s.vault.Resolve(schedule.ClusterID, model.CredentialKindSSH, &ssh)
	}
	if err != nil {
		s.fail(record, err)
		return
	}

	endpoints := utils.SplitEndpoints(schedule.EtcdEndpoints)
	if len(endpoints) == 0 {
		s.fail(record, NewValidationError("no etcd endpoints configured"))
		return
	}

	host := utils.EndpointHost(endpoints[0])

	var session RemoteSession
	err = utils.Retry(ctx, s.retryPolicy, IsRetryable, func() error {
		var dialErr error
		session, dialErr = s.remote.Dial(ctx, host, ssh)
		return dialErr
	})
	if err != nil {
		s.fail(record, err)
		return
	}
	defer session.Close()

	s.progress(record, model.RestoreStatusRunning, 30)

	stamp := time.Now().Format("20060102-150405")
	remoteSnapshot := fmt.Sprintf("%s/restore-%s.db", constants.RemoteSnapshotDir, stamp)

	if _, err := session.Run(ctx, fmt.Sprintf("mkdir -p %s", constants.RemoteSnapshotDir)); err != nil {
		s.fail(record, err)
		return
	}
	if err := session.Push(backup.ArtifactRef, remoteSnapshot); err != nil {
		s.fail(record, fmt.Errorf("failed to upload snapshot to %s: %w", host, err))
		return
	}

	s.progress(record, model.RestoreStatusRunning, 60)

	dataDir := schedule.EtcdDataDir
	if dataDir == "" {
		dataDir = constants.DefaultEtcdDataDir
	}
	etcdctl := schedule.EtcdctlPath
	if etcdctl == "" {
		etcdctl = constants.DefaultEtcdctlPath
	}
	restoreDir := fmt.Sprintf("%s-restore-%s", dataDir, stamp)

	cmd := fmt.Sprintf("%s snapshot restore %s --data-dir=%s", etcdctl, remoteSnapshot, restoreDir)
	if _, err := session.Run(ctx, cmd); err != nil {
		s.fail(record, err)
		return
	}

	if _, err := session.Run(ctx, fmt.Sprintf("rm -f %s", remoteSnapshot)); err != nil {
		log.Printf("[RESTORE] Failed to clean up %s on %s: %v", remoteSnapshot, host, err)
	}

	now := time.Now()
	record.Status = model.RestoreStatusCompleted
	record.Progress = 100
	record.CompletedAt = &now
	if err := s.restoreRepo.Update(record); err != nil {
		log.Printf("[RESTORE] Failed to finalize restore record %s: %v", record.ID, err)
		return
	}
	log.Printf("[RESTORE] Restore %s completed, data restored to %s on %s", record.ID, restoreDir, host)
}

func (s *RestoreService) progress(record *model.RestoreRecord, status string, progress int) {
	record.Status = status
	record.Progress = progress
	if err := s.restoreRepo.Update(record); err != nil {
		log.Printf("[RESTORE] Failed to update restore record %s: %v", record.ID, err)
	}
}

func (s *RestoreService) fail(record *model.RestoreRecord, cause error) {
	now := time.Now()
	record.Status = model.RestoreStatusFailed
	record.ErrorMessage = cause.Error()
	record.CompletedAt = &now
	if err := s.restoreRepo.Update(record); err != nil {
		log.Printf("[RESTORE] Failed to finalize restore record %s: %v", record.ID, err)
	}
	log.Printf("[RESTORE] Restore %s failed: %v", record.ID, cause)
}
