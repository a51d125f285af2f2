package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/constants"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	"k8s.io/client-go/kubernetes"
)

// ClientProvider kubeconfig到clientset
type ClientProvider interface {
	GetClient(kubeconfig string) (kubernetes.Interface, error)
}

// EtcdBackupParams 一次etcd快照所需的全部参数。
// 证书路径指etcd节点上的文件，SSH材料来自凭据库。
type EtcdBackupParams struct {
	Endpoints   []string
	CACert      string
	Cert        string
	Key         string
	DataDir     string
	EtcdctlPath string
	SSH         SSHMaterial
}

// BackupExecutor 执行单次备份运行。
// 运行一开始就落一条running记录，崩溃留下可见的卡住状态而不是悄悄丢失；
// 结束时原子落终态。手动与计划各占一条在途通道，互不阻塞。
type BackupExecutor struct {
	recordRepo   *repository.BackupRecordRepository
	scheduleRepo *repository.BackupScheduleRepository
	clusterRepo  *repository.ClusterRepository
	vault        *CredentialVault
	remote       RemoteExecutor
	storage      *BackupStorage
	clients      ClientProvider
	retryPolicy  utils.RetryPolicy

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewBackupExecutor(
	recordRepo *repository.BackupRecordRepository,
	scheduleRepo *repository.BackupScheduleRepository,
	clusterRepo *repository.ClusterRepository,
	vault *CredentialVault,
	remote RemoteExecutor,
	storage *BackupStorage,
	clients ClientProvider,
	retryPolicy utils.RetryPolicy,
) *BackupExecutor {
	return &BackupExecutor{
		recordRepo:   recordRepo,
		scheduleRepo: scheduleRepo,
		clusterRepo:  clusterRepo,
		vault:        vault,
		remote:       remote,
		storage:      storage,
		clients:      clients,
		retryPolicy:  retryPolicy,
		inflight:     make(map[string]struct{}),
	}
}

func scheduleLane(scheduleID uuid.UUID) string {
	return "schedule:" + scheduleID.String()
}

func adhocLane(clusterID uuid.UUID, backupType string) string {
	return "adhoc:" + clusterID.String() + ":" + backupType
}

func (e *BackupExecutor) tryAcquire(lane string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[lane]; busy {
		return false
	}
	e.inflight[lane] = struct{}{}
	return true
}

func (e *BackupExecutor) release(lane string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, lane)
}

// ScheduleBusy 调度器触发前的跳过判断：内存在途或库里还有running记录
func (e *BackupExecutor) ScheduleBusy(scheduleID uuid.UUID) bool {
	e.mu.Lock()
	_, busy := e.inflight[scheduleLane(scheduleID)]
	e.mu.Unlock()
	if busy {
		return true
	}

	count, err := e.recordRepo.CountRunningBySchedule(scheduleID)
	if err != nil {
		log.Printf("[BACKUP] Failed to count running records for schedule %s: %v", scheduleID, err)
		return true
	}
	return count > 0
}

// RunScheduled 执行计划触发的一次运行；该计划已有在途运行时拒绝（跳过而非排队）
func (e *BackupExecutor) RunScheduled(ctx context.Context, schedule *model.BackupSchedule) (*model.BackupRecord, error) {
	lane := scheduleLane(schedule.ID)
	if !e.tryAcquire(lane) {
		return nil, NewConflictError("schedule %s already has a run in flight", schedule.ID)
	}
	defer e.release(lane)

	name := fmt.Sprintf("%s-%s", schedule.Name, time.Now().Format("20060102-150405"))
	record, err := e.openRecord(schedule.ClusterID, &schedule.ID, name, schedule.BackupType, "scheduler")
	if err != nil {
		return nil, err
	}

	e.execute(ctx, record, schedule)
	return record, nil
}

// RunAdhoc 手动备份；etcd参数沿用该集群已配置的备份计划
func (e *BackupExecutor) RunAdhoc(ctx context.Context, clusterID uuid.UUID, name, backupType, createdBy string) (*model.BackupRecord, error) {
	switch backupType {
	case model.BackupTypeEtcd, model.BackupTypeCluster:
	default:
		return nil, NewValidationError("unsupported backup type: %s", backupType)
	}

	lane := adhocLane(clusterID, backupType)
	if !e.tryAcquire(lane) {
		return nil, NewConflictError("an ad-hoc %s backup for cluster %s is already running", backupType, clusterID)
	}

	count, err := e.recordRepo.CountRunningAdhoc(clusterID, backupType)
	if err != nil {
		e.release(lane)
		return nil, err
	}
	if count > 0 {
		e.release(lane)
		return nil, NewConflictError("an ad-hoc %s backup for cluster %s is already running", backupType, clusterID)
	}

	var schedule *model.BackupSchedule
	if backupType == model.BackupTypeEtcd {
		schedule, err = e.etcdScheduleFor(clusterID)
		if err != nil {
			e.release(lane)
			return nil, err
		}
	}

	record, err := e.openRecord(clusterID, nil, name, backupType, createdBy)
	if err != nil {
		e.release(lane)
		return nil, err
	}

	go func() {
		defer e.release(lane)
		e.execute(context.Background(), record, schedule)
	}()

	return record, nil
}

// etcdScheduleFor 取该集群携带etcd连接参数的计划
func (e *BackupExecutor) etcdScheduleFor(clusterID uuid.UUID) (*model.BackupSchedule, error) {
	schedules, err := e.scheduleRepo.ListByClusterID(clusterID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query backup schedules: %w", err)
	}
	for _, s := range schedules {
		if s.EtcdEndpoints != "" {
			return s, nil
		}
	}
	return nil, NewValidationError("no backup schedule with etcd connection parameters for cluster %s", clusterID)
}

func (e *BackupExecutor) openRecord(clusterID uuid.UUID, scheduleID *uuid.UUID, name, backupType, createdBy string) (*model.BackupRecord, error) {
	record := &model.BackupRecord{
		ClusterID:  clusterID,
		ScheduleID: scheduleID,
		Name:       name,
		BackupType: backupType,
		Status:     model.BackupStatusRunning,
		CreatedBy:  createdBy,
	}
	if err := e.recordRepo.Create(record); err != nil {
		return nil, fmt.Errorf("failed to create backup record: %w", err)
	}
	return record, nil
}

// execute 跑驱动并落终态；schedule为nil时按集群类型备份
func (e *BackupExecutor) execute(ctx context.Context, record *model.BackupRecord, schedule *model.BackupSchedule) {
	var artifactRef string
	var sizeBytes int64
	var runErr error

	switch record.BackupType {
	case model.BackupTypeEtcd:
		artifactRef, sizeBytes, runErr = e.runEtcd(ctx, record, schedule)
	case model.BackupTypeCluster:
		artifactRef, sizeBytes, runErr = e.runCluster(ctx, record)
	default:
		runErr = NewValidationError("unsupported backup type: %s", record.BackupType)
	}

	now := time.Now()
	record.CompletedAt = &now
	if runErr != nil {
		record.Status = model.BackupStatusFailed
		record.ErrorMessage = runErr.Error()
		log.Printf("[BACKUP] Run %s failed: %v", record.ID, runErr)
	} else {
		record.Status = model.BackupStatusSucceeded
		record.ArtifactRef = artifactRef
		record.SizeBytes = sizeBytes
		log.Printf("[BACKUP] Run %s succeeded, artifact %s (%d bytes)", record.ID, artifactRef, sizeBytes)
	}

	if err := e.recordRepo.Update(record); err != nil {
		log.Printf("[BACKUP] Failed to finalize record %s: %v", record.ID, err)
		return
	}

	if runErr == nil {
		if cluster, err := e.clusterRepo.GetByID(record.ClusterID.String()); err == nil {
			cluster.LastBackupAt = &now
			if err := e.clusterRepo.Update(cluster); err != nil {
				log.Printf("[BACKUP] Failed to update last_backup_at for cluster %s: %v", cluster.ID, err)
			}
		}
	}
}

// runEtcd 依次尝试各endpoint，跳过不可达的；全部不可达才失败，
// 错误信息逐个列出每个endpoint的失败原因。
func (e *BackupExecutor) runEtcd(ctx context.Context, record *model.BackupRecord, schedule *model.BackupSchedule) (string, int64, error) {
	if schedule == nil {
		return "", 0, NewValidationError("etcd backup requires schedule connection parameters")
	}

	params, err := e.etcdParams(schedule)
	if err != nil {
		return "", 0, err
	}

	runPath, err := e.storage.CreateRunDirectory(record.ClusterID.String(), record.Name)
	if err != nil {
		return "", 0, err
	}

	snapshotPath := filepath.Join(runPath, "etcd.snapshot")

	var failures []string
	for _, endpoint := range params.Endpoints {
		artifact, size, err := e.snapshotEndpoint(ctx, endpoint, params, snapshotPath)
		if err == nil {
			return artifact, size, nil
		}

		if IsCredential(err) {
			// 换endpoint也救不了坏凭据
			return "", 0, err
		}

		log.Printf("[ETCD-BACKUP] Endpoint %s failed: %v", endpoint, err)
		failures = append(failures, fmt.Sprintf("%s: %v", endpoint, err))
	}

	if len(failures) == 0 {
		return "", 0, NewValidationError("no etcd endpoints configured")
	}
	return "", 0, fmt.Errorf("all etcd endpoints unreachable: %s", strings.Join(failures, "; "))
}

// snapshotEndpoint SSH到endpoint所在节点执行etcdctl并取回快照
func (e *BackupExecutor) snapshotEndpoint(ctx context.Context, endpoint string, params *EtcdBackupParams, snapshotPath string) (string, int64, error) {
	host := utils.EndpointHost(endpoint)

	var session RemoteSession
	err := utils.Retry(ctx, e.retryPolicy, IsRetryable, func() error {
		var dialErr error
		session, dialErr = e.remote.Dial(ctx, host, params.SSH)
		return dialErr
	})
	if err != nil {
		return "", 0, err
	}
	defer session.Close()

	remoteFile := fmt.Sprintf("%s/etcd-snapshot-%s.db", constants.RemoteSnapshotDir, time.Now().Format("20060102-150405"))

	if _, err := session.Run(ctx, fmt.Sprintf("mkdir -p %s", constants.RemoteSnapshotDir)); err != nil {
		return "", 0, err
	}

	cmd := fmt.Sprintf("%s --endpoints=%s --cacert=%s --cert=%s --key=%s snapshot save %s",
		params.EtcdctlPath, endpoint, params.CACert, params.Cert, params.Key, remoteFile)
	if _, err := session.Run(ctx, cmd); err != nil {
		return "", 0, err
	}

	if err := session.Fetch(remoteFile, snapshotPath); err != nil {
		return "", 0, fmt.Errorf("failed to download snapshot from %s: %w", host, err)
	}

	// 远端临时文件清理失败不影响本次运行
	if _, err := session.Run(ctx, fmt.Sprintf("rm -f %s", remoteFile)); err != nil {
		log.Printf("[ETCD-BACKUP] Failed to clean up %s on %s: %v", remoteFile, host, err)
	}

	size, err := e.storage.FileSize(snapshotPath)
	if err != nil {
		return "", 0, fmt.Errorf("snapshot file was not created at %s: %w", snapshotPath, err)
	}

	return snapshotPath, size, nil
}

func (e *BackupExecutor) etcdParams(schedule *model.BackupSchedule) (*EtcdBackupParams, error) {
	if schedule.EtcdEndpoints == "" {
		return nil, NewValidationError("etcd_endpoints not set in backup schedule %s", schedule.ID)
	}
	if schedule.EtcdCACert == "" || schedule.EtcdCert == "" || schedule.EtcdKey == "" {
		return nil, NewValidationError("etcd certificate paths not set in backup schedule %s", schedule.ID)
	}

	var ssh SSHMaterial
	if schedule.SSHCredentialID != nil {
		if err := e.vault.ResolveByID(*schedule.SSHCredentialID, &ssh); err != nil {
			return nil, err
		}
	} else if err := e.vault.Resolve(schedule.ClusterID, model.CredentialKindSSH, &ssh); err != nil {
		return nil, err
	}

	dataDir := schedule.EtcdDataDir
	if dataDir == "" {
		dataDir = constants.DefaultEtcdDataDir
	}
	etcdctl := schedule.EtcdctlPath
	if etcdctl == "" {
		etcdctl = constants.DefaultEtcdctlPath
	}

	return &EtcdBackupParams{
		Endpoints:   utils.SplitEndpoints(schedule.EtcdEndpoints),
		CACert:      schedule.EtcdCACert,
		Cert:        schedule.EtcdCert,
		Key:         schedule.EtcdKey,
		DataDir:     dataDir,
		EtcdctlPath: etcdctl,
		SSH:         ssh,
	}, nil
}

// runCluster 通过集群API做整群资源导出，不走SSH
func (e *BackupExecutor) runCluster(ctx context.Context, record *model.BackupRecord) (string, int64, error) {
	var material KubeconfigMaterial
	if err := e.vault.Resolve(record.ClusterID, model.CredentialKindKubeconfig, &material); err != nil {
		return "", 0, err
	}

	clientset, err := e.clients.GetClient(material.Kubeconfig)
	if err != nil {
		return "", 0, err
	}

	runPath, err := e.storage.CreateRunDirectory(record.ClusterID.String(), record.Name)
	if err != nil {
		return "", 0, err
	}

	dumper := NewResourceDumper(clientset)
	if err := dumper.Dump(ctx, runPath); err != nil {
		return "", 0, err
	}

	artifact, size, err := e.storage.Compress(runPath)
	if err != nil {
		return "", 0, err
	}
	e.storage.RemoveDirectory(runPath)

	return artifact, size, nil
}
