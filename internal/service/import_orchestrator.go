package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kubeharbor/kubeharbor/internal/constants"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	"gorm.io/gorm"
)

// ClusterProber 探测能力，由ClusterManager实现
type ClusterProber interface {
	ValidateKubeconfig(kubeconfig string) error
	Probe(ctx context.Context, kubeconfig string) (*InspectResult, error)
}

// ProbeEnqueuer 探测任务入队，由工作池实现
type ProbeEnqueuer interface {
	Submit(task func(ctx context.Context)) bool
}

type ImportRequest struct {
	ImportSource    string
	Name            string
	Description     string
	Region          string
	EnvironmentType string
	Kubeconfig      string
	Labels          map[string]string
	ImportedBy      string
}

// ImportOrchestrator 驱动导入状态机 pending → probing → {completed | failed}。
// 提交同步返回，探测在工作池里跑；集群记录只在探测成功时一次性写入。
type ImportOrchestrator struct {
	importRepo  *repository.ImportRecordRepository
	clusterRepo *repository.ClusterRepository
	vault       *CredentialVault
	prober      ClusterProber
	pool        ProbeEnqueuer
	retryPolicy utils.RetryPolicy
	auditSvc    *AuditService
}

func NewImportOrchestrator(
	importRepo *repository.ImportRecordRepository,
	clusterRepo *repository.ClusterRepository,
	vault *CredentialVault,
	prober ClusterProber,
	pool ProbeEnqueuer,
	retryPolicy utils.RetryPolicy,
	auditSvc *AuditService,
) *ImportOrchestrator {
	return &ImportOrchestrator{
		importRepo:  importRepo,
		clusterRepo: clusterRepo,
		vault:       vault,
		prober:      prober,
		pool:        pool,
		retryPolicy: retryPolicy,
		auditSvc:    auditSvc,
	}
}

// SubmitImport 同步校验并登记pending记录，不等待探测
func (o *ImportOrchestrator) SubmitImport(req ImportRequest) (*model.ImportRecord, error) {
	if req.Name == "" {
		return nil, NewValidationError("cluster name is required")
	}
	if err := o.prober.ValidateKubeconfig(req.Kubeconfig); err != nil {
		return nil, err
	}

	// 重名快速失败，不进入probing
	exists, err := o.clusterRepo.ExistsByName(req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check cluster existence: %w", err)
	}
	if exists {
		return nil, NewConflictError("cluster with name '%s' already exists", req.Name)
	}
	active, err := o.importRepo.CountActiveByName(req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check in-flight imports: %w", err)
	}
	if active > 0 {
		return nil, NewConflictError("an import for cluster '%s' is already in progress", req.Name)
	}

	// kubeconfig进凭据库，记录上只留引用
	credential, err := o.vault.StoreUnbound(
		model.CredentialKindKubeconfig,
		constants.CredentialNameKubeconfig,
		&KubeconfigMaterial{Kubeconfig: req.Kubeconfig},
	)
	if err != nil {
		return nil, err
	}

	labels := make(model.JSONMap, len(req.Labels))
	for k, v := range req.Labels {
		labels[k] = v
	}

	importedBy := req.ImportedBy
	if importedBy == "" {
		importedBy = "api-user"
	}

	record := &model.ImportRecord{
		ClusterName:     req.Name,
		ImportSource:    req.ImportSource,
		Status:          model.ImportStatusPending,
		Description:     req.Description,
		Region:          req.Region,
		EnvironmentType: req.EnvironmentType,
		Labels:          labels,
		KubeconfigRef:   credential.ID,
		ImportedBy:      importedBy,
	}

	if err := o.importRepo.Create(record); err != nil {
		return nil, fmt.Errorf("failed to create import record: %w", err)
	}

	log.Printf("[IMPORT] Record %s created for cluster '%s', enqueueing probe", record.ID, req.Name)

	recordID := record.ID.String()
	if !o.pool.Submit(func(ctx context.Context) { o.RunProbe(ctx, recordID) }) {
		// 队列满时退化为独立goroutine，提交永不阻塞调用方
		go o.RunProbe(context.Background(), recordID)
	}

	if o.auditSvc != nil {
		o.auditSvc.Log(nil, constants.AuditActionImport, constants.ResourceTypeCluster, importedBy, model.JSONMap{
			"import_id":     record.ID.String(),
			"import_source": req.ImportSource,
			"name":          req.Name,
		})
	}

	return record, nil
}

// RunProbe 执行一次探测；终态记录直接跳过，可安全重入
func (o *ImportOrchestrator) RunProbe(ctx context.Context, recordID string) {
	record, err := o.importRepo.GetByID(recordID)
	if err != nil {
		log.Printf("[IMPORT] Failed to load record %s: %v", recordID, err)
		return
	}
	if record.Status != model.ImportStatusPending {
		return
	}

	record.Status = model.ImportStatusProbing
	if err := o.importRepo.Update(record); err != nil {
		log.Printf("[IMPORT] Failed to mark record %s probing: %v", recordID, err)
		return
	}

	var material KubeconfigMaterial
	if err := o.vault.ResolveByID(record.KubeconfigRef, &material); err != nil {
		o.markFailed(record, err)
		return
	}

	// 瞬时网络错误有界重试，证书/格式错误立即失败
	var result *InspectResult
	err = utils.Retry(ctx, o.retryPolicy, IsRetryable, func() error {
		var probeErr error
		result, probeErr = o.prober.Probe(ctx, material.Kubeconfig)
		return probeErr
	})
	if err != nil {
		o.markFailed(record, err)
		return
	}

	if err := o.complete(record, result); err != nil {
		o.markFailed(record, err)
		return
	}

	log.Printf("[IMPORT] Record %s completed, cluster '%s' is ready", record.ID, record.ClusterName)
}

// complete 建档集群并落记录终态，单事务内全有或全无
func (o *ImportOrchestrator) complete(record *model.ImportRecord, result *InspectResult) error {
	now := time.Now()

	return o.clusterRepo.DB().Transaction(func(tx *gorm.DB) error {
		cluster := &model.Cluster{
			Name:                record.ClusterName,
			Description:         record.Description,
			Region:              record.Region,
			EnvironmentType:     record.EnvironmentType,
			ImportSource:        record.ImportSource,
			Status:              model.ClusterStatusReady,
			Labels:              record.Labels,
			KubeconfigRef:       record.KubeconfigRef,
			APIServerURL:        result.APIServerURL,
			KubernetesVersion:   result.Version,
			NodeCount:           result.NodeCount,
			CPUUsagePercent:     result.CPUUsagePercent,
			MemoryUsagePercent:  result.MemoryUsagePercent,
			StorageUsagePercent: result.StorageUsagePercent,
			LastProbedAt:        &now,
			CreatedBy:           record.ImportedBy,
		}

		if err := o.clusterRepo.CreateTx(tx, cluster); err != nil {
			return fmt.Errorf("failed to create cluster: %w", err)
		}

		if err := o.vault.BindCluster(tx, record.KubeconfigRef, cluster.ID); err != nil {
			return fmt.Errorf("failed to bind kubeconfig credential: %w", err)
		}

		record.ClusterID = &cluster.ID
		record.Status = model.ImportStatusCompleted
		record.CompletedAt = &now
		return o.importRepo.UpdateTx(tx, record)
	})
}

func (o *ImportOrchestrator) markFailed(record *model.ImportRecord, cause error) {
	if record.IsTerminal() {
		return
	}

	now := time.Now()
	record.Status = model.ImportStatusFailed
	record.ErrorMessage = cause.Error()
	record.CompletedAt = &now
	record.ClusterID = nil

	if err := o.importRepo.Update(record); err != nil {
		log.Printf("[IMPORT] Failed to mark record %s failed: %v", record.ID, err)
		return
	}

	log.Printf("[IMPORT] Record %s failed: %v", record.ID, cause)
}

// GetImportStatus 幂等查询，可反复轮询
func (o *ImportOrchestrator) GetImportStatus(importID string) (*model.ImportRecord, error) {
	return o.importRepo.GetByID(importID)
}

func (o *ImportOrchestrator) ListImports(importSource, status string) ([]*model.ImportRecord, int64, error) {
	return o.importRepo.List(importSource, status)
}
