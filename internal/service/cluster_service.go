package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/constants"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
)

// ClusterService 集群台账的查询与删除
type ClusterService struct {
	clusterRepo  *repository.ClusterRepository
	scheduleRepo *repository.BackupScheduleRepository
	auditSvc     *AuditService
}

func NewClusterService(
	clusterRepo *repository.ClusterRepository,
	scheduleRepo *repository.BackupScheduleRepository,
	auditSvc *AuditService,
) *ClusterService {
	return &ClusterService{
		clusterRepo:  clusterRepo,
		scheduleRepo: scheduleRepo,
		auditSvc:     auditSvc,
	}
}

func (s *ClusterService) GetCluster(clusterID uuid.UUID) (*model.Cluster, error) {
	cluster, err := s.clusterRepo.GetByID(clusterID.String())
	if err != nil {
		return nil, NewValidationError("cluster %s not found", clusterID)
	}
	if cluster.IsDeleted() {
		return nil, NewValidationError("cluster %s not found", clusterID)
	}
	return cluster, nil
}

func (s *ClusterService) ListClusters(params repository.ListClustersParams) ([]*model.Cluster, int64, error) {
	return s.clusterRepo.List(params)
}

// UpdateCluster 只允许改描述性字段，生命周期状态由探测与导入流程驱动
func (s *ClusterService) UpdateCluster(clusterID uuid.UUID, region, environmentType string, labels map[string]string, updatedBy string) (*model.Cluster, error) {
	cluster, err := s.GetCluster(clusterID)
	if err != nil {
		return nil, err
	}

	if region != "" {
		cluster.Region = region
	}
	if environmentType != "" {
		cluster.EnvironmentType = environmentType
	}
	if labels != nil {
		m := make(model.JSONMap, len(labels))
		for k, v := range labels {
			m[k] = v
		}
		cluster.Labels = m
	}

	if err := s.clusterRepo.Update(cluster); err != nil {
		return nil, fmt.Errorf("failed to update cluster: %w", err)
	}
	return cluster, nil
}

// DeleteCluster 软删集群并停用其全部备份计划。
// 历史备份记录与产物保留，计划只是不再触发。
func (s *ClusterService) DeleteCluster(clusterID uuid.UUID, deletedBy string) error {
	cluster, err := s.GetCluster(clusterID)
	if err != nil {
		return err
	}

	if err := s.scheduleRepo.DisableByClusterID(clusterID.String()); err != nil {
		return fmt.Errorf("failed to disable backup schedules: %w", err)
	}

	if err := s.clusterRepo.SoftDelete(clusterID.String()); err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}

	s.auditSvc.Log(&cluster.ID, constants.AuditActionDelete, constants.ResourceTypeCluster, deletedBy, model.JSONMap{
		"name": cluster.Name,
	})

	return nil
}
