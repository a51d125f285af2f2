package repository

import (
	"fmt"

	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

type ClusterRepository struct {
	db *gorm.DB
}

type ListClustersParams struct {
	Page   int
	Limit  int
	Status string
	Search string
}

func NewClusterRepository(db *gorm.DB) *ClusterRepository {
	return &ClusterRepository{db: db}
}

func (r *ClusterRepository) Create(cluster *model.Cluster) error {
	return r.db.Create(cluster).Error
}

func (r *ClusterRepository) CreateTx(tx *gorm.DB, cluster *model.Cluster) error {
	return tx.Create(cluster).Error
}

func (r *ClusterRepository) GetByID(id string) (*model.Cluster, error) {
	var cluster model.Cluster
	if err := r.db.Where("id = ? AND deleted_at IS NULL", id).First(&cluster).Error; err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (r *ClusterRepository) GetByName(name string) (*model.Cluster, error) {
	var cluster model.Cluster
	if err := r.db.Where("name = ? AND deleted_at IS NULL", name).First(&cluster).Error; err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (r *ClusterRepository) Update(cluster *model.Cluster) error {
	return r.db.Save(cluster).Error
}

func (r *ClusterRepository) ExistsByName(name string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Cluster{}).
		Where("name = ? AND deleted_at IS NULL", name).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ClusterRepository) List(params ListClustersParams) ([]*model.Cluster, int64, error) {
	var clusters []*model.Cluster
	var total int64

	query := r.db.Model(&model.Cluster{}).Where("deleted_at IS NULL")

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Search != "" {
		query = query.Where("name LIKE ?", fmt.Sprintf("%%%s%%", params.Search))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if params.Limit > 0 {
		offset := (params.Page - 1) * params.Limit
		query = query.Offset(offset).Limit(params.Limit)
	}

	err := query.Order("created_at DESC").Find(&clusters).Error
	return clusters, total, err
}

// FindMonitorable 指标采集的目标集合：ready或degraded且未删除
func (r *ClusterRepository) FindMonitorable() ([]*model.Cluster, error) {
	var clusters []*model.Cluster
	err := r.db.
		Where("deleted_at IS NULL AND status IN ?", []string{model.ClusterStatusReady, model.ClusterStatusDegraded}).
		Find(&clusters).Error
	return clusters, err
}

func (r *ClusterRepository) UpdateStatus(id string, status string) error {
	return r.db.Model(&model.Cluster{}).Where("id = ?", id).Update("status", status).Error
}

// UpdateMetrics 只更新指标字段，不触碰生命周期状态
func (r *ClusterRepository) UpdateMetrics(cluster *model.Cluster) error {
	return r.db.Model(&model.Cluster{}).Where("id = ?", cluster.ID).
		Updates(map[string]interface{}{
			"kubernetes_version":    cluster.KubernetesVersion,
			"node_count":            cluster.NodeCount,
			"cpu_usage_percent":     cluster.CPUUsagePercent,
			"memory_usage_percent":  cluster.MemoryUsagePercent,
			"storage_usage_percent": cluster.StorageUsagePercent,
			"probe_failures":        cluster.ProbeFailures,
			"last_probed_at":        cluster.LastProbedAt,
		}).Error
}

func (r *ClusterRepository) SoftDelete(id string) error {
	return r.db.Model(&model.Cluster{}).Where("id = ?", id).
		Update("deleted_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

func (r *ClusterRepository) DB() *gorm.DB {
	return r.db
}
