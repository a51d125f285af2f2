package repository

import (
	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

// InventoryRepository 租户/环境/应用的只读清单
type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) ListTenants() ([]*model.Tenant, error) {
	var tenants []*model.Tenant
	err := r.db.Order("created_at DESC").Find(&tenants).Error
	return tenants, err
}

func (r *InventoryRepository) ListEnvironments(tenantID string) ([]*model.Environment, error) {
	var environments []*model.Environment
	query := r.db.Model(&model.Environment{})
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	err := query.Order("created_at DESC").Find(&environments).Error
	return environments, err
}

func (r *InventoryRepository) ListApplications(environmentID string) ([]*model.Application, error) {
	var applications []*model.Application
	query := r.db.Model(&model.Application{})
	if environmentID != "" {
		query = query.Where("environment_id = ?", environmentID)
	}
	err := query.Order("created_at DESC").Find(&applications).Error
	return applications, err
}
