package repository

import (
	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(event *model.AuditEvent) error {
	return r.db.Create(event).Error
}

func (r *AuditRepository) List(clusterID string, page, limit int) ([]*model.AuditEvent, int64, error) {
	var events []*model.AuditEvent
	var total int64

	query := r.db.Model(&model.AuditEvent{})
	if clusterID != "" {
		query = query.Where("cluster_id = ?", clusterID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&events).Error
	return events, total, err
}
