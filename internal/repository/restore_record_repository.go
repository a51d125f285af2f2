package repository

import (
	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

type RestoreRecordRepository struct {
	db *gorm.DB
}

func NewRestoreRecordRepository(db *gorm.DB) *RestoreRecordRepository {
	return &RestoreRecordRepository{db: db}
}

func (r *RestoreRecordRepository) Create(record *model.RestoreRecord) error {
	return r.db.Create(record).Error
}

func (r *RestoreRecordRepository) GetByID(id string) (*model.RestoreRecord, error) {
	var record model.RestoreRecord
	if err := r.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RestoreRecordRepository) Update(record *model.RestoreRecord) error {
	return r.db.Save(record).Error
}

func (r *RestoreRecordRepository) ListByClusterID(clusterID string) ([]*model.RestoreRecord, error) {
	var records []*model.RestoreRecord
	err := r.db.Where("cluster_id = ?", clusterID).Order("created_at DESC").Find(&records).Error
	return records, err
}
