package repository

import (
	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

type ImportRecordRepository struct {
	db *gorm.DB
}

func NewImportRecordRepository(db *gorm.DB) *ImportRecordRepository {
	return &ImportRecordRepository{db: db}
}

func (r *ImportRecordRepository) Create(record *model.ImportRecord) error {
	return r.db.Create(record).Error
}

func (r *ImportRecordRepository) GetByID(id string) (*model.ImportRecord, error) {
	var record model.ImportRecord
	if err := r.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *ImportRecordRepository) Update(record *model.ImportRecord) error {
	return r.db.Save(record).Error
}

func (r *ImportRecordRepository) UpdateTx(tx *gorm.DB, record *model.ImportRecord) error {
	return tx.Save(record).Error
}

func (r *ImportRecordRepository) List(importSource, status string) ([]*model.ImportRecord, int64, error) {
	var records []*model.ImportRecord
	var total int64

	query := r.db.Model(&model.ImportRecord{})
	if importSource != "" {
		query = query.Where("import_source = ?", importSource)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// CountActiveByName 同名集群的进行中导入（pending/probing）计数，用于冲突预检
func (r *ImportRecordRepository) CountActiveByName(name string) (int64, error) {
	var count int64
	err := r.db.Model(&model.ImportRecord{}).
		Where("cluster_name = ? AND status IN ?", name, []string{model.ImportStatusPending, model.ImportStatusProbing}).
		Count(&count).Error
	return count, err
}
