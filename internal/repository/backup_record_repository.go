package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

type BackupRecordRepository struct {
	db *gorm.DB
}

func NewBackupRecordRepository(db *gorm.DB) *BackupRecordRepository {
	return &BackupRecordRepository{db: db}
}

func (r *BackupRecordRepository) Create(record *model.BackupRecord) error {
	return r.db.Create(record).Error
}

func (r *BackupRecordRepository) GetByID(id string) (*model.BackupRecord, error) {
	var record model.BackupRecord
	if err := r.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *BackupRecordRepository) Update(record *model.BackupRecord) error {
	return r.db.Save(record).Error
}

func (r *BackupRecordRepository) List(clusterID, backupType, status string, page, limit int) ([]*model.BackupRecord, int64, error) {
	var records []*model.BackupRecord
	var total int64

	query := r.db.Model(&model.BackupRecord{})
	if clusterID != "" {
		query = query.Where("cluster_id = ?", clusterID)
	}
	if backupType != "" {
		query = query.Where("backup_type = ?", backupType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *BackupRecordRepository) CountRunningBySchedule(scheduleID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&model.BackupRecord{}).
		Where("schedule_id = ? AND status = ?", scheduleID, model.BackupStatusRunning).
		Count(&count).Error
	return count, err
}

// CountRunningAdhoc 手动备份与计划备份互不阻塞，各自一条在途通道
func (r *BackupRecordRepository) CountRunningAdhoc(clusterID uuid.UUID, backupType string) (int64, error) {
	var count int64
	err := r.db.Model(&model.BackupRecord{}).
		Where("cluster_id = ? AND backup_type = ? AND schedule_id IS NULL AND status = ?",
			clusterID, backupType, model.BackupStatusRunning).
		Count(&count).Error
	return count, err
}

// ListTerminalBefore 某计划下早于cutoff创建的终态记录，最老的在前
func (r *BackupRecordRepository) ListTerminalBefore(scheduleID uuid.UUID, cutoff time.Time) ([]*model.BackupRecord, error) {
	var records []*model.BackupRecord
	err := r.db.
		Where("schedule_id = ? AND status IN ? AND created_at < ?",
			scheduleID, []string{model.BackupStatusSucceeded, model.BackupStatusFailed}, cutoff).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *BackupRecordRepository) LatestSucceeded(scheduleID uuid.UUID) (*model.BackupRecord, error) {
	var record model.BackupRecord
	err := r.db.
		Where("schedule_id = ? AND status = ?", scheduleID, model.BackupStatusSucceeded).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *BackupRecordRepository) Delete(id string) error {
	return r.db.Delete(&model.BackupRecord{}, "id = ?", id).Error
}
