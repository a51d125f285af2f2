package repository

import (
	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

type BackupScheduleRepository struct {
	db *gorm.DB
}

func NewBackupScheduleRepository(db *gorm.DB) *BackupScheduleRepository {
	return &BackupScheduleRepository{db: db}
}

func (r *BackupScheduleRepository) Create(schedule *model.BackupSchedule) error {
	return r.db.Create(schedule).Error
}

func (r *BackupScheduleRepository) GetByID(id string) (*model.BackupSchedule, error) {
	var schedule model.BackupSchedule
	if err := r.db.First(&schedule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *BackupScheduleRepository) ListByClusterID(clusterID string) ([]*model.BackupSchedule, error) {
	var schedules []*model.BackupSchedule
	if err := r.db.Where("cluster_id = ?", clusterID).Order("created_at DESC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *BackupScheduleRepository) ListEnabled() ([]*model.BackupSchedule, error) {
	var schedules []*model.BackupSchedule
	if err := r.db.Where("enabled = ?", true).Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *BackupScheduleRepository) Update(schedule *model.BackupSchedule) error {
	return r.db.Save(schedule).Error
}

// MarkTriggered 推进水位线；丢失的触发点折叠成一次追赶，所以直接记当前时刻
func (r *BackupScheduleRepository) MarkTriggered(schedule *model.BackupSchedule) error {
	return r.db.Model(&model.BackupSchedule{}).Where("id = ?", schedule.ID).
		Update("last_run_at", schedule.LastRunAt).Error
}

func (r *BackupScheduleRepository) Delete(id string) error {
	return r.db.Delete(&model.BackupSchedule{}, "id = ?", id).Error
}

// DisableByClusterID 集群删除时逻辑停用其计划，而不是删除
func (r *BackupScheduleRepository) DisableByClusterID(clusterID string) error {
	return r.db.Model(&model.BackupSchedule{}).
		Where("cluster_id = ?", clusterID).
		Update("enabled", false).Error
}
