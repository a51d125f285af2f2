package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 导入状态机：pending → probing → {completed | failed}
const (
	ImportStatusPending   = "pending"
	ImportStatusProbing   = "probing"
	ImportStatusCompleted = "completed"
	ImportStatusFailed    = "failed"
)

type ImportRecord struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ClusterID    *uuid.UUID `json:"cluster_id" gorm:"type:uuid;index"`
	ClusterName  string     `json:"cluster_name" gorm:"size:255;not null"`
	ImportSource string     `json:"import_source" gorm:"size:100;not null"`
	Status       string     `json:"status" gorm:"size:20;default:'pending'"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`

	// 提交时携带的集群元数据，探测成功后用于建档
	Description     string  `json:"description" gorm:"type:text"`
	Region          string  `json:"region" gorm:"size:100"`
	EnvironmentType string  `json:"environment_type" gorm:"size:50"`
	Labels          JSONMap `json:"labels" gorm:"type:jsonb;default:'{}'"`

	KubeconfigRef uuid.UUID  `json:"-" gorm:"type:uuid;not null"`
	ImportedBy    string     `json:"imported_by" gorm:"size:100;not null"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt   *time.Time `json:"completed_at"`
}

func (ImportRecord) TableName() string {
	return "import_records"
}

func (r *ImportRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsTerminal completed/failed为终态，终态记录不再变更
func (r *ImportRecord) IsTerminal() bool {
	return r.Status == ImportStatusCompleted || r.Status == ImportStatusFailed
}
