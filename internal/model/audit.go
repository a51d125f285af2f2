package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditEvent struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ClusterID *uuid.UUID `json:"cluster_id" gorm:"type:uuid;index"`
	Action    string     `json:"action" gorm:"size:100;not null"`
	Resource  string     `json:"resource" gorm:"size:100;not null"`
	Actor     string     `json:"actor" gorm:"size:100;not null"`
	Detail    JSONMap    `json:"detail" gorm:"type:jsonb;default:'{}'"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}

func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
