package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 清单实体：只读列表接口使用，核心流程不依赖

type Tenant struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name        string    `json:"name" gorm:"uniqueIndex;not null;size:255"`
	DisplayName string    `json:"display_name" gorm:"size:255"`
	Status      string    `json:"status" gorm:"size:20;default:'active'"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type Environment struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TenantID  *uuid.UUID `json:"tenant_id" gorm:"type:uuid;index"`
	ClusterID *uuid.UUID `json:"cluster_id" gorm:"type:uuid;index"`
	Name      string     `json:"name" gorm:"not null;size:255"`
	Namespace string     `json:"namespace" gorm:"size:255"`
	Type      string     `json:"type" gorm:"size:50"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Environment) TableName() string {
	return "environments"
}

func (e *Environment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

type Application struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	EnvironmentID *uuid.UUID `json:"environment_id" gorm:"type:uuid;index"`
	Name          string     `json:"name" gorm:"not null;size:255"`
	Status        string     `json:"status" gorm:"size:20;default:'unknown'"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Application) TableName() string {
	return "applications"
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
