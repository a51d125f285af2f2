package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BackupTypeEtcd    = "etcd"
	BackupTypeCluster = "cluster"
)

// 备份记录状态：running → {succeeded | failed}
const (
	BackupStatusRunning   = "running"
	BackupStatusSucceeded = "succeeded"
	BackupStatusFailed    = "failed"
)

type BackupSchedule struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ClusterID     uuid.UUID `json:"cluster_id" gorm:"type:uuid;index;not null"`
	Name          string    `json:"name" gorm:"size:255;not null"`
	CronExpr      string    `json:"cron_expr" gorm:"size:100;not null"`
	Timezone      string    `json:"timezone" gorm:"size:64;default:'UTC'"`
	BackupType    string    `json:"backup_type" gorm:"size:50;default:'etcd'"`
	RetentionDays int       `json:"retention_days" gorm:"default:7"`
	Enabled       bool      `json:"enabled" gorm:"default:true"`

	// etcd连接参数（证书为etcd节点上的路径，SSH口令走凭据库引用）
	EtcdEndpoints   string     `json:"etcd_endpoints" gorm:"type:text"`
	EtcdCACert      string     `json:"etcd_ca_cert" gorm:"size:255"`
	EtcdCert        string     `json:"etcd_cert" gorm:"size:255"`
	EtcdKey         string     `json:"etcd_key" gorm:"size:255"`
	EtcdDataDir     string     `json:"etcd_data_dir" gorm:"size:255;default:'/var/lib/etcd'"`
	EtcdctlPath     string     `json:"etcdctl_path" gorm:"size:255;default:'/usr/bin/etcdctl'"`
	SSHCredentialID *uuid.UUID `json:"ssh_credential_id" gorm:"type:uuid"`

	// 部署方式提示
	EtcdDeploymentType string `json:"etcd_deployment_type" gorm:"size:50"`
	K8sDeploymentType  string `json:"k8s_deployment_type" gorm:"size:50"`

	LastRunAt *time.Time `json:"last_run_at"`
	CreatedBy string     `json:"created_by" gorm:"size:100;default:'system'"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (BackupSchedule) TableName() string {
	return "backup_schedules"
}

func (s *BackupSchedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type BackupRecord struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ClusterID    uuid.UUID  `json:"cluster_id" gorm:"type:uuid;index;not null"`
	ScheduleID   *uuid.UUID `json:"schedule_id" gorm:"type:uuid;index"`
	Name         string     `json:"name" gorm:"size:255;not null"`
	BackupType   string     `json:"backup_type" gorm:"size:50;not null"`
	Status       string     `json:"status" gorm:"size:20;default:'running'"`
	ArtifactRef  string     `json:"artifact_ref" gorm:"type:text"`
	SizeBytes    int64      `json:"size_bytes" gorm:"default:0"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	CreatedBy    string     `json:"created_by" gorm:"size:100;default:'system'"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	CompletedAt  *time.Time `json:"completed_at"`
}

func (BackupRecord) TableName() string {
	return "backup_records"
}

func (b *BackupRecord) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *BackupRecord) IsTerminal() bool {
	return b.Status == BackupStatusSucceeded || b.Status == BackupStatusFailed
}

const (
	RestoreStatusPending   = "pending"
	RestoreStatusRunning   = "running"
	RestoreStatusCompleted = "completed"
	RestoreStatusFailed    = "failed"
)

type RestoreRecord struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ClusterID    uuid.UUID  `json:"cluster_id" gorm:"type:uuid;index;not null"`
	BackupID     uuid.UUID  `json:"backup_id" gorm:"type:uuid;index;not null"`
	Name         string     `json:"name" gorm:"size:255;not null"`
	Status       string     `json:"status" gorm:"size:20;default:'pending'"`
	Progress     int        `json:"progress" gorm:"default:0"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt  *time.Time `json:"completed_at"`
}

func (RestoreRecord) TableName() string {
	return "restore_records"
}

func (r *RestoreRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
