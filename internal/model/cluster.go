package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JSONMap map[string]interface{}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*j = result
	return nil
}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(j))
}

func (j JSONMap) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(j))
}

func (j *JSONMap) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}

	*j = result
	return nil
}

func (j JSONMap) GetString(key string) (string, bool) {
	if val, ok := j[key]; ok {
		if str, ok := val.(string); ok {
			return str, true
		}
	}
	return "", false
}

// 集群生命周期状态
const (
	ClusterStatusImporting = "importing"
	ClusterStatusReady     = "ready"
	ClusterStatusDegraded  = "degraded"
	ClusterStatusFailed    = "failed"
)

type Cluster struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name            string    `json:"name" gorm:"uniqueIndex;not null;size:255"`
	Description     string    `json:"description" gorm:"type:text"`
	Region          string    `json:"region" gorm:"size:100"`
	EnvironmentType string    `json:"environment_type" gorm:"size:50"`
	ImportSource    string    `json:"import_source" gorm:"size:100"`
	Status          string    `json:"status" gorm:"size:20;default:'importing'"`
	Labels          JSONMap   `json:"labels" gorm:"type:jsonb;default:'{}'"`

	// 连接描述符：kubeconfig存放在凭据库中，仅保存引用
	KubeconfigRef  uuid.UUID `json:"-" gorm:"type:uuid;not null"`
	CACertPath     string    `json:"-" gorm:"size:255"`
	ClientCertPath string    `json:"-" gorm:"size:255"`
	APIServerURL   string    `json:"api_server_url" gorm:"size:255"`

	// 最近一次采集到的指标
	KubernetesVersion   string     `json:"kubernetes_version" gorm:"size:50"`
	NodeCount           int        `json:"node_count" gorm:"default:0"`
	CPUUsagePercent     float64    `json:"cpu_usage_percent" gorm:"default:0"`
	MemoryUsagePercent  float64    `json:"memory_usage_percent" gorm:"default:0"`
	StorageUsagePercent float64    `json:"storage_usage_percent" gorm:"default:0"`
	ProbeFailures       int        `json:"-" gorm:"default:0"`
	LastProbedAt        *time.Time `json:"last_probed_at"`
	LastBackupAt        *time.Time `json:"last_backup_at"`

	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
	CreatedBy string     `json:"created_by" gorm:"size:100;default:'system'"`
}

func (Cluster) TableName() string {
	return "clusters"
}

func (c *Cluster) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Cluster) IsDeleted() bool {
	return c.DeletedAt != nil
}

// IsMonitorable 指标采集只针对ready/degraded集群
func (c *Cluster) IsMonitorable() bool {
	return c.DeletedAt == nil && (c.Status == ClusterStatusReady || c.Status == ClusterStatusDegraded)
}
