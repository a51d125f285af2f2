package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CredentialKindSSH        = "ssh"
	CredentialKindKubeconfig = "kubeconfig"
	CredentialKindEtcdTLS    = "etcd-tls"
)

// Credential 凭据密文。ClusterID在导入完成前可为空（导入期挂在记录上）。
type Credential struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ClusterID  *uuid.UUID `json:"cluster_id" gorm:"type:uuid;index"`
	Kind       string     `json:"kind" gorm:"size:50;not null;index"`
	Name       string     `json:"name" gorm:"size:255;not null"`
	Ciphertext string     `json:"-" gorm:"type:text;not null"`
	Nonce      string     `json:"-" gorm:"size:64;not null"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Credential) TableName() string {
	return "credentials"
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
