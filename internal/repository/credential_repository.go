package repository

import (
	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"gorm.io/gorm"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(credential *model.Credential) error {
	return r.db.Create(credential).Error
}

func (r *CredentialRepository) GetByID(id uuid.UUID) (*model.Credential, error) {
	var credential model.Credential
	if err := r.db.First(&credential, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *CredentialRepository) GetByClusterAndKind(clusterID uuid.UUID, kind string) (*model.Credential, error) {
	var credential model.Credential
	err := r.db.
		Where("cluster_id = ? AND kind = ?", clusterID, kind).
		Order("created_at DESC").
		First(&credential).Error
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

// BindCluster 导入完成后把游离凭据挂到集群上
func (r *CredentialRepository) BindCluster(tx *gorm.DB, credentialID, clusterID uuid.UUID) error {
	return tx.Model(&model.Credential{}).Where("id = ?", credentialID).
		Update("cluster_id", clusterID).Error
}

func (r *CredentialRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&model.Credential{}, "id = ?", id).Error
}
