package service

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"gorm.io/gorm"
)

// SSHMaterial SSH登录材料，口令和私钥二选一
type SSHMaterial struct {
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
}

// KubeconfigMaterial 集群接入材料
type KubeconfigMaterial struct {
	Kubeconfig string `json:"kubeconfig"`
}

// CredentialVault 凭据只以AES-GCM密文落库，调度与集群元数据里只存引用。
type CredentialVault struct {
	credRepo *repository.CredentialRepository
	cipher   *Cipher
}

func NewCredentialVault(credRepo *repository.CredentialRepository, cipher *Cipher) *CredentialVault {
	return &CredentialVault{
		credRepo: credRepo,
		cipher:   cipher,
	}
}

func (v *CredentialVault) store(clusterID *uuid.UUID, kind, name string, material interface{}) (*model.Credential, error) {
	payload, err := json.Marshal(material)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential material: %w", err)
	}

	ciphertext, nonce, err := v.cipher.Encrypt(string(payload))
	if err != nil {
		return nil, &CredentialError{Msg: "failed to encrypt credential material", Err: err}
	}

	credential := &model.Credential{
		ClusterID:  clusterID,
		Kind:       kind,
		Name:       name,
		Ciphertext: ciphertext,
		Nonce:      nonce,
	}

	if err := v.credRepo.Create(credential); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	return credential, nil
}

// StoreUnbound 导入期先存游离凭据，探测成功后再挂到集群上
func (v *CredentialVault) StoreUnbound(kind, name string, material interface{}) (*model.Credential, error) {
	return v.store(nil, kind, name, material)
}

func (v *CredentialVault) Store(clusterID uuid.UUID, kind, name string, material interface{}) (*model.Credential, error) {
	return v.store(&clusterID, kind, name, material)
}

// BindCluster 把游离凭据归属到集群
func (v *CredentialVault) BindCluster(tx *gorm.DB, credentialID, clusterID uuid.UUID) error {
	return v.credRepo.BindCluster(tx, credentialID, clusterID)
}

func (v *CredentialVault) resolveRecord(credential *model.Credential, out interface{}) error {
	plaintext, err := v.cipher.Decrypt(credential.Ciphertext, credential.Nonce)
	if err != nil {
		return &CredentialError{Msg: fmt.Sprintf("failed to decrypt credential %s", credential.ID), Err: err}
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return &CredentialError{Msg: fmt.Sprintf("corrupt credential material %s", credential.ID), Err: err}
	}
	return nil
}

// Resolve 按集群+类别解出材料
func (v *CredentialVault) Resolve(clusterID uuid.UUID, kind string, out interface{}) error {
	credential, err := v.credRepo.GetByClusterAndKind(clusterID, kind)
	if err != nil {
		return &CredentialError{Msg: fmt.Sprintf("no %s credential for cluster %s", kind, clusterID), Err: err}
	}
	return v.resolveRecord(credential, out)
}

// ResolveByID 按凭据引用解出材料
func (v *CredentialVault) ResolveByID(credentialID uuid.UUID, out interface{}) error {
	credential, err := v.credRepo.GetByID(credentialID)
	if err != nil {
		return &CredentialError{Msg: fmt.Sprintf("credential %s not found", credentialID), Err: err}
	}
	return v.resolveRecord(credential, out)
}
