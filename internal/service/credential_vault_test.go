package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := NewCipher("some-passphrase")
	require.NoError(t, err)

	ciphertext, nonce, err := cipher.Encrypt("sensitive payload")
	require.NoError(t, err)
	assert.NotEqual(t, "sensitive payload", ciphertext)

	plaintext, err := cipher.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, "sensitive payload", plaintext)
}

func TestCipherRejectsWrongKey(t *testing.T) {
	cipher, err := NewCipher("key-one")
	require.NoError(t, err)

	ciphertext, nonce, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewCipher("key-two")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext, nonce)
	require.Error(t, err)
}

func TestVaultStoreAndResolve(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault(t, db)
	clusterID := uuid.New()

	stored, err := vault.Store(clusterID, model.CredentialKindSSH, "etcd-ssh", SSHMaterial{
		Username: "root",
		Password: "s3cret",
	})
	require.NoError(t, err)

	// 库里只有密文
	credRepo := repository.NewCredentialRepository(db)
	raw, err := credRepo.GetByID(stored.ID)
	require.NoError(t, err)
	assert.NotContains(t, raw.Ciphertext, "s3cret")

	var got SSHMaterial
	require.NoError(t, vault.Resolve(clusterID, model.CredentialKindSSH, &got))
	assert.Equal(t, "root", got.Username)
	assert.Equal(t, "s3cret", got.Password)
}

func TestVaultStoreUnboundThenBind(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault(t, db)

	stored, err := vault.StoreUnbound(model.CredentialKindKubeconfig, "kubeconfig", KubeconfigMaterial{Kubeconfig: "yaml"})
	require.NoError(t, err)
	assert.Nil(t, stored.ClusterID)

	clusterID := uuid.New()
	require.NoError(t, vault.BindCluster(db, stored.ID, clusterID))

	var got KubeconfigMaterial
	require.NoError(t, vault.Resolve(clusterID, model.CredentialKindKubeconfig, &got))
	assert.Equal(t, "yaml", got.Kubeconfig)
}

func TestVaultResolveMissingCredential(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault(t, db)

	var got SSHMaterial
	err := vault.Resolve(uuid.New(), model.CredentialKindSSH, &got)
	require.Error(t, err)
	assert.True(t, IsCredential(err))
}

func TestVaultResolveByIDMissing(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault(t, db)

	var got KubeconfigMaterial
	err := vault.ResolveByID(uuid.New(), &got)
	require.Error(t, err)
	assert.True(t, IsCredential(err))
}
