package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Cluster{},
		&model.ImportRecord{},
		&model.BackupSchedule{},
		&model.BackupRecord{},
		&model.RestoreRecord{},
		&model.Credential{},
		&model.AuditEvent{},
	))

	return db
}

func newTestVault(t *testing.T, db *gorm.DB) *CredentialVault {
	t.Helper()

	cipher, err := NewCipher("test-encryption-key")
	require.NoError(t, err)
	return NewCredentialVault(repository.NewCredentialRepository(db), cipher)
}

// syncPool 任务内联执行，测试里探测同步完成
type syncPool struct{}

func (syncPool) Submit(task func(ctx context.Context)) bool {
	task(context.Background())
	return true
}
