package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type backupServiceHarness struct {
	db      *gorm.DB
	svc     *BackupService
	vault   *CredentialVault
	storage *BackupStorage
	cluster *model.Cluster
}

func newBackupServiceHarness(t *testing.T) *backupServiceHarness {
	t.Helper()

	db := newTestDB(t)
	vault := newTestVault(t, db)
	storage := NewBackupStorage(t.TempDir())
	auditSvc := NewAuditService(repository.NewAuditRepository(db))

	cluster := &model.Cluster{
		Name:          "prod",
		Status:        model.ClusterStatusReady,
		KubeconfigRef: uuid.New(),
	}
	require.NoError(t, repository.NewClusterRepository(db).Create(cluster))

	svc := NewBackupService(
		repository.NewBackupScheduleRepository(db),
		repository.NewBackupRecordRepository(db),
		repository.NewClusterRepository(db),
		vault,
		storage,
		auditSvc,
	)

	return &backupServiceHarness{db: db, svc: svc, vault: vault, storage: storage, cluster: cluster}
}

func validScheduleRequest() *ScheduleRequest {
	return &ScheduleRequest{
		Name:          "nightly",
		CronExpr:      "0 2 * * *",
		Timezone:      "Asia/Shanghai",
		BackupType:    model.BackupTypeEtcd,
		RetentionDays: 7,
		EtcdEndpoints: "https://10.0.0.1:2379",
		SSHUsername:   "root",
		SSHPassword:   "secret",
	}
}

func TestCreateScheduleStoresSSHCredential(t *testing.T) {
	h := newBackupServiceHarness(t)

	schedule, err := h.svc.CreateSchedule(h.cluster.ID, validScheduleRequest(), "admin")
	require.NoError(t, err)

	assert.True(t, schedule.Enabled)
	require.NotNil(t, schedule.SSHCredentialID)

	// SSH材料进了凭据库，计划里只存引用
	var material SSHMaterial
	require.NoError(t, h.vault.ResolveByID(*schedule.SSHCredentialID, &material))
	assert.Equal(t, "root", material.Username)
	assert.Equal(t, "secret", material.Password)
}

func TestCreateScheduleRejectsInvalidCron(t *testing.T) {
	h := newBackupServiceHarness(t)

	req := validScheduleRequest()
	req.CronExpr = "every 5 minutes"

	_, err := h.svc.CreateSchedule(h.cluster.ID, req, "admin")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCreateScheduleRejectsUnknownBackupType(t *testing.T) {
	h := newBackupServiceHarness(t)

	req := validScheduleRequest()
	req.BackupType = "volumes"

	_, err := h.svc.CreateSchedule(h.cluster.ID, req, "admin")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCreateScheduleRejectsEtcdWithoutEndpoints(t *testing.T) {
	h := newBackupServiceHarness(t)

	req := validScheduleRequest()
	req.EtcdEndpoints = ""

	_, err := h.svc.CreateSchedule(h.cluster.ID, req, "admin")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCreateScheduleRejectsUnknownCluster(t *testing.T) {
	h := newBackupServiceHarness(t)

	_, err := h.svc.CreateSchedule(uuid.New(), validScheduleRequest(), "admin")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestSetEnabledTogglesSchedule(t *testing.T) {
	h := newBackupServiceHarness(t)

	schedule, err := h.svc.CreateSchedule(h.cluster.ID, validScheduleRequest(), "admin")
	require.NoError(t, err)

	got, err := h.svc.SetEnabled(schedule.ID, false, "admin")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	got, err = h.svc.SetEnabled(schedule.ID, true, "admin")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
}

func TestDeleteScheduleKeepsBackupHistory(t *testing.T) {
	h := newBackupServiceHarness(t)

	schedule, err := h.svc.CreateSchedule(h.cluster.ID, validScheduleRequest(), "admin")
	require.NoError(t, err)

	record := &model.BackupRecord{
		ClusterID:  h.cluster.ID,
		ScheduleID: &schedule.ID,
		Name:       "nightly-20260310",
		BackupType: model.BackupTypeEtcd,
		Status:     model.BackupStatusSucceeded,
	}
	require.NoError(t, repository.NewBackupRecordRepository(h.db).Create(record))

	require.NoError(t, h.svc.DeleteSchedule(schedule.ID, "admin"))

	_, err = h.svc.GetSchedule(schedule.ID)
	assert.Error(t, err)

	// 历史备份不随计划陪葬
	got, err := h.svc.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}

func TestDeleteRecordRejectsRunningBackup(t *testing.T) {
	h := newBackupServiceHarness(t)

	record := &model.BackupRecord{
		ClusterID:  h.cluster.ID,
		Name:       "manual",
		BackupType: model.BackupTypeEtcd,
		Status:     model.BackupStatusRunning,
	}
	require.NoError(t, repository.NewBackupRecordRepository(h.db).Create(record))

	err := h.svc.DeleteRecord(record.ID, "admin")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestDeleteRecordRemovesArtifact(t *testing.T) {
	h := newBackupServiceHarness(t)

	artifact := filepath.Join(h.storage.BasePath(), "old.snapshot")
	require.NoError(t, os.WriteFile(artifact, []byte("artifact"), 0644))

	record := &model.BackupRecord{
		ClusterID:   h.cluster.ID,
		Name:        "manual",
		BackupType:  model.BackupTypeEtcd,
		Status:      model.BackupStatusSucceeded,
		ArtifactRef: artifact,
	}
	require.NoError(t, repository.NewBackupRecordRepository(h.db).Create(record))

	require.NoError(t, h.svc.DeleteRecord(record.ID, "admin"))

	assert.NoFileExists(t, artifact)
	_, err := h.svc.GetRecord(record.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
