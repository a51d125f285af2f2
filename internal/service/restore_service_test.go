package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type restoreHarness struct {
	db       *gorm.DB
	svc      *RestoreService
	remote   *fakeRemote
	cluster  *model.Cluster
	schedule *model.BackupSchedule
}

func newRestoreHarness(t *testing.T) *restoreHarness {
	t.Helper()

	db := newTestDB(t)
	vault := newTestVault(t, db)
	remote := &fakeRemote{}

	cluster := &model.Cluster{
		Name:          "prod",
		Status:        model.ClusterStatusReady,
		KubeconfigRef: uuid.New(),
	}
	require.NoError(t, repository.NewClusterRepository(db).Create(cluster))

	sshCred, err := vault.Store(cluster.ID, model.CredentialKindSSH, "etcd-ssh", SSHMaterial{
		Username: "root",
		Password: "pw",
	})
	require.NoError(t, err)

	schedule := &model.BackupSchedule{
		ClusterID:       cluster.ID,
		Name:            "nightly",
		CronExpr:        "0 2 * * *",
		BackupType:      model.BackupTypeEtcd,
		Enabled:         true,
		EtcdEndpoints:   "https://10.0.0.1:2379",
		EtcdDataDir:     "/var/lib/etcd",
		SSHCredentialID: &sshCred.ID,
	}
	require.NoError(t, repository.NewBackupScheduleRepository(db).Create(schedule))

	svc := NewRestoreService(
		repository.NewRestoreRecordRepository(db),
		repository.NewBackupRecordRepository(db),
		repository.NewBackupScheduleRepository(db),
		repository.NewClusterRepository(db),
		vault,
		remote,
		NewAuditService(repository.NewAuditRepository(db)),
		utils.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	)

	return &restoreHarness{db: db, svc: svc, remote: remote, cluster: cluster, schedule: schedule}
}

func (h *restoreHarness) addBackup(t *testing.T, status, backupType string) *model.BackupRecord {
	t.Helper()
	record := &model.BackupRecord{
		ClusterID:   h.cluster.ID,
		ScheduleID:  &h.schedule.ID,
		Name:        "nightly-20260310",
		BackupType:  backupType,
		Status:      status,
		ArtifactRef: "/tmp/etcd.snapshot",
	}
	require.NoError(t, repository.NewBackupRecordRepository(h.db).Create(record))
	return record
}

func (h *restoreHarness) waitTerminal(t *testing.T, restoreID uuid.UUID) *model.RestoreRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.svc.GetRestore(restoreID)
		require.NoError(t, err)
		if got.Status == model.RestoreStatusCompleted || got.Status == model.RestoreStatusFailed {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("restore did not reach a terminal state")
	return nil
}

func TestStartRestoreRunsToCompletion(t *testing.T) {
	h := newRestoreHarness(t)
	backup := h.addBackup(t, model.BackupStatusSucceeded, model.BackupTypeEtcd)

	record, err := h.svc.StartRestore(context.Background(), h.cluster.ID, backup.ID, "rollback", "admin")
	require.NoError(t, err)

	got := h.waitTerminal(t, record.ID)
	assert.Equal(t, model.RestoreStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)

	// 快照推到了endpoint所在节点
	session := h.remote.sessions["10.0.0.1"]
	require.NotNil(t, session)
	require.Len(t, session.pushes, 1)
	assert.True(t, strings.HasPrefix(session.pushes[0], "/backup/restore-"))

	// 恢复落到带时间戳的新目录，不覆盖在线数据目录
	restored := false
	for _, cmd := range session.runs {
		if strings.Contains(cmd, "snapshot restore") {
			assert.Contains(t, cmd, "--data-dir=/var/lib/etcd-restore-")
			restored = true
		}
	}
	assert.True(t, restored)
}

func TestStartRestoreRejectsFailedBackup(t *testing.T) {
	h := newRestoreHarness(t)
	backup := h.addBackup(t, model.BackupStatusFailed, model.BackupTypeEtcd)

	_, err := h.svc.StartRestore(context.Background(), h.cluster.ID, backup.ID, "rollback", "admin")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestStartRestoreRejectsClusterTypeBackup(t *testing.T) {
	h := newRestoreHarness(t)
	backup := h.addBackup(t, model.BackupStatusSucceeded, model.BackupTypeCluster)

	_, err := h.svc.StartRestore(context.Background(), h.cluster.ID, backup.ID, "rollback", "admin")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestStartRestoreRejectsForeignBackup(t *testing.T) {
	h := newRestoreHarness(t)
	backup := h.addBackup(t, model.BackupStatusSucceeded, model.BackupTypeEtcd)

	other := &model.Cluster{Name: "staging", Status: model.ClusterStatusReady, KubeconfigRef: uuid.New()}
	require.NoError(t, repository.NewClusterRepository(h.db).Create(other))

	_, err := h.svc.StartRestore(context.Background(), other.ID, backup.ID, "rollback", "admin")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestRestoreFailsWhenEndpointUnreachable(t *testing.T) {
	h := newRestoreHarness(t)
	h.remote.dialErrs = map[string]error{
		"10.0.0.1": &ConnectivityError{Endpoint: "10.0.0.1", Err: context.DeadlineExceeded},
	}
	backup := h.addBackup(t, model.BackupStatusSucceeded, model.BackupTypeEtcd)

	record, err := h.svc.StartRestore(context.Background(), h.cluster.ID, backup.ID, "rollback", "admin")
	require.NoError(t, err)

	got := h.waitTerminal(t, record.ID)
	assert.Equal(t, model.RestoreStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}
