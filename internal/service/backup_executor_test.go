package service

import (
	"context"
	"os"
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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

type fakeSession struct {
	runs     []string
	pushes   []string
	runErrs  map[string]error
	fetchErr error
	closed   bool
}

func (s *fakeSession) Run(ctx context.Context, command string) (string, error) {
	s.runs = append(s.runs, command)
	for prefix, err := range s.runErrs {
		if strings.HasPrefix(command, prefix) {
			return "", err
		}
	}
	return "", nil
}

func (s *fakeSession) Fetch(remoteFile, localFile string) error {
	if s.fetchErr != nil {
		return s.fetchErr
	}
	return os.WriteFile(localFile, []byte("snapshot-bytes"), 0644)
}

func (s *fakeSession) Push(localFile, remoteFile string) error {
	s.pushes = append(s.pushes, remoteFile)
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeRemote struct {
	dialErrs map[string]error
	sessions map[string]*fakeSession
	dialed   []string
}

func (r *fakeRemote) Dial(ctx context.Context, host string, material SSHMaterial) (RemoteSession, error) {
	r.dialed = append(r.dialed, host)
	if err, ok := r.dialErrs[host]; ok && err != nil {
		return nil, err
	}
	if r.sessions == nil {
		r.sessions = make(map[string]*fakeSession)
	}
	if _, ok := r.sessions[host]; !ok {
		r.sessions[host] = &fakeSession{}
	}
	return r.sessions[host], nil
}

type fakeClientProvider struct {
	clientset kubernetes.Interface
}

func (p *fakeClientProvider) GetClient(kubeconfig string) (kubernetes.Interface, error) {
	return p.clientset, nil
}

type executorHarness struct {
	db       *gorm.DB
	executor *BackupExecutor
	remote   *fakeRemote
	storage  *BackupStorage
	vault    *CredentialVault
	cluster  *model.Cluster
	schedule *model.BackupSchedule
}

func newExecutorHarness(t *testing.T) *executorHarness {
	t.Helper()

	db := newTestDB(t)
	vault := newTestVault(t, db)
	remote := &fakeRemote{}
	storage := NewBackupStorage(t.TempDir())

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

	_, err = vault.Store(cluster.ID, model.CredentialKindKubeconfig, "kubeconfig", KubeconfigMaterial{
		Kubeconfig: "apiVersion: v1\nkind: Config\n",
	})
	require.NoError(t, err)

	schedule := &model.BackupSchedule{
		ClusterID:       cluster.ID,
		Name:            "nightly",
		CronExpr:        "0 2 * * *",
		Timezone:        "UTC",
		BackupType:      model.BackupTypeEtcd,
		RetentionDays:   7,
		Enabled:         true,
		EtcdEndpoints:   "https://10.0.0.1:2379,https://10.0.0.2:2379",
		EtcdCACert:      "/etc/kubernetes/pki/etcd/ca.crt",
		EtcdCert:        "/etc/kubernetes/pki/etcd/server.crt",
		EtcdKey:         "/etc/kubernetes/pki/etcd/server.key",
		SSHCredentialID: &sshCred.ID,
	}
	require.NoError(t, repository.NewBackupScheduleRepository(db).Create(schedule))

	clientset := k8sfake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "app"}},
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-1"}},
	)

	executor := NewBackupExecutor(
		repository.NewBackupRecordRepository(db),
		repository.NewBackupScheduleRepository(db),
		repository.NewClusterRepository(db),
		vault,
		remote,
		storage,
		&fakeClientProvider{clientset: clientset},
		utils.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	)

	return &executorHarness{
		db:       db,
		executor: executor,
		remote:   remote,
		storage:  storage,
		vault:    vault,
		cluster:  cluster,
		schedule: schedule,
	}
}

func TestRunScheduledEtcdBackupSucceeds(t *testing.T) {
	h := newExecutorHarness(t)

	record, err := h.executor.RunScheduled(context.Background(), h.schedule)
	require.NoError(t, err)

	assert.Equal(t, model.BackupStatusSucceeded, record.Status)
	assert.NotEmpty(t, record.ArtifactRef)
	assert.Equal(t, int64(len("snapshot-bytes")), record.SizeBytes)
	require.NotNil(t, record.CompletedAt)
	require.NotNil(t, record.ScheduleID)
	assert.Equal(t, h.schedule.ID, *record.ScheduleID)

	// 快照真的落了盘
	data, err := os.ReadFile(record.ArtifactRef)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-bytes", string(data))

	// etcdctl跑在第一个endpoint上
	session := h.remote.sessions["10.0.0.1"]
	require.NotNil(t, session)
	found := false
	for _, cmd := range session.runs {
		if strings.Contains(cmd, "snapshot save") {
			assert.Contains(t, cmd, "--endpoints=https://10.0.0.1:2379")
			assert.Contains(t, cmd, "--cacert=/etc/kubernetes/pki/etcd/ca.crt")
			found = true
		}
	}
	assert.True(t, found)
	assert.True(t, session.closed)

	// 成功的运行刷新集群的最近备份时间
	cluster, err := repository.NewClusterRepository(h.db).GetByID(h.cluster.ID.String())
	require.NoError(t, err)
	assert.NotNil(t, cluster.LastBackupAt)
}

func TestRunEtcdBackupSkipsUnreachableEndpoint(t *testing.T) {
	h := newExecutorHarness(t)
	h.remote.dialErrs = map[string]error{
		"10.0.0.1": &ConnectivityError{Endpoint: "10.0.0.1", Err: os.ErrDeadlineExceeded},
	}

	record, err := h.executor.RunScheduled(context.Background(), h.schedule)
	require.NoError(t, err)

	assert.Equal(t, model.BackupStatusSucceeded, record.Status)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, h.remote.dialed)
}

func TestRunEtcdBackupFailsWhenAllEndpointsUnreachable(t *testing.T) {
	h := newExecutorHarness(t)
	h.remote.dialErrs = map[string]error{
		"10.0.0.1": &ConnectivityError{Endpoint: "10.0.0.1", Err: os.ErrDeadlineExceeded},
		"10.0.0.2": &ConnectivityError{Endpoint: "10.0.0.2", Err: os.ErrDeadlineExceeded},
	}

	record, err := h.executor.RunScheduled(context.Background(), h.schedule)
	require.NoError(t, err)

	assert.Equal(t, model.BackupStatusFailed, record.Status)
	// 失败信息逐个列出每个endpoint
	assert.Contains(t, record.ErrorMessage, "all etcd endpoints unreachable")
	assert.Contains(t, record.ErrorMessage, "https://10.0.0.1:2379")
	assert.Contains(t, record.ErrorMessage, "https://10.0.0.2:2379")
}

func TestRunEtcdBackupStopsOnCredentialError(t *testing.T) {
	h := newExecutorHarness(t)
	h.remote.dialErrs = map[string]error{
		"10.0.0.1": &CredentialError{Msg: "ssh authentication failed"},
	}

	record, err := h.executor.RunScheduled(context.Background(), h.schedule)
	require.NoError(t, err)

	assert.Equal(t, model.BackupStatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, "ssh authentication failed")
	// 坏凭据不再试其余endpoint
	assert.Equal(t, []string{"10.0.0.1"}, h.remote.dialed)
}

func TestRunScheduledRejectsWhileInFlight(t *testing.T) {
	h := newExecutorHarness(t)

	require.True(t, h.executor.tryAcquire(scheduleLane(h.schedule.ID)))
	defer h.executor.release(scheduleLane(h.schedule.ID))

	_, err := h.executor.RunScheduled(context.Background(), h.schedule)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestScheduleBusyDetectsRunningRecord(t *testing.T) {
	h := newExecutorHarness(t)

	assert.False(t, h.executor.ScheduleBusy(h.schedule.ID))

	recordRepo := repository.NewBackupRecordRepository(h.db)
	require.NoError(t, recordRepo.Create(&model.BackupRecord{
		ClusterID:  h.cluster.ID,
		ScheduleID: &h.schedule.ID,
		Name:       "stuck",
		BackupType: model.BackupTypeEtcd,
		Status:     model.BackupStatusRunning,
	}))

	assert.True(t, h.executor.ScheduleBusy(h.schedule.ID))
}

func TestRunAdhocRejectsConcurrentSameLane(t *testing.T) {
	h := newExecutorHarness(t)

	recordRepo := repository.NewBackupRecordRepository(h.db)
	require.NoError(t, recordRepo.Create(&model.BackupRecord{
		ClusterID:  h.cluster.ID,
		Name:       "manual-1",
		BackupType: model.BackupTypeEtcd,
		Status:     model.BackupStatusRunning,
	}))

	_, err := h.executor.RunAdhoc(context.Background(), h.cluster.ID, "manual-2", model.BackupTypeEtcd, "tester")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestRunAdhocIndependentLanes(t *testing.T) {
	h := newExecutorHarness(t)

	// etcd通道占用不影响cluster通道
	recordRepo := repository.NewBackupRecordRepository(h.db)
	require.NoError(t, recordRepo.Create(&model.BackupRecord{
		ClusterID:  h.cluster.ID,
		Name:       "manual-etcd",
		BackupType: model.BackupTypeEtcd,
		Status:     model.BackupStatusRunning,
	}))

	record, err := h.executor.RunAdhoc(context.Background(), h.cluster.ID, "manual-cluster", model.BackupTypeCluster, "tester")
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusRunning, record.Status)

	// 异步执行收尾
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := recordRepo.GetByID(record.ID.String())
		require.NoError(t, err)
		if got.IsTerminal() {
			assert.Equal(t, model.BackupStatusSucceeded, got.Status)
			assert.NotEmpty(t, got.ArtifactRef)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("ad-hoc cluster backup did not finish")
}

func TestRunAdhocRejectsUnknownType(t *testing.T) {
	h := newExecutorHarness(t)

	_, err := h.executor.RunAdhoc(context.Background(), h.cluster.ID, "manual", "volumes", "tester")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestRunAdhocEtcdRequiresScheduleParams(t *testing.T) {
	h := newExecutorHarness(t)

	// 另一个集群没有任何带etcd参数的计划
	other := &model.Cluster{Name: "staging", Status: model.ClusterStatusReady, KubeconfigRef: uuid.New()}
	require.NoError(t, repository.NewClusterRepository(h.db).Create(other))

	_, err := h.executor.RunAdhoc(context.Background(), other.ID, "manual", model.BackupTypeEtcd, "tester")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestRecordWrittenBeforeExecution(t *testing.T) {
	h := newExecutorHarness(t)
	h.remote.dialErrs = map[string]error{
		"10.0.0.1": &ConnectivityError{Endpoint: "10.0.0.1", Err: os.ErrDeadlineExceeded},
		"10.0.0.2": &ConnectivityError{Endpoint: "10.0.0.2", Err: os.ErrDeadlineExceeded},
	}

	record, err := h.executor.RunScheduled(context.Background(), h.schedule)
	require.NoError(t, err)

	// 失败的运行也留下记录，而不是凭空消失
	got, err := repository.NewBackupRecordRepository(h.db).GetByID(record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
}
