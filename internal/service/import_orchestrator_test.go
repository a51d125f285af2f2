package service

import (
	"context"
	"testing"
	"time"

	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeProber struct {
	validateErr error
	probeErrs   []error
	result      *InspectResult
	probeCalls  int
}

func (f *fakeProber) ValidateKubeconfig(kubeconfig string) error {
	return f.validateErr
}

func (f *fakeProber) Probe(ctx context.Context, kubeconfig string) (*InspectResult, error) {
	f.probeCalls++
	if len(f.probeErrs) > 0 {
		err := f.probeErrs[0]
		f.probeErrs = f.probeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.result != nil {
		return f.result, nil
	}
	return &InspectResult{
		Version:      "v1.28.3",
		APIServerURL: "https://10.0.0.1:6443",
		NodeCount:    3,
	}, nil
}

// deferredPool 捕获任务不执行，测试自己决定何时跑探测
type deferredPool struct {
	tasks []func(ctx context.Context)
}

func (p *deferredPool) Submit(task func(ctx context.Context)) bool {
	p.tasks = append(p.tasks, task)
	return true
}

func (p *deferredPool) runAll() {
	for _, task := range p.tasks {
		task(context.Background())
	}
	p.tasks = nil
}

func newOrchestrator(t *testing.T, db *gorm.DB, prober ClusterProber, pool ProbeEnqueuer) *ImportOrchestrator {
	t.Helper()

	return NewImportOrchestrator(
		repository.NewImportRecordRepository(db),
		repository.NewClusterRepository(db),
		newTestVault(t, db),
		prober,
		pool,
		utils.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		NewAuditService(repository.NewAuditRepository(db)),
	)
}

func importRequest(name string) ImportRequest {
	return ImportRequest{
		ImportSource: "kubeconfig",
		Name:         name,
		Region:       "cn-north",
		Kubeconfig:   "apiVersion: v1\nkind: Config\nclusters: []\n",
		ImportedBy:   "tester",
	}
}

func TestSubmitImportReturnsPendingRecord(t *testing.T) {
	db := newTestDB(t)
	pool := &deferredPool{}
	o := newOrchestrator(t, db, &fakeProber{}, pool)

	record, err := o.SubmitImport(importRequest("prod-a"))
	require.NoError(t, err)

	assert.Equal(t, model.ImportStatusPending, record.Status)
	assert.Nil(t, record.ClusterID)
	assert.NotEqual(t, "", record.KubeconfigRef.String())
	assert.Len(t, pool.tasks, 1)
}

func TestProbeSuccessCreatesReadyCluster(t *testing.T) {
	db := newTestDB(t)
	pool := &deferredPool{}
	o := newOrchestrator(t, db, &fakeProber{}, pool)

	record, err := o.SubmitImport(importRequest("prod-b"))
	require.NoError(t, err)

	pool.runAll()

	got, err := o.GetImportStatus(record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.ImportStatusCompleted, got.Status)
	require.NotNil(t, got.ClusterID)
	require.NotNil(t, got.CompletedAt)

	clusterRepo := repository.NewClusterRepository(db)
	cluster, err := clusterRepo.GetByID(got.ClusterID.String())
	require.NoError(t, err)
	assert.Equal(t, "prod-b", cluster.Name)
	assert.Equal(t, model.ClusterStatusReady, cluster.Status)
	assert.Equal(t, "v1.28.3", cluster.KubernetesVersion)
	assert.Equal(t, 3, cluster.NodeCount)

	// kubeconfig凭据在完成时挂到集群上
	credRepo := repository.NewCredentialRepository(db)
	cred, err := credRepo.GetByID(got.KubeconfigRef)
	require.NoError(t, err)
	require.NotNil(t, cred.ClusterID)
	assert.Equal(t, *got.ClusterID, *cred.ClusterID)
}

func TestSubmitImportRejectsDuplicateClusterName(t *testing.T) {
	db := newTestDB(t)
	pool := &deferredPool{}
	o := newOrchestrator(t, db, &fakeProber{}, pool)

	_, err := o.SubmitImport(importRequest("prod-c"))
	require.NoError(t, err)
	pool.runAll()

	_, err = o.SubmitImport(importRequest("prod-c"))
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestSubmitImportRejectsInFlightDuplicate(t *testing.T) {
	db := newTestDB(t)
	pool := &deferredPool{}
	o := newOrchestrator(t, db, &fakeProber{}, pool)

	_, err := o.SubmitImport(importRequest("prod-d"))
	require.NoError(t, err)

	// 第一条还是pending，同名立即冲突
	_, err = o.SubmitImport(importRequest("prod-d"))
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestSubmitImportRejectsMalformedKubeconfig(t *testing.T) {
	db := newTestDB(t)
	prober := &fakeProber{validateErr: NewValidationError("invalid kubeconfig")}
	o := newOrchestrator(t, db, prober, &deferredPool{})

	_, err := o.SubmitImport(importRequest("prod-e"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	// 校验失败不产生任何记录
	records, total, err := o.ListImports("", "")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, records)
}

func TestProbeFatalErrorNotRetried(t *testing.T) {
	db := newTestDB(t)
	prober := &fakeProber{probeErrs: []error{NewValidationError("unparseable kubeconfig")}}
	pool := &deferredPool{}
	o := newOrchestrator(t, db, prober, pool)

	record, err := o.SubmitImport(importRequest("prod-f"))
	require.NoError(t, err)
	pool.runAll()

	got, err := o.GetImportStatus(record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.ImportStatusFailed, got.Status)
	assert.Nil(t, got.ClusterID)
	assert.Contains(t, got.ErrorMessage, "unparseable kubeconfig")
	assert.Equal(t, 1, prober.probeCalls)

	// 失败的导入不建集群
	clusterRepo := repository.NewClusterRepository(db)
	exists, err := clusterRepo.ExistsByName("prod-f")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProbeTransientErrorRetriedThenCompletes(t *testing.T) {
	db := newTestDB(t)
	prober := &fakeProber{probeErrs: []error{
		&ConnectivityError{Endpoint: "https://10.0.0.1:6443", Err: context.DeadlineExceeded},
		&ConnectivityError{Endpoint: "https://10.0.0.1:6443", Err: context.DeadlineExceeded},
	}}
	pool := &deferredPool{}
	o := newOrchestrator(t, db, prober, pool)

	record, err := o.SubmitImport(importRequest("prod-g"))
	require.NoError(t, err)
	pool.runAll()

	got, err := o.GetImportStatus(record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.ImportStatusCompleted, got.Status)
	assert.Equal(t, 3, prober.probeCalls)
}

func TestProbeTransientErrorExhaustsRetries(t *testing.T) {
	db := newTestDB(t)
	connErr := &ConnectivityError{Endpoint: "https://10.0.0.1:6443", Err: context.DeadlineExceeded}
	prober := &fakeProber{probeErrs: []error{connErr, connErr, connErr}}
	pool := &deferredPool{}
	o := newOrchestrator(t, db, prober, pool)

	record, err := o.SubmitImport(importRequest("prod-h"))
	require.NoError(t, err)
	pool.runAll()

	got, err := o.GetImportStatus(record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.ImportStatusFailed, got.Status)
	assert.Nil(t, got.ClusterID)
	assert.Equal(t, 3, prober.probeCalls)
}

func TestRunProbeSkipsTerminalRecord(t *testing.T) {
	db := newTestDB(t)
	prober := &fakeProber{}
	pool := &deferredPool{}
	o := newOrchestrator(t, db, prober, pool)

	record, err := o.SubmitImport(importRequest("prod-i"))
	require.NoError(t, err)
	pool.runAll()
	require.Equal(t, 1, prober.probeCalls)

	// 重复探测同一条记录是空操作
	o.RunProbe(context.Background(), record.ID.String())
	assert.Equal(t, 1, prober.probeCalls)
}
