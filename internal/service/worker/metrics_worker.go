package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/service"
)

// MetricsWorker 周期刷新已就绪集群的版本、节点数与用量指标。
// 连续探测失败达到阈值的集群降级为degraded，探测成功即恢复ready；
// 降级不拦截备份，只影响监控面。
type MetricsWorker struct {
	clusterRepo *repository.ClusterRepository
	vault       *service.CredentialVault
	prober      service.ClusterProber
	interval    time.Duration
	concurrency int
	threshold   int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMetricsWorker(
	clusterRepo *repository.ClusterRepository,
	vault *service.CredentialVault,
	prober service.ClusterProber,
	interval time.Duration,
	concurrency int,
	threshold int,
) *MetricsWorker {
	ctx, cancel := context.WithCancel(context.Background())

	if concurrency <= 0 {
		concurrency = 4
	}
	if threshold <= 0 {
		threshold = 3
	}

	return &MetricsWorker{
		clusterRepo: clusterRepo,
		vault:       vault,
		prober:      prober,
		interval:    interval,
		concurrency: concurrency,
		threshold:   threshold,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (w *MetricsWorker) Start() {
	log.Println("[METRICS] Starting metrics worker...")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.Sweep(w.ctx)
			}
		}
	}()

	log.Println("[METRICS] Metrics worker started")
}

func (w *MetricsWorker) Stop() {
	log.Println("[METRICS] Stopping metrics worker...")
	w.cancel()
	w.wg.Wait()
	log.Println("[METRICS] Metrics worker stopped")
}

// Sweep 并发刷新一轮所有可监控集群
func (w *MetricsWorker) Sweep(ctx context.Context) {
	clusters, err := w.clusterRepo.FindMonitorable()
	if err != nil {
		log.Printf("[METRICS] Failed to list clusters: %v", err)
		return
	}

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for _, cluster := range clusters {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(cluster *model.Cluster) {
			defer wg.Done()
			defer func() { <-sem }()
			w.refresh(ctx, cluster)
		}(cluster)
	}

	wg.Wait()
}

func (w *MetricsWorker) refresh(ctx context.Context, cluster *model.Cluster) {
	now := time.Now()
	cluster.LastProbedAt = &now

	var material service.KubeconfigMaterial
	if err := w.vault.Resolve(cluster.ID, model.CredentialKindKubeconfig, &material); err != nil {
		w.recordFailure(cluster, err)
		return
	}

	result, err := w.prober.Probe(ctx, material.Kubeconfig)
	if err != nil {
		w.recordFailure(cluster, err)
		return
	}

	cluster.KubernetesVersion = result.Version
	cluster.NodeCount = result.NodeCount
	cluster.CPUUsagePercent = result.CPUUsagePercent
	cluster.MemoryUsagePercent = result.MemoryUsagePercent
	cluster.StorageUsagePercent = result.StorageUsagePercent
	cluster.ProbeFailures = 0

	if err := w.clusterRepo.UpdateMetrics(cluster); err != nil {
		log.Printf("[METRICS] Failed to update metrics for cluster %s: %v", cluster.ID, err)
		return
	}

	if cluster.Status == model.ClusterStatusDegraded {
		if err := w.clusterRepo.UpdateStatus(cluster.ID.String(), model.ClusterStatusReady); err != nil {
			log.Printf("[METRICS] Failed to restore cluster %s to ready: %v", cluster.ID, err)
			return
		}
		log.Printf("[METRICS] Cluster %s recovered, back to ready", cluster.ID)
	}
}

func (w *MetricsWorker) recordFailure(cluster *model.Cluster, cause error) {
	cluster.ProbeFailures++
	log.Printf("[METRICS] Probe failed for cluster %s (%d consecutive): %v", cluster.ID, cluster.ProbeFailures, cause)

	if err := w.clusterRepo.UpdateMetrics(cluster); err != nil {
		log.Printf("[METRICS] Failed to persist probe failure for cluster %s: %v", cluster.ID, err)
		return
	}

	if cluster.ProbeFailures >= w.threshold && cluster.Status == model.ClusterStatusReady {
		if err := w.clusterRepo.UpdateStatus(cluster.ID.String(), model.ClusterStatusDegraded); err != nil {
			log.Printf("[METRICS] Failed to degrade cluster %s: %v", cluster.ID, err)
			return
		}
		log.Printf("[METRICS] Cluster %s degraded after %d consecutive probe failures", cluster.ID, cluster.ProbeFailures)
	}
}
