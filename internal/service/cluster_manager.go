package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// ClusterManager 按kubeconfig缓存clientset，带LRU淘汰
type ClusterManager struct {
	clients    map[string]*clusterClient
	mutex      sync.Mutex
	timeout    time.Duration
	maxClients int
}

type clusterClient struct {
	clientset kubernetes.Interface
	lastUsed  time.Time
}

// InspectResult 一次探测/采集的结果
type InspectResult struct {
	Version             string  `json:"version"`
	APIServerURL        string  `json:"api_server_url"`
	NodeCount           int     `json:"node_count"`
	CPUUsagePercent     float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent  float64 `json:"memory_usage_percent"`
	StorageUsagePercent float64 `json:"storage_usage_percent"`
}

func NewClusterManager(timeout time.Duration, maxClients int) *ClusterManager {
	return &ClusterManager{
		clients:    make(map[string]*clusterClient),
		timeout:    timeout,
		maxClients: maxClients,
	}
}

func (cm *ClusterManager) ValidateKubeconfig(kubeconfig string) error {
	if strings.TrimSpace(kubeconfig) == "" {
		return NewValidationError("kubeconfig is empty")
	}
	if _, err := clientcmd.RESTConfigFromKubeConfig([]byte(kubeconfig)); err != nil {
		return NewValidationError("invalid kubeconfig: %v", err)
	}
	return nil
}

func (cm *ClusterManager) GetClient(kubeconfig string) (kubernetes.Interface, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cacheKey := kubeconfigHash(kubeconfig)
	if client, exists := cm.clients[cacheKey]; exists {
		client.lastUsed = time.Now()
		return client.clientset, nil
	}

	config, err := clientcmd.RESTConfigFromKubeConfig([]byte(kubeconfig))
	if err != nil {
		return nil, NewValidationError("invalid kubeconfig: %v", err)
	}
	config.Timeout = cm.timeout

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	cm.clients[cacheKey] = &clusterClient{
		clientset: clientset,
		lastUsed:  time.Now(),
	}
	cm.evictOldClients()

	return clientset, nil
}

func (cm *ClusterManager) evictOldClients() {
	if len(cm.clients) <= cm.maxClients {
		return
	}

	var oldestKey string
	oldestTime := time.Now()
	for key, client := range cm.clients {
		if client.lastUsed.Before(oldestTime) {
			oldestTime = client.lastUsed
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(cm.clients, oldestKey)
	}
}

func (cm *ClusterManager) GetAPIServerURL(kubeconfig string) (string, error) {
	config, err := clientcmd.RESTConfigFromKubeConfig([]byte(kubeconfig))
	if err != nil {
		return "", NewValidationError("invalid kubeconfig: %v", err)
	}
	return config.Host, nil
}

// Inspect 拉取版本、就绪节点数和资源水位。
// 使用率按各命名空间容器requests相对节点allocatable估算。
func (cm *ClusterManager) Inspect(ctx context.Context, clientset kubernetes.Interface) (*InspectResult, error) {
	version, err := clientset.Discovery().ServerVersion()
	if err != nil {
		return nil, &ConnectivityError{Endpoint: "apiserver", Err: err}
	}

	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, &ConnectivityError{Endpoint: "apiserver", Err: err}
	}

	var allocCPU, allocMemory, allocStorage int64
	readyNodes := 0
	for _, node := range nodes.Items {
		if isNodeReady(node) {
			readyNodes++
		}
		allocCPU += node.Status.Allocatable.Cpu().MilliValue()
		allocMemory += node.Status.Allocatable.Memory().Value()
		allocStorage += node.Status.Allocatable.StorageEphemeral().Value()
	}

	var usedCPU, usedMemory, usedStorage int64
	pods, err := clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, &ConnectivityError{Endpoint: "apiserver", Err: err}
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning && pod.Status.Phase != corev1.PodPending {
			continue
		}
		for _, container := range pod.Spec.Containers {
			usedCPU += container.Resources.Requests.Cpu().MilliValue()
			usedMemory += container.Resources.Requests.Memory().Value()
			usedStorage += container.Resources.Requests.StorageEphemeral().Value()
		}
	}

	return &InspectResult{
		Version:             version.String(),
		NodeCount:           readyNodes,
		CPUUsagePercent:     percent(usedCPU, allocCPU),
		MemoryUsagePercent:  percent(usedMemory, allocMemory),
		StorageUsagePercent: percent(usedStorage, allocStorage),
	}, nil
}

// Probe 一次有界超时的连通性检查加初始盘点
func (cm *ClusterManager) Probe(ctx context.Context, kubeconfig string) (*InspectResult, error) {
	clientset, err := cm.GetClient(kubeconfig)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	result, err := cm.Inspect(probeCtx, clientset)
	if err != nil {
		return nil, err
	}

	if url, err := cm.GetAPIServerURL(kubeconfig); err == nil {
		result.APIServerURL = url
	}

	return result, nil
}

func percent(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(used) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func isNodeReady(node corev1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady && condition.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

func kubeconfigHash(kubeconfig string) string {
	hash := sha256.Sum256([]byte(kubeconfig))
	return hex.EncodeToString(hash[:])
}
