package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"
)

// ResourceDumper 把集群资源逐个导出为YAML文件。
// 单个资源类型失败不终止整次导出，只记日志。
type ResourceDumper struct {
	clientset kubernetes.Interface
}

func NewResourceDumper(clientset kubernetes.Interface) *ResourceDumper {
	return &ResourceDumper{clientset: clientset}
}

// namespacedLister 列出某命名空间下某类型的全部对象
type namespacedLister func(ctx context.Context, namespace string) ([]runtime.Object, []string, error)

// Dump 导出集群级与命名空间级资源到runPath/resources
func (d *ResourceDumper) Dump(ctx context.Context, runPath string) error {
	resourcesPath := filepath.Join(runPath, "resources")
	if err := os.MkdirAll(resourcesPath, 0755); err != nil {
		return fmt.Errorf("failed to create resources directory: %w", err)
	}

	log.Println("[RESOURCE-BACKUP] Starting cluster resource dump")

	if err := d.dumpClusterScoped(ctx, resourcesPath); err != nil {
		return err
	}

	namespaces, err := d.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return &ConnectivityError{Endpoint: "apiserver", Err: err}
	}

	listers := map[string]namespacedLister{
		"configmaps":             d.listConfigMaps,
		"secrets":                d.listSecrets,
		"services":               d.listServices,
		"deployments":            d.listDeployments,
		"statefulsets":           d.listStatefulSets,
		"daemonsets":             d.listDaemonSets,
		"ingresses":              d.listIngresses,
		"persistentvolumeclaims": d.listPersistentVolumeClaims,
	}

	for _, ns := range namespaces.Items {
		if isSystemNamespace(ns.Name) {
			continue
		}

		if err := d.writeObject(resourcesPath, "namespaces", fmt.Sprintf("namespace-%s.yaml", ns.Name), &ns); err != nil {
			return err
		}

		for resourceType, list := range listers {
			objects, names, err := list(ctx, ns.Name)
			if err != nil {
				log.Printf("[RESOURCE-BACKUP] Warning: failed to list %s in %s: %v", resourceType, ns.Name, err)
				continue
			}
			for i, obj := range objects {
				filename := fmt.Sprintf("%s-%s-%s.yaml", resourceType, ns.Name, names[i])
				if err := d.writeObject(resourcesPath, resourceType, filename, obj); err != nil {
					return err
				}
			}
		}
	}

	log.Println("[RESOURCE-BACKUP] Cluster resource dump completed")
	return nil
}

// dumpClusterScoped 节点与PV不属于任何命名空间，单独导出
func (d *ResourceDumper) dumpClusterScoped(ctx context.Context, resourcesPath string) error {
	nodes, err := d.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return &ConnectivityError{Endpoint: "apiserver", Err: err}
	}
	for i := range nodes.Items {
		node := &nodes.Items[i]
		if err := d.writeObject(resourcesPath, "nodes", fmt.Sprintf("node-%s.yaml", node.Name), node); err != nil {
			return err
		}
	}

	pvs, err := d.clientset.CoreV1().PersistentVolumes().List(ctx, metav1.ListOptions{})
	if err != nil {
		log.Printf("[RESOURCE-BACKUP] Warning: failed to list persistentvolumes: %v", err)
		return nil
	}
	for i := range pvs.Items {
		pv := &pvs.Items[i]
		if err := d.writeObject(resourcesPath, "persistentvolumes", fmt.Sprintf("persistentvolume-%s.yaml", pv.Name), pv); err != nil {
			return err
		}
	}

	return nil
}

func (d *ResourceDumper) writeObject(resourcesPath, resourceType, filename string, obj interface{}) error {
	dir := filepath.Join(resourcesPath, resourceType)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create resource directory: %w", err)
	}

	data, err := yaml.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filename, err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

func (d *ResourceDumper) listConfigMaps(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

func (d *ResourceDumper) listSecrets(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

func (d *ResourceDumper) listServices(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

func (d *ResourceDumper) listDeployments(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

func (d *ResourceDumper) listStatefulSets(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

func (d *ResourceDumper) listDaemonSets(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.AppsV1().DaemonSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

func (d *ResourceDumper) listIngresses(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

func (d *ResourceDumper) listPersistentVolumeClaims(ctx context.Context, namespace string) ([]runtime.Object, []string, error) {
	list, err := d.clientset.CoreV1().PersistentVolumeClaims(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, err
	}
	objects := make([]runtime.Object, 0, len(list.Items))
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
		names = append(names, list.Items[i].Name)
	}
	return objects, names, nil
}

// isSystemNamespace 系统命名空间不纳入资源导出
func isSystemNamespace(namespace string) bool {
	switch namespace {
	case "kube-system", "kube-public", "kube-node-lease",
		"gatekeeper-system", "istio-system", "monitoring", "logging":
		return true
	}
	return false
}
