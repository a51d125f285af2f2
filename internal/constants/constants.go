package constants

const (
	DefaultTimezone    = "UTC"
	DefaultEtcdDataDir = "/var/lib/etcd"
	DefaultEtcdctlPath = "/usr/bin/etcdctl"
	DefaultSSHPort     = 22

	// 远端快照落盘目录
	RemoteSnapshotDir = "/backup"
)

const (
	CredentialNameKubeconfig = "kubeconfig"
	CredentialNameSSH        = "etcd-ssh"
)

const (
	AuditActionImport         = "import"
	AuditActionDelete         = "delete"
	AuditActionBackup         = "backup"
	AuditActionRestore        = "restore"
	AuditActionScheduleCreate = "schedule-create"
	AuditActionScheduleUpdate = "schedule-update"
	AuditActionScheduleDelete = "schedule-delete"
)

const (
	ResourceTypeCluster  = "cluster"
	ResourceTypeBackup   = "backup"
	ResourceTypeSchedule = "schedule"
	ResourceTypeRestore  = "restore"
)
