package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Encryption     EncryptionConfig     `mapstructure:"encryption"`
	ClusterManager ClusterManagerConfig `mapstructure:"cluster_manager"`
	Worker         WorkerConfig         `mapstructure:"worker"`
	Backup         BackupConfig         `mapstructure:"backup"`
	Auth           AuthConfig           `mapstructure:"auth"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	Timezone        string        `mapstructure:"timezone"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type EncryptionConfig struct {
	Key string `mapstructure:"key"`
}

type ClusterManagerConfig struct {
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
	MaxClients    int           `mapstructure:"max_clients"`
}

// WorkerConfig 后台任务：探测/备份共用的工作池、轮询间隔与重试策略
type WorkerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	PoolSize          int           `mapstructure:"pool_size"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
	RetryMaxAttempts  int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	DegradedThreshold int           `mapstructure:"degraded_threshold"`
}

type BackupConfig struct {
	BasePath       string        `mapstructure:"base_path"`
	SSHTimeout     time.Duration `mapstructure:"ssh_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	// 服务账号口令存bcrypt哈希
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("cluster_manager.client_timeout", 30*time.Second)
	viper.SetDefault("cluster_manager.max_clients", 50)
	viper.SetDefault("worker.enabled", true)
	viper.SetDefault("worker.pool_size", 4)
	viper.SetDefault("worker.poll_interval", 60*time.Second)
	viper.SetDefault("worker.scheduler_interval", 30*time.Second)
	viper.SetDefault("worker.retry_max_attempts", 3)
	viper.SetDefault("worker.retry_base_delay", 2*time.Second)
	viper.SetDefault("worker.retry_max_delay", 30*time.Second)
	viper.SetDefault("worker.degraded_threshold", 3)
	viper.SetDefault("backup.base_path", "/backups")
	viper.SetDefault("backup.ssh_timeout", 30*time.Second)
	viper.SetDefault("backup.command_timeout", 5*time.Minute)
	viper.SetDefault("auth.token_ttl", 24*time.Hour)
}
