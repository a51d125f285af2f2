package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/config"
	"github.com/kubeharbor/kubeharbor/internal/handler"
	"github.com/kubeharbor/kubeharbor/internal/middleware"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/kubeharbor/kubeharbor/internal/service/worker"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if cfg.Database.AutoMigrate {
		log.Println("Running database migration...")
		if err := runMigrations(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	cipher, err := service.NewCipher(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("Failed to initialize cipher: %v", err)
	}

	clusterRepo := repository.NewClusterRepository(db)
	importRepo := repository.NewImportRecordRepository(db)
	scheduleRepo := repository.NewBackupScheduleRepository(db)
	recordRepo := repository.NewBackupRecordRepository(db)
	restoreRepo := repository.NewRestoreRecordRepository(db)
	credRepo := repository.NewCredentialRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)

	vault := service.NewCredentialVault(credRepo, cipher)
	clusterManager := service.NewClusterManager(cfg.ClusterManager.ClientTimeout, cfg.ClusterManager.MaxClients)
	remote := service.NewRemoteExecutor(cfg.Backup.SSHTimeout, cfg.Backup.CommandTimeout)
	storage := service.NewBackupStorage(cfg.Backup.BasePath)
	auditService := service.NewAuditService(auditRepo)

	retryPolicy := utils.RetryPolicy{
		MaxAttempts: cfg.Worker.RetryMaxAttempts,
		BaseDelay:   cfg.Worker.RetryBaseDelay,
		MaxDelay:    cfg.Worker.RetryMaxDelay,
	}

	pool := worker.NewPool(cfg.Worker.PoolSize, 0)

	orchestrator := service.NewImportOrchestrator(
		importRepo,
		clusterRepo,
		vault,
		clusterManager,
		pool,
		retryPolicy,
		auditService,
	)

	executor := service.NewBackupExecutor(
		recordRepo,
		scheduleRepo,
		clusterRepo,
		vault,
		remote,
		storage,
		clusterManager,
		retryPolicy,
	)

	backupService := service.NewBackupService(
		scheduleRepo,
		recordRepo,
		clusterRepo,
		vault,
		storage,
		auditService,
	)

	restoreService := service.NewRestoreService(
		restoreRepo,
		recordRepo,
		scheduleRepo,
		clusterRepo,
		vault,
		remote,
		auditService,
		retryPolicy,
	)

	clusterService := service.NewClusterService(clusterRepo, scheduleRepo, auditService)
	authService := service.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Username, cfg.Auth.PasswordHash)

	backupScheduler := worker.NewBackupScheduler(
		scheduleRepo,
		recordRepo,
		storage,
		executor,
		pool,
		cfg.Worker.SchedulerInterval,
	)

	metricsWorker := worker.NewMetricsWorker(
		clusterRepo,
		vault,
		clusterManager,
		cfg.Worker.PollInterval,
		cfg.Worker.PoolSize,
		cfg.Worker.DegradedThreshold,
	)

	log.Printf("Worker.Enabled: %v", cfg.Worker.Enabled)
	if cfg.Worker.Enabled {
		backupScheduler.Start()
		defer backupScheduler.Stop()

		metricsWorker.Start()
		defer metricsWorker.Stop()
	} else {
		log.Println("Workers are disabled in configuration")
	}
	defer pool.Stop()

	importHandler := handler.NewImportHandler(orchestrator)
	clusterHandler := handler.NewClusterHandler(clusterService)
	backupHandler := handler.NewBackupHandler(backupService, executor, restoreService)
	auditHandler := handler.NewAuditHandler(auditService)
	authHandler := handler.NewAuthHandler(authService)
	inventoryHandler := handler.NewInventoryHandler(inventoryRepo)

	r := setupRoutes(cfg, authService, importHandler, clusterHandler, backupHandler, auditHandler, authHandler, inventoryHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Database.Host,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.Port,
		cfg.Database.SSLMode,
		cfg.Database.Timezone,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// 容器编排下数据库可能晚于服务就绪，轮询到可达为止
	err = utils.WaitUntil(context.Background(), 2*time.Second, 30*time.Second, func(ctx context.Context) (bool, error) {
		if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
			log.Printf("Waiting for database: %v", pingErr)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("database not reachable: %w", err)
	}

	return db, nil
}

// runMigrations 按文件名顺序执行migrations目录下未执行过的SQL
func runMigrations(db *gorm.DB) error {
	if err := db.Exec("CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(255) PRIMARY KEY, applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW())").Error; err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var executed []string
	if err := db.Raw("SELECT version FROM schema_migrations").Scan(&executed).Error; err != nil {
		return fmt.Errorf("failed to get executed migrations: %w", err)
	}
	executedMap := make(map[string]bool)
	for _, v := range executed {
		executedMap[v] = true
	}

	migrationFiles, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}
	sort.Strings(migrationFiles)

	for _, file := range migrationFiles {
		filename := filepath.Base(file)
		if executedMap[filename] {
			continue
		}

		log.Printf("Executing migration: %s", filename)
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		if err := db.Exec(string(sqlBytes)).Error; err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		if err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", filename).Error; err != nil {
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
	}

	log.Println("All migrations completed")
	return nil
}

func setupRoutes(
	cfg *config.Config,
	authService *service.AuthService,
	importHandler *handler.ImportHandler,
	clusterHandler *handler.ClusterHandler,
	backupHandler *handler.BackupHandler,
	auditHandler *handler.AuditHandler,
	authHandler *handler.AuthHandler,
	inventoryHandler *handler.InventoryHandler,
) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/token", authHandler.IssueToken)
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTMiddleware(authService))
	{
		v1.GET("/audit-events", auditHandler.ListEvents)

		v1.GET("/tenants", inventoryHandler.ListTenants)
		v1.GET("/environments", inventoryHandler.ListEnvironments)
		v1.GET("/applications", inventoryHandler.ListApplications)

		clusters := v1.Group("/clusters")
		{
			clusters.GET("", clusterHandler.ListClusters)
			clusters.GET(":clusterId", clusterHandler.GetCluster)
			clusters.PUT(":clusterId", clusterHandler.UpdateCluster)
			clusters.DELETE(":clusterId", clusterHandler.DeleteCluster)

			clusters.POST("/import", importHandler.SubmitImport)
			clusters.GET("/imports", importHandler.ListImports)

			backups := clusters.Group(":clusterId/backups")
			{
				backups.POST("", backupHandler.TriggerBackup)
				backups.GET("", backupHandler.ListBackups)
			}

			schedules := clusters.Group(":clusterId/backup-schedules")
			{
				schedules.POST("", backupHandler.CreateSchedule)
				schedules.GET("", backupHandler.ListSchedules)
			}

			restores := clusters.Group(":clusterId/restores")
			{
				restores.POST("", backupHandler.StartRestore)
				restores.GET("", backupHandler.ListRestores)
			}
		}

		imports := v1.Group("/imports")
		{
			imports.GET(":importId/status", importHandler.GetImportStatus)
		}

		backupSchedules := v1.Group("/backup-schedules")
		{
			backupSchedules.GET(":scheduleId", backupHandler.GetSchedule)
			backupSchedules.PUT(":scheduleId", backupHandler.UpdateSchedule)
			backupSchedules.PATCH(":scheduleId/enabled", backupHandler.SetScheduleEnabled)
			backupSchedules.DELETE(":scheduleId", backupHandler.DeleteSchedule)
		}

		backupRecords := v1.Group("/backups")
		{
			backupRecords.GET(":backupId", backupHandler.GetBackup)
			backupRecords.DELETE(":backupId", backupHandler.DeleteBackup)
		}

		restoreRecords := v1.Group("/restores")
		{
			restoreRecords.GET(":restoreId", backupHandler.GetRestore)
		}
	}

	return r
}
