package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/robfig/cron/v3"
)

// ScheduledRunner 执行一次计划触发的备份
type ScheduledRunner interface {
	ScheduleBusy(scheduleID uuid.UUID) bool
	RunScheduled(ctx context.Context, schedule *model.BackupSchedule) (*model.BackupRecord, error)
}

// BackupScheduler 周期扫描启用的备份计划，越过触发点就派发一次运行。
// 触发判定基于持久化的last_run_at水位线而不是内存定时器：
// 进程重启后错过的多个触发点只补跑一次，不会逐个回放。
type BackupScheduler struct {
	scheduleRepo *repository.BackupScheduleRepository
	recordRepo   *repository.BackupRecordRepository
	storage      *service.BackupStorage
	runner       ScheduledRunner
	pool         *Pool
	interval     time.Duration

	// 测试注入时钟
	now func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBackupScheduler(
	scheduleRepo *repository.BackupScheduleRepository,
	recordRepo *repository.BackupRecordRepository,
	storage *service.BackupStorage,
	runner ScheduledRunner,
	pool *Pool,
	interval time.Duration,
) *BackupScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &BackupScheduler{
		scheduleRepo: scheduleRepo,
		recordRepo:   recordRepo,
		storage:      storage,
		runner:       runner,
		pool:         pool,
		interval:     interval,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *BackupScheduler) Start() {
	log.Println("[SCHEDULER] Starting backup scheduler...")

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
				w.Tick(w.ctx)
			}
		}
	}()

	log.Println("[SCHEDULER] Backup scheduler started")
}

func (w *BackupScheduler) Stop() {
	log.Println("[SCHEDULER] Stopping backup scheduler...")
	w.cancel()
	w.wg.Wait()
	log.Println("[SCHEDULER] Backup scheduler stopped")
}

// Tick 扫描一轮全部启用的计划
func (w *BackupScheduler) Tick(ctx context.Context) {
	schedules, err := w.scheduleRepo.ListEnabled()
	if err != nil {
		log.Printf("[SCHEDULER] Failed to load backup schedules: %v", err)
		return
	}

	now := w.now()
	for _, schedule := range schedules {
		w.evaluate(ctx, schedule, now)
	}
}

// evaluate 判定单个计划是否越过触发点，越过则派发一次
func (w *BackupScheduler) evaluate(ctx context.Context, schedule *model.BackupSchedule, now time.Time) {
	spec, err := cron.ParseStandard(schedule.CronExpr)
	if err != nil {
		log.Printf("[SCHEDULER] Schedule %s has invalid cron expression %q: %v", schedule.ID, schedule.CronExpr, err)
		return
	}

	loc := time.UTC
	if schedule.Timezone != "" {
		loc, err = time.LoadLocation(schedule.Timezone)
		if err != nil {
			log.Printf("[SCHEDULER] Schedule %s has invalid timezone %q: %v", schedule.ID, schedule.Timezone, err)
			return
		}
	}

	// 水位线：上次触发时间，从未触发过则用创建时间
	watermark := schedule.CreatedAt
	if schedule.LastRunAt != nil {
		watermark = *schedule.LastRunAt
	}

	next := spec.Next(watermark.In(loc))
	if next.After(now) {
		return
	}

	// 上一次还在跑就跳过本次触发点，不排队
	if w.runner.ScheduleBusy(schedule.ID) {
		log.Printf("[SCHEDULER] Schedule %s still has a run in flight, skipping trigger", schedule.ID)
		return
	}

	// 先推水位线再派发：停机期间积压的多个触发点坍缩成这一次
	trigger := now
	schedule.LastRunAt = &trigger
	if err := w.scheduleRepo.MarkTriggered(schedule); err != nil {
		log.Printf("[SCHEDULER] Failed to mark schedule %s triggered: %v", schedule.ID, err)
		return
	}

	dispatched := w.pool.Submit(func(taskCtx context.Context) {
		w.runOnce(taskCtx, schedule)
	})
	if !dispatched {
		go w.runOnce(ctx, schedule)
	}
}

func (w *BackupScheduler) runOnce(ctx context.Context, schedule *model.BackupSchedule) {
	record, err := w.runner.RunScheduled(ctx, schedule)
	if err != nil {
		log.Printf("[SCHEDULER] Scheduled run for %s rejected: %v", schedule.ID, err)
		return
	}

	if record.Status == model.BackupStatusSucceeded {
		w.Prune(schedule)
	}
}

// Prune 按保留天数清理该计划的历史记录，最旧的先删。
// 最近一次成功的备份永远保留，哪怕它已超期。
func (w *BackupScheduler) Prune(schedule *model.BackupSchedule) {
	if schedule.RetentionDays <= 0 {
		return
	}

	cutoff := w.now().AddDate(0, 0, -schedule.RetentionDays)

	keep, err := w.recordRepo.LatestSucceeded(schedule.ID)
	if err != nil {
		log.Printf("[SCHEDULER] Failed to find latest succeeded backup for schedule %s: %v", schedule.ID, err)
		return
	}

	expired, err := w.recordRepo.ListTerminalBefore(schedule.ID, cutoff)
	if err != nil {
		log.Printf("[SCHEDULER] Failed to list expired backups for schedule %s: %v", schedule.ID, err)
		return
	}

	for _, record := range expired {
		if keep != nil && record.ID == keep.ID {
			continue
		}

		if record.ArtifactRef != "" {
			if err := w.storage.RemoveArtifact(record.ArtifactRef); err != nil {
				log.Printf("[SCHEDULER] Failed to remove artifact %s: %v", record.ArtifactRef, err)
				continue
			}
		}
		if err := w.recordRepo.Delete(record.ID.String()); err != nil {
			log.Printf("[SCHEDULER] Failed to delete expired backup record %s: %v", record.ID, err)
			continue
		}
		log.Printf("[SCHEDULER] Pruned expired backup %s (schedule %s)", record.ID, schedule.ID)
	}
}
