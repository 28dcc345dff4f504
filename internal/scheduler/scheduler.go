package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/pkg/logger"
)

// Scheduler 任务调度器
// 每个任务按 cron 表达式触发；需要锁的任务先抢 Redis 锁，
// 抢不到说明另一个实例正在执行，本轮跳过
type Scheduler struct {
	cron        *cron.Cron
	lockManager *LockManager
	jobs        map[string]Job
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewScheduler 创建调度器
func NewScheduler(rdb redis.UniversalClient) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()), // 支持秒级调度
		lockManager: NewLockManager(rdb),
		jobs:        make(map[string]Job),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterJob 注册任务
func (s *Scheduler) RegisterJob(job Job, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	s.jobs[job.Name()] = job

	_, err := s.cron.AddFunc(cronExpr, func() {
		s.executeJob(job)
	})
	if err != nil {
		delete(s.jobs, job.Name())
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	logger.Info("job registered",
		zap.String("job", job.Name()),
		zap.String("cron", cronExpr),
	)
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started")
}

// Stop 停止调度器，等待执行中的任务完成
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}

// TriggerJob 手动触发任务
func (s *Scheduler) TriggerJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", jobName)
	}
	go s.executeJob(job)
	return nil
}

// executeJob 执行任务
func (s *Scheduler) executeJob(job Job) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout())
	defer cancel()

	if job.RequiresLock() {
		lock := s.lockManager.NewLock(job.Name(), job.LockTTL())
		acquired, err := lock.TryLock(ctx)
		if err != nil {
			logger.Error("failed to acquire lock",
				zap.String("job", job.Name()),
				zap.Error(err),
			)
			return
		}
		if !acquired {
			logger.Debug("job is already running on another instance",
				zap.String("job", job.Name()),
			)
			return
		}
		defer func() {
			if err := lock.Unlock(context.Background()); err != nil {
				logger.Error("failed to release lock",
					zap.String("job", job.Name()),
					zap.Error(err),
				)
			}
		}()
	}

	start := time.Now()
	result, err := job.Execute(ctx)
	if err != nil {
		logger.Error("job failed",
			zap.String("job", job.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{
		zap.String("job", job.Name()),
		zap.Duration("duration", time.Since(start)),
	}
	if result != nil {
		fields = append(fields,
			zap.Int("processed", result.ProcessedCount),
			zap.Int("affected", result.AffectedCount),
			zap.Int("errors", result.ErrorCount),
		)
	}
	logger.Info("job completed", fields...)
}
