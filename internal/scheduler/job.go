// Package scheduler 提供基于 cron 的任务调度，带 Redis 分布式锁
package scheduler

import (
	"context"
	"time"
)

// Job 任务接口
type Job interface {
	// Name 任务名称
	Name() string
	// Execute 执行任务
	Execute(ctx context.Context) (*JobResult, error)
	// Timeout 任务超时时间
	Timeout() time.Duration
	// RequiresLock 是否需要分布式锁
	RequiresLock() bool
	// LockTTL 锁的 TTL (仅在 RequiresLock() 返回 true 时有效)
	LockTTL() time.Duration
}

// JobResult 任务执行结果
type JobResult struct {
	// ProcessedCount 处理的记录数
	ProcessedCount int
	// AffectedCount 影响的记录数
	AffectedCount int
	// ErrorCount 错误数
	ErrorCount int
}

// BaseJob 基础任务实现
type BaseJob struct {
	name    string
	timeout time.Duration
	lockTTL time.Duration
}

// NewBaseJob 创建基础任务
func NewBaseJob(name string, timeout, lockTTL time.Duration) BaseJob {
	return BaseJob{
		name:    name,
		timeout: timeout,
		lockTTL: lockTTL,
	}
}

// Name 任务名称
func (j BaseJob) Name() string {
	return j.name
}

// Timeout 任务超时时间
func (j BaseJob) Timeout() time.Duration {
	return j.timeout
}

// RequiresLock 是否需要分布式锁
func (j BaseJob) RequiresLock() bool {
	return j.lockTTL > 0
}

// LockTTL 锁的 TTL
func (j BaseJob) LockTTL() time.Duration {
	return j.lockTTL
}
