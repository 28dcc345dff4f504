// Package worker 把对账扫描绑定为调度任务
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/liuxiaoxue22/market/internal/config"
	"github.com/liuxiaoxue22/market/internal/scheduler"
	"github.com/liuxiaoxue22/market/internal/service"
)

// 任务名称常量
const (
	JobNameSellInscribeCheck   = "sell-inscribe-check"
	JobNameCancelInscribeCheck = "cancel-inscribe-check"
	JobNameRelaySubmit         = "relay-submit"
	JobNameTradeInscribeCheck  = "trade-inscribe-check"
)

// sweepFunc 一轮对账扫描
type sweepFunc func(ctx context.Context) (*service.SweepStats, error)

// SweepJob 对账扫描任务
type SweepJob struct {
	scheduler.BaseJob
	sweep sweepFunc
}

// NewSweepJob 创建对账扫描任务
func NewSweepJob(name string, timeout, lockTTL time.Duration, sweep sweepFunc) *SweepJob {
	return &SweepJob{
		BaseJob: scheduler.NewBaseJob(name, timeout, lockTTL),
		sweep:   sweep,
	}
}

// Execute 执行扫描
func (j *SweepJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	stats, err := j.sweep(ctx)
	if err != nil {
		return nil, err
	}
	return &scheduler.JobResult{
		ProcessedCount: stats.Processed,
		AffectedCount:  stats.Advanced + stats.Failed,
	}, nil
}

// Register 把四个对账扫描注册到调度器
//
// 扫描之间相互独立，各用一把锁；relay-submit 涉及真实转账，
// 锁 TTL 要覆盖最长的链上提交等待时间
func Register(sched *scheduler.Scheduler, trade service.TradeService, cfg *config.WorkerConfig, chainCfg *config.ChainConfig) error {
	interval := cfg.SweepIntervalSec
	if interval <= 0 {
		interval = 30
	}
	cronExpr := fmt.Sprintf("*/%d * * * * *", interval)

	lockTTL := time.Duration(cfg.LockTTLSec) * time.Second
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	timeout := lockTTL * 4 / 5

	// relay-submit 每个订单都可能等待一次链上最终化
	relayTimeout := time.Duration(chainCfg.SubmitTimeoutSec)*time.Second + timeout
	relayLockTTL := relayTimeout + lockTTL

	jobs := []*SweepJob{
		NewSweepJob(JobNameSellInscribeCheck, timeout, lockTTL, trade.SellInscribeCheck),
		NewSweepJob(JobNameCancelInscribeCheck, timeout, lockTTL, trade.CancelInscribeCheck),
		NewSweepJob(JobNameRelaySubmit, relayTimeout, relayLockTTL, trade.RelaySubmit),
		NewSweepJob(JobNameTradeInscribeCheck, timeout, lockTTL, trade.TradeInscribeCheck),
	}
	for _, job := range jobs {
		if err := sched.RegisterJob(job, cronExpr); err != nil {
			return err
		}
	}
	return nil
}
