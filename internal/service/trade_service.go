package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/chain"
	"github.com/liuxiaoxue22/market/internal/indexer"
	"github.com/liuxiaoxue22/market/internal/metrics"
	"github.com/liuxiaoxue22/market/internal/model"
	"github.com/liuxiaoxue22/market/internal/repository"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// 铭文不足的固定失败原因
const failReasonInscribeNotEnough = "Inscribe not enough"

// SweepStats 单轮扫描统计
type SweepStats struct {
	Processed int // 扫描的订单数
	Advanced  int // 状态推进的订单数
	Failed    int // 转入失败终态的订单数
}

// TradeService 对账服务
//
// 四个扫描各自作用于一个 (status, chainStatus) 桶，按 id 升序处理。
// 全部无状态且幂等：每次状态变更都以期望的前置状态为条件，崩溃后
// 重跑安全；单行错误只记录日志并继续，不会中断整轮扫描。
type TradeService interface {
	// SellInscribeCheck 挂单铭文确认：(PENDING, SELL_BLOCK_CONFIRMED)
	SellInscribeCheck(ctx context.Context) (*SweepStats, error)
	// CancelInscribeCheck 取消铭文确认：(CANCELING, CANCEL_BLOCK_CONFIRMED)
	CancelInscribeCheck(ctx context.Context) (*SweepStats, error)
	// RelaySubmit 买家付款确认后，平台转铭文给买家：(LOCKED, BUY_BLOCK_CONFIRMED)
	RelaySubmit(ctx context.Context) (*SweepStats, error)
	// TradeInscribeCheck 平台转账铭文确认：(LOCKED, TRADE_BLOCK_CONFIRMED)
	TradeInscribeCheck(ctx context.Context) (*SweepStats, error)
}

// tradeService 实现
type tradeService struct {
	repo      repository.OrderRepository
	gateway   chain.Gateway
	indexer   indexer.Client
	publisher OrderPublisher
	batchSize int
}

// NewTradeService 创建对账服务
func NewTradeService(
	repo repository.OrderRepository,
	gateway chain.Gateway,
	idx indexer.Client,
	pub OrderPublisher,
	batchSize int,
) TradeService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &tradeService{
		repo:      repo,
		gateway:   gateway,
		indexer:   idx,
		publisher: pub,
		batchSize: batchSize,
	}
}

// SellInscribeCheck 挂单铭文确认
func (s *tradeService) SellInscribeCheck(ctx context.Context) (*SweepStats, error) {
	return s.inscribeCheck(ctx, "sell_inscribe_check",
		model.OrderStatusPending, model.ChainStatusSellBlockConfirmed,
		func(o *model.Order) string { return o.SellHash },
		confirmTarget{
			status:      model.OrderStatusListing,
			chainStatus: model.ChainStatusSellInscribeConfirmed,
			timeField:   "listing_at",
		},
		model.ChainStatusSellInscribeFailed,
	)
}

// CancelInscribeCheck 取消铭文确认
func (s *tradeService) CancelInscribeCheck(ctx context.Context) (*SweepStats, error) {
	return s.inscribeCheck(ctx, "cancel_inscribe_check",
		model.OrderStatusCanceling, model.ChainStatusCancelBlockConfirmed,
		func(o *model.Order) string { return o.CancelHash },
		confirmTarget{
			status:      model.OrderStatusCanceled,
			chainStatus: model.ChainStatusCancelInscribeConfirmed,
			timeField:   "canceled_at",
		},
		model.ChainStatusCancelInscribeFailed,
	)
}

// TradeInscribeCheck 平台转账铭文确认
func (s *tradeService) TradeInscribeCheck(ctx context.Context) (*SweepStats, error) {
	return s.inscribeCheck(ctx, "trade_inscribe_check",
		model.OrderStatusLocked, model.ChainStatusTradeBlockConfirmed,
		func(o *model.Order) string { return o.TradeHash },
		confirmTarget{
			status:      model.OrderStatusSold,
			chainStatus: model.ChainStatusTradeInscribeConfirmed,
			timeField:   "sold_at",
		},
		model.ChainStatusTradeInscribeFailed,
	)
}

// confirmTarget 铭文确认成功时的目标状态
type confirmTarget struct {
	status      model.OrderStatus
	chainStatus model.ChainStatus
	timeField   string // 对应的阶段时间戳列，仅设置一次
}

// inscribeCheck 轮询索引服务，推进一个 (status, chainStatus) 桶
// 状态码 1 推进到目标状态；9 转入失败终态；其余保持不变等待下一轮
func (s *tradeService) inscribeCheck(
	ctx context.Context,
	sweep string,
	status model.OrderStatus,
	chainStatus model.ChainStatus,
	hashOf func(*model.Order) string,
	target confirmTarget,
	failedStatus model.ChainStatus,
) (*SweepStats, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
	}()

	orders, err := s.repo.ListBucket(ctx, status, chainStatus, s.batchSize)
	if err != nil {
		return nil, err
	}

	stats := &SweepStats{}
	for _, order := range orders {
		stats.Processed++

		hash := hashOf(order)
		if hash == "" {
			// 不应出现；跳过并告警，避免整轮中断
			logger.Warn("order in bucket without tx hash",
				zap.String("sweep", sweep),
				zap.Int64("order_id", order.ID),
			)
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "skipped").Inc()
			continue
		}

		code, err := s.indexer.TransactionStatus(ctx, hash)
		if err != nil {
			metrics.IndexerPollsTotal.WithLabelValues("error").Inc()
			logger.Warn("indexer poll failed",
				zap.String("sweep", sweep),
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "error").Inc()
			continue
		}

		switch code {
		case indexer.StatusConfirmed:
			metrics.IndexerPollsTotal.WithLabelValues("confirmed").Inc()
			updates := map[string]interface{}{
				"status":         target.status,
				"chain_status":   target.chainStatus,
				target.timeField: time.Now().UnixMilli(),
			}
			affected, err := s.repo.CompareAndUpdate(ctx, order.ID, status, updates)
			if err != nil {
				logger.Error("advance order failed",
					zap.String("sweep", sweep),
					zap.Int64("order_id", order.ID),
					zap.Error(err),
				)
				metrics.SweepOrdersTotal.WithLabelValues(sweep, "error").Inc()
				continue
			}
			if affected == 0 {
				metrics.SweepOrdersTotal.WithLabelValues(sweep, "skipped").Inc()
				continue
			}
			stats.Advanced++
			order.Status = target.status
			order.ChainStatus = target.chainStatus
			metrics.OrderTransitionsTotal.WithLabelValues(string(target.status), string(target.chainStatus)).Inc()
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "advanced").Inc()
			s.publish(ctx, order)

		case indexer.StatusInsufficientBalance:
			metrics.IndexerPollsTotal.WithLabelValues("insufficient").Inc()
			affected, err := s.repo.CompareAndUpdate(ctx, order.ID, status, map[string]interface{}{
				"status":       model.OrderStatusFailed,
				"chain_status": failedStatus,
				"fail_reason":  failReasonInscribeNotEnough,
			})
			if err != nil {
				logger.Error("mark order failed error",
					zap.String("sweep", sweep),
					zap.Int64("order_id", order.ID),
					zap.Error(err),
				)
				metrics.SweepOrdersTotal.WithLabelValues(sweep, "error").Inc()
				continue
			}
			if affected == 0 {
				metrics.SweepOrdersTotal.WithLabelValues(sweep, "skipped").Inc()
				continue
			}
			stats.Failed++
			order.Status = model.OrderStatusFailed
			order.ChainStatus = failedStatus
			order.FailReason = failReasonInscribeNotEnough
			metrics.OrderTransitionsTotal.WithLabelValues(string(model.OrderStatusFailed), string(failedStatus)).Inc()
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "failed").Inc()
			s.publish(ctx, order)

		default:
			// 待定，下一轮重试
			metrics.IndexerPollsTotal.WithLabelValues("pending").Inc()
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "skipped").Inc()
		}
	}
	return stats, nil
}

// RelaySubmit 平台转铭文给买家
//
// trade_hash 为空是幂等屏障：哈希在提交之前落库，崩溃或并发重跑
// 都不会对同一订单发出第二笔转账
func (s *tradeService) RelaySubmit(ctx context.Context) (*SweepStats, error) {
	const sweep = "relay_submit"
	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
	}()

	orders, err := s.repo.ListBucket(ctx, model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed, s.batchSize)
	if err != nil {
		return nil, err
	}

	stats := &SweepStats{}
	for _, order := range orders {
		stats.Processed++

		// 已经转账过的跳过；行里有哈希可供人工对账
		if order.TradeHash != "" {
			logger.Warn("relay already has trade hash, needs reconciliation",
				zap.Int64("order_id", order.ID),
				zap.String("trade_hash", order.TradeHash),
			)
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "skipped").Inc()
			continue
		}

		ext, err := s.gateway.BuildAndSignInscribeTransfer(ctx, order.Buyer, order.Tick, order.Amount)
		if err != nil {
			logger.Error("build relay transfer failed",
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "error").Inc()
			continue
		}

		// 先落库哈希再提交：签名后崩溃也留有可对账的记录
		set, err := s.repo.SetTradeHash(ctx, order.ID, ext.Hash)
		if err != nil {
			logger.Error("persist trade hash failed",
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "error").Inc()
			continue
		}
		if !set {
			// 并发的另一轮扫描已处理
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "skipped").Inc()
			continue
		}
		order.TradeHash = ext.Hash

		result, err := s.gateway.SubmitAndWait(ctx, ext)
		if err != nil || result.Outcome == chain.OutcomeTimeout {
			// 结果未知：保留已落库的哈希，留待人工或重启后对账
			metrics.ChainSubmitTotal.WithLabelValues("trade", "timeout").Inc()
			logger.Error("relay submit outcome unknown",
				zap.Int64("order_id", order.ID),
				zap.String("trade_hash", ext.Hash),
				zap.Error(err),
			)
			continue
		}

		if result.Outcome == chain.OutcomeFailed {
			metrics.ChainSubmitTotal.WithLabelValues("trade", "failed").Inc()
			if _, err := s.repo.CompareAndUpdate(ctx, order.ID, model.OrderStatusLocked, map[string]interface{}{
				"status":       model.OrderStatusFailed,
				"chain_status": model.ChainStatusTradeBlockFailed,
				"fail_reason":  result.FailReason,
			}); err != nil {
				logger.Error("record relay failure failed",
					zap.Int64("order_id", order.ID),
					zap.Error(err),
				)
				metrics.SweepOrdersTotal.WithLabelValues(sweep, "error").Inc()
				continue
			}
			stats.Failed++
			order.Status = model.OrderStatusFailed
			order.ChainStatus = model.ChainStatusTradeBlockFailed
			order.FailReason = result.FailReason
			metrics.OrderTransitionsTotal.WithLabelValues(string(model.OrderStatusFailed), string(model.ChainStatusTradeBlockFailed)).Inc()
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "failed").Inc()
			s.publish(ctx, order)
			continue
		}

		metrics.ChainSubmitTotal.WithLabelValues("trade", "finalized").Inc()
		if _, err := s.repo.CompareAndUpdate(ctx, order.ID, model.OrderStatusLocked, map[string]interface{}{
			"chain_status": model.ChainStatusTradeBlockConfirmed,
		}); err != nil {
			logger.Error("record relay confirmation failed",
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
			metrics.SweepOrdersTotal.WithLabelValues(sweep, "error").Inc()
			continue
		}
		stats.Advanced++
		order.ChainStatus = model.ChainStatusTradeBlockConfirmed
		metrics.OrderTransitionsTotal.WithLabelValues(string(model.OrderStatusLocked), string(model.ChainStatusTradeBlockConfirmed)).Inc()
		metrics.SweepOrdersTotal.WithLabelValues(sweep, "advanced").Inc()
		s.publish(ctx, order)
	}
	return stats, nil
}

// publish 发布订单事件，尽力而为
func (s *tradeService) publish(ctx context.Context, order *model.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderUpdate(ctx, order); err != nil {
		logger.Warn("publish order update failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}
}
