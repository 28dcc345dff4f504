package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/chain"
	"github.com/liuxiaoxue22/market/internal/config"
	"github.com/liuxiaoxue22/market/internal/metrics"
	"github.com/liuxiaoxue22/market/internal/model"
	"github.com/liuxiaoxue22/market/internal/parser"
	"github.com/liuxiaoxue22/market/internal/repository"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// SellRequest 卖单请求
type SellRequest struct {
	Seller          string // 卖家地址
	TotalPrice      string // 铭文出售总价 (Planck)
	ServiceFee      string // 服务费 (Planck)
	SignedExtrinsic string // 已签名交易
}

// SellResult 卖单结果
type SellResult struct {
	ID   int64  `json:"id"`
	Hash string `json:"hash"`
}

// BuyRequest 买单请求
type BuyRequest struct {
	ID              int64  // 订单 ID
	Buyer           string // 买家地址
	SignedExtrinsic string // 已签名交易
}

// BuyResult 买单结果
type BuyResult struct {
	ID   int64  `json:"id"`
	Hash string `json:"hash"`
}

// CancelRequest 取消挂单请求
type CancelRequest struct {
	ID     int64  // 订单 ID
	Seller string // 卖家地址
}

// CancelResult 取消挂单结果
type CancelResult struct {
	ID   int64  `json:"id"`
	Hash string `json:"hash"`
}

// ListRequest 订单列表请求
type ListRequest struct {
	Seller   string
	Statuses []model.OrderStatus
	Cursor   int64
	Limit    int
}

// ListResult 订单列表结果
type ListResult struct {
	List []*model.Order `json:"list"`
	Next int64          `json:"next,omitempty"`
}

// OrderPublisher 订单事件发布接口
type OrderPublisher interface {
	PublishOrderUpdate(ctx context.Context, order *model.Order) error
}

// OrderService 订单生命周期引擎
type OrderService interface {
	// Sell 挂单：校验交易、创建订单、提交上链并记录结果
	Sell(ctx context.Context, req *SellRequest) (*SellResult, error)
	// Buy 抢单：校验交易、原子锁定订单、提交上链并记录结果
	Buy(ctx context.Context, req *BuyRequest) (*BuyResult, error)
	// Cancel 取消挂单：平台账户把铭文转回卖家
	Cancel(ctx context.Context, req *CancelRequest) (*CancelResult, error)
	// Detail 查询订单详情
	Detail(ctx context.Context, id int64) (*model.Order, error)
	// List 查询订单列表
	List(ctx context.Context, req *ListRequest) (*ListResult, error)
}

// orderService 实现
type orderService struct {
	repo      repository.OrderRepository
	gateway   chain.Gateway
	parser    *parser.Parser
	publisher OrderPublisher

	marketAccount     string
	minSellTotalPrice decimal.Decimal // Planck
	serviceFeeRate    decimal.Decimal
}

// NewOrderService 创建订单服务
func NewOrderService(
	repo repository.OrderRepository,
	gateway chain.Gateway,
	p *parser.Parser,
	pub OrderPublisher,
	chainCfg *config.ChainConfig,
	marketCfg *config.MarketConfig,
) OrderService {
	return &orderService{
		repo:              repo,
		gateway:           gateway,
		parser:            p,
		publisher:         pub,
		marketAccount:     chainCfg.MarketAccount,
		minSellTotalPrice: chain.Dot2Planck(marketCfg.MinSellTotalPrice, chainCfg.Decimals),
		serviceFeeRate:    marketCfg.ServiceFeeRate,
	}
}

// Sell 挂单
// 所有校验通过前不产生任何状态变更；订单行在链上确认之前就已存在
// (PENDING)，崩溃后留下的是可追查的行而不是孤儿交易
func (s *orderService) Sell(ctx context.Context, req *SellRequest) (*SellResult, error) {
	totalPrice, err := parsePlanck(req.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid total price %q", ErrInvalidTransaction, req.TotalPrice)
	}
	serviceFee, err := parsePlanck(req.ServiceFee)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid service fee %q", ErrInvalidTransaction, req.ServiceFee)
	}

	ext, err := s.gateway.DecodeSignedExtrinsic(req.SignedExtrinsic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	inscribe := s.parser.ParseInscribeTransfer(ext)
	if inscribe == nil {
		return nil, fmt.Errorf("%w: not an inscribe transfer", ErrInvalidTransaction)
	}
	if ext.Signer != req.Seller {
		return nil, fmt.Errorf("%w: invalid seller: expect %s but got %s",
			ErrInvalidTransaction, req.Seller, ext.Signer)
	}
	if totalPrice.LessThan(s.minSellTotalPrice) {
		return nil, fmt.Errorf("%w: invalid total price: at least %s Planck but got %s",
			ErrInvalidTransaction, s.minSellTotalPrice, totalPrice)
	}
	if inscribe.To != s.marketAccount {
		return nil, fmt.Errorf("%w: invalid receiver address: expect %s but got %s",
			ErrInvalidTransaction, s.marketAccount, inscribe.To)
	}
	needPayPrice := totalPrice.Add(serviceFee)
	if inscribe.Value.LessThan(needPayPrice) {
		return nil, fmt.Errorf("%w: invalid transfer amount: expect at least %s Planck but got %s",
			ErrInvalidTransaction, needPayPrice, inscribe.Value)
	}

	order := &model.Order{
		Seller:          req.Seller,
		Tick:            inscribe.Tick,
		Amount:          inscribe.Amount,
		TotalPrice:      totalPrice,
		BuyServiceFee:   serviceFee,
		BuyRealPayPrice: inscribe.Value,
		SellHash:        ext.Hash,
		Status:          model.OrderStatusPending,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.submitAndRecord(ctx, order, ext, "sell",
		model.OrderStatusPending, model.ChainStatusSellBlockConfirmed, model.ChainStatusSellBlockFailed); err != nil {
		return nil, err
	}

	return &SellResult{ID: order.ID, Hash: ext.Hash}, nil
}

// Buy 抢单
func (s *orderService) Buy(ctx context.Context, req *BuyRequest) (*BuyResult, error) {
	order, err := s.repo.GetByID(ctx, req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	// 权威判定在存储层的条件更新；已不可抢的订单提前拒绝，不解码交易
	if !order.Claimable() {
		return nil, ErrOrderLocked
	}

	ext, err := s.gateway.DecodeSignedExtrinsic(req.SignedExtrinsic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	batch := s.parser.ParseBatchTransfer(ext)
	if batch == nil {
		return nil, fmt.Errorf("%w: not a batch transfer", ErrInvalidTransaction)
	}
	if ext.Signer != req.Buyer {
		return nil, fmt.Errorf("%w: invalid buyer: expect %s but got %s",
			ErrInvalidTransaction, req.Buyer, ext.Signer)
	}

	transferToSeller := findTransfer(batch.List, order.Seller)
	if transferToSeller == nil {
		return nil, fmt.Errorf("%w: not found transfer to seller %s", ErrInvalidTransaction, order.Seller)
	}
	transferToMarket := findTransfer(batch.List, s.marketAccount)
	if transferToMarket == nil {
		return nil, fmt.Errorf("%w: not found transfer to market %s", ErrInvalidTransaction, s.marketAccount)
	}

	needServiceFee := order.TotalPrice.Mul(s.serviceFeeRate).Ceil()
	if transferToSeller.Value.LessThan(order.TotalPrice) {
		return nil, fmt.Errorf("%w: invalid total price transfer amount: expect at least %s Planck but got %s",
			ErrInvalidTransaction, order.TotalPrice, transferToSeller.Value)
	}
	if transferToMarket.Value.LessThan(needServiceFee) {
		return nil, fmt.Errorf("%w: invalid service fee transfer amount: expect at least %s Planck but got %s",
			ErrInvalidTransaction, needServiceFee, transferToMarket.Value)
	}

	// 唯一的竞争点：条件更新抢锁，输者不提交上链
	claimed, err := s.repo.Claim(ctx, order.ID, req.Buyer, ext.Hash)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrOrderLocked
	}
	order.Status = model.OrderStatusLocked
	order.Buyer = req.Buyer
	order.BuyHash = ext.Hash
	metrics.OrderTransitionsTotal.WithLabelValues(string(model.OrderStatusLocked), string(order.ChainStatus)).Inc()
	s.publish(ctx, order)

	if err := s.submitAndRecord(ctx, order, ext, "buy",
		model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed, model.ChainStatusBuyBlockFailed); err != nil {
		return nil, err
	}

	return &BuyResult{ID: order.ID, Hash: ext.Hash}, nil
}

// Cancel 取消挂单
// 平台账户构造并签名铭文退回交易；cancelHash 在提交之前随状态一并落库，
// 崩溃后仍有可对账的哈希
func (s *orderService) Cancel(ctx context.Context, req *CancelRequest) (*CancelResult, error) {
	order, err := s.repo.GetByID(ctx, req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.Seller != req.Seller || !order.Cancelable() {
		return nil, ErrOrderNotCancelable
	}

	ext, err := s.gateway.BuildAndSignInscribeTransfer(ctx, order.Seller, order.Tick, order.Amount)
	if err != nil {
		return nil, fmt.Errorf("build cancel transfer: %w", err)
	}

	marked, err := s.repo.MarkCanceling(ctx, order.ID, req.Seller, ext.Hash)
	if err != nil {
		return nil, err
	}
	if !marked {
		// 并发的买家抢先锁定了订单
		return nil, ErrOrderLocked
	}
	order.Status = model.OrderStatusCanceling
	order.CancelHash = ext.Hash
	metrics.OrderTransitionsTotal.WithLabelValues(string(model.OrderStatusCanceling), string(order.ChainStatus)).Inc()
	s.publish(ctx, order)

	if err := s.submitAndRecord(ctx, order, ext, "cancel",
		model.OrderStatusCanceling, model.ChainStatusCancelBlockConfirmed, model.ChainStatusCancelBlockFailed); err != nil {
		return nil, err
	}

	return &CancelResult{ID: order.ID, Hash: ext.Hash}, nil
}

// Detail 查询订单详情
func (s *orderService) Detail(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// List 查询订单列表
func (s *orderService) List(ctx context.Context, req *ListRequest) (*ListResult, error) {
	orders, next, err := s.repo.List(ctx, &repository.OrderFilter{
		Seller:   req.Seller,
		Statuses: req.Statuses,
	}, req.Cursor, req.Limit)
	if err != nil {
		return nil, err
	}
	return &ListResult{List: orders, Next: next}, nil
}

// submitAndRecord 提交交易并等待最终化，把结果落到订单行上
//
// 失败永远先落库再返回；超时既不算成功也不算失败，订单行保持在
// 提交前的子状态，留给对账或人工处理
func (s *orderService) submitAndRecord(
	ctx context.Context,
	order *model.Order,
	ext *chain.SignedExtrinsic,
	leg string,
	expected model.OrderStatus,
	confirmed, failed model.ChainStatus,
) error {
	start := time.Now()
	result, err := s.gateway.SubmitAndWait(ctx, ext)
	metrics.ChainSubmitLatency.WithLabelValues(leg).Observe(time.Since(start).Seconds())

	if err != nil {
		// 网关层错误，链上结果未知，与超时同等对待
		metrics.ChainSubmitTotal.WithLabelValues(leg, "timeout").Inc()
		logger.Error("submit extrinsic failed with unknown outcome",
			zap.Int64("order_id", order.ID),
			zap.String("leg", leg),
			zap.Error(err),
		)
		return ErrSubmitTimeout
	}

	switch result.Outcome {
	case chain.OutcomeTimeout:
		metrics.ChainSubmitTotal.WithLabelValues(leg, "timeout").Inc()
		return ErrSubmitTimeout

	case chain.OutcomeFailed:
		metrics.ChainSubmitTotal.WithLabelValues(leg, "failed").Inc()
		if _, err := s.repo.CompareAndUpdate(ctx, order.ID, expected, map[string]interface{}{
			"status":       model.OrderStatusFailed,
			"chain_status": failed,
			"fail_reason":  result.FailReason,
		}); err != nil {
			logger.Error("record chain failure failed",
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
		}
		order.Status = model.OrderStatusFailed
		order.ChainStatus = failed
		order.FailReason = result.FailReason
		metrics.OrderTransitionsTotal.WithLabelValues(string(model.OrderStatusFailed), string(failed)).Inc()
		s.publish(ctx, order)
		return fmt.Errorf("%w: %s", ErrTransferFailed, result.FailReason)

	default: // OutcomeFinalized
		metrics.ChainSubmitTotal.WithLabelValues(leg, "finalized").Inc()
		if _, err := s.repo.CompareAndUpdate(ctx, order.ID, expected, map[string]interface{}{
			"chain_status": confirmed,
		}); err != nil {
			return err
		}
		order.ChainStatus = confirmed
		metrics.OrderTransitionsTotal.WithLabelValues(string(expected), string(confirmed)).Inc()
		s.publish(ctx, order)
		return nil
	}
}

// publish 发布订单事件，尽力而为
func (s *orderService) publish(ctx context.Context, order *model.Order) {
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

// findTransfer 返回第一笔转给指定地址的转账
func findTransfer(list []parser.TransferItem, to string) *parser.TransferItem {
	for i := range list {
		if list[i].To == to {
			return &list[i]
		}
	}
	return nil
}

// parsePlanck 解析 Planck 金额，必须为非负整数
func parsePlanck(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("not a non-negative integer: %s", s)
	}
	return d, nil
}
