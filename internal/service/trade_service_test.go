package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/liuxiaoxue22/market/internal/chain"
	"github.com/liuxiaoxue22/market/internal/indexer"
	"github.com/liuxiaoxue22/market/internal/model"
)

func pendingOrder(id int64, sellHash string) *model.Order {
	return &model.Order{
		ID:          id,
		Seller:      testSeller,
		Tick:        "DOTA",
		Amount:      decimal.NewFromInt(1000),
		TotalPrice:  decimal.NewFromInt(20_000_000_000),
		SellHash:    sellHash,
		Status:      model.OrderStatusPending,
		ChainStatus: model.ChainStatusSellBlockConfirmed,
	}
}

func lockedOrder(id int64) *model.Order {
	return &model.Order{
		ID:          id,
		Seller:      testSeller,
		Buyer:       testBuyer,
		Tick:        "DOTA",
		Amount:      decimal.NewFromInt(1000),
		TotalPrice:  decimal.NewFromInt(20_000_000_000),
		BuyHash:     testTxHash,
		Status:      model.OrderStatusLocked,
		ChainStatus: model.ChainStatusBuyBlockConfirmed,
	}
}

// ========== 铭文确认扫描 ==========

func TestTradeService_SellInscribeCheck_Confirmed(t *testing.T) {
	repo := new(MockOrderRepository)
	idx := new(MockIndexerClient)
	svc := NewTradeService(repo, nil, idx, nil, 100)

	ctx := context.Background()
	repo.On("ListBucket", ctx, model.OrderStatusPending, model.ChainStatusSellBlockConfirmed, 100).
		Return([]*model.Order{pendingOrder(1, testTxHash)}, nil)
	idx.On("TransactionStatus", ctx, testTxHash).Return(indexer.StatusConfirmed, nil)
	repo.On("CompareAndUpdate", ctx, int64(1), model.OrderStatusPending, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == model.OrderStatusListing &&
			u["chain_status"] == model.ChainStatusSellInscribeConfirmed &&
			u["listing_at"] != nil
	})).Return(int64(1), nil)

	stats, err := svc.SellInscribeCheck(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Advanced)
	assert.Equal(t, 0, stats.Failed)
	repo.AssertExpectations(t)
}

func TestTradeService_SellInscribeCheck_InsufficientBalance(t *testing.T) {
	repo := new(MockOrderRepository)
	idx := new(MockIndexerClient)
	svc := NewTradeService(repo, nil, idx, nil, 100)

	ctx := context.Background()
	repo.On("ListBucket", ctx, model.OrderStatusPending, model.ChainStatusSellBlockConfirmed, 100).
		Return([]*model.Order{pendingOrder(1, testTxHash)}, nil)
	idx.On("TransactionStatus", ctx, testTxHash).Return(indexer.StatusInsufficientBalance, nil)
	repo.On("CompareAndUpdate", ctx, int64(1), model.OrderStatusPending, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == model.OrderStatusFailed &&
			u["chain_status"] == model.ChainStatusSellInscribeFailed &&
			u["fail_reason"] == "Inscribe not enough"
	})).Return(int64(1), nil)

	stats, err := svc.SellInscribeCheck(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	repo.AssertExpectations(t)
}

func TestTradeService_SellInscribeCheck_PendingLeftUntouched(t *testing.T) {
	repo := new(MockOrderRepository)
	idx := new(MockIndexerClient)
	svc := NewTradeService(repo, nil, idx, nil, 100)

	ctx := context.Background()
	repo.On("ListBucket", ctx, model.OrderStatusPending, model.ChainStatusSellBlockConfirmed, 100).
		Return([]*model.Order{pendingOrder(1, testTxHash)}, nil)
	// 索引尚未出结论
	idx.On("TransactionStatus", ctx, testTxHash).Return(0, nil)

	stats, err := svc.SellInscribeCheck(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Advanced)
	assert.Equal(t, 0, stats.Failed)
	repo.AssertNotCalled(t, "CompareAndUpdate")
}

func TestTradeService_SellInscribeCheck_IndexerErrorIsolated(t *testing.T) {
	repo := new(MockOrderRepository)
	idx := new(MockIndexerClient)
	svc := NewTradeService(repo, nil, idx, nil, 100)

	ctx := context.Background()
	bad := pendingOrder(1, "0xbad")
	good := pendingOrder(2, testTxHash)
	repo.On("ListBucket", ctx, model.OrderStatusPending, model.ChainStatusSellBlockConfirmed, 100).
		Return([]*model.Order{bad, good}, nil)
	// 第一行查询失败，不影响第二行推进
	idx.On("TransactionStatus", ctx, "0xbad").Return(0, errors.New("indexer down"))
	idx.On("TransactionStatus", ctx, testTxHash).Return(indexer.StatusConfirmed, nil)
	repo.On("CompareAndUpdate", ctx, int64(2), model.OrderStatusPending, mock.Anything).Return(int64(1), nil)

	stats, err := svc.SellInscribeCheck(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Advanced)
	repo.AssertExpectations(t)
}

func TestTradeService_CancelInscribeCheck_Confirmed(t *testing.T) {
	repo := new(MockOrderRepository)
	idx := new(MockIndexerClient)
	svc := NewTradeService(repo, nil, idx, nil, 100)

	ctx := context.Background()
	order := &model.Order{
		ID:          3,
		Seller:      testSeller,
		CancelHash:  "0x4444",
		Status:      model.OrderStatusCanceling,
		ChainStatus: model.ChainStatusCancelBlockConfirmed,
	}
	repo.On("ListBucket", ctx, model.OrderStatusCanceling, model.ChainStatusCancelBlockConfirmed, 100).
		Return([]*model.Order{order}, nil)
	idx.On("TransactionStatus", ctx, "0x4444").Return(indexer.StatusConfirmed, nil)
	repo.On("CompareAndUpdate", ctx, int64(3), model.OrderStatusCanceling, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == model.OrderStatusCanceled &&
			u["chain_status"] == model.ChainStatusCancelInscribeConfirmed &&
			u["canceled_at"] != nil
	})).Return(int64(1), nil)

	stats, err := svc.CancelInscribeCheck(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Advanced)
	repo.AssertExpectations(t)
}

func TestTradeService_TradeInscribeCheck_Confirmed(t *testing.T) {
	repo := new(MockOrderRepository)
	idx := new(MockIndexerClient)
	svc := NewTradeService(repo, nil, idx, nil, 100)

	ctx := context.Background()
	order := lockedOrder(5)
	order.ChainStatus = model.ChainStatusTradeBlockConfirmed
	order.TradeHash = "0x5555"
	repo.On("ListBucket", ctx, model.OrderStatusLocked, model.ChainStatusTradeBlockConfirmed, 100).
		Return([]*model.Order{order}, nil)
	idx.On("TransactionStatus", ctx, "0x5555").Return(indexer.StatusConfirmed, nil)
	repo.On("CompareAndUpdate", ctx, int64(5), model.OrderStatusLocked, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == model.OrderStatusSold &&
			u["chain_status"] == model.ChainStatusTradeInscribeConfirmed &&
			u["sold_at"] != nil
	})).Return(int64(1), nil)

	stats, err := svc.TradeInscribeCheck(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Advanced)
	repo.AssertExpectations(t)
}

// ========== 平台转账 ==========

func TestTradeService_RelaySubmit_Success(t *testing.T) {
	repo := new(MockOrderRepository)
	gateway := new(MockGateway)
	svc := NewTradeService(repo, gateway, nil, nil, 100)

	ctx := context.Background()
	order := lockedOrder(5)
	tradeExt := &chain.SignedExtrinsic{Raw: "0xfeed", Hash: "0x5555", Signer: testMarket, Batched: true}

	repo.On("ListBucket", ctx, model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed, 100).
		Return([]*model.Order{order}, nil)
	gateway.On("BuildAndSignInscribeTransfer", ctx, testBuyer, "DOTA", order.Amount).Return(tradeExt, nil)
	repo.On("SetTradeHash", ctx, int64(5), "0x5555").Return(true, nil)
	gateway.On("SubmitAndWait", ctx, tradeExt).Return(&chain.SubmitResult{Outcome: chain.OutcomeFinalized}, nil)
	repo.On("CompareAndUpdate", ctx, int64(5), model.OrderStatusLocked, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["chain_status"] == model.ChainStatusTradeBlockConfirmed
	})).Return(int64(1), nil)

	stats, err := svc.RelaySubmit(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Advanced)
	repo.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestTradeService_RelaySubmit_SkipsOrderWithTradeHash(t *testing.T) {
	// trade_hash 已存在的订单绝不再次转账
	repo := new(MockOrderRepository)
	gateway := new(MockGateway)
	svc := NewTradeService(repo, gateway, nil, nil, 100)

	ctx := context.Background()
	order := lockedOrder(5)
	order.TradeHash = "0x5555"

	repo.On("ListBucket", ctx, model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed, 100).
		Return([]*model.Order{order}, nil)

	stats, err := svc.RelaySubmit(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Advanced)
	gateway.AssertNotCalled(t, "BuildAndSignInscribeTransfer")
	gateway.AssertNotCalled(t, "SubmitAndWait")
}

func TestTradeService_RelaySubmit_HashRacedByOtherSweep(t *testing.T) {
	repo := new(MockOrderRepository)
	gateway := new(MockGateway)
	svc := NewTradeService(repo, gateway, nil, nil, 100)

	ctx := context.Background()
	order := lockedOrder(5)
	tradeExt := &chain.SignedExtrinsic{Raw: "0xfeed", Hash: "0x5555", Signer: testMarket, Batched: true}

	repo.On("ListBucket", ctx, model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed, 100).
		Return([]*model.Order{order}, nil)
	gateway.On("BuildAndSignInscribeTransfer", ctx, testBuyer, "DOTA", order.Amount).Return(tradeExt, nil)
	// 并发的另一轮扫描已经写入了哈希
	repo.On("SetTradeHash", ctx, int64(5), "0x5555").Return(false, nil)

	stats, err := svc.RelaySubmit(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, stats.Advanced)
	gateway.AssertNotCalled(t, "SubmitAndWait")
}

func TestTradeService_RelaySubmit_TimeoutKeepsHash(t *testing.T) {
	repo := new(MockOrderRepository)
	gateway := new(MockGateway)
	svc := NewTradeService(repo, gateway, nil, nil, 100)

	ctx := context.Background()
	order := lockedOrder(5)
	tradeExt := &chain.SignedExtrinsic{Raw: "0xfeed", Hash: "0x5555", Signer: testMarket, Batched: true}

	repo.On("ListBucket", ctx, model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed, 100).
		Return([]*model.Order{order}, nil)
	gateway.On("BuildAndSignInscribeTransfer", ctx, testBuyer, "DOTA", order.Amount).Return(tradeExt, nil)
	repo.On("SetTradeHash", ctx, int64(5), "0x5555").Return(true, nil)
	gateway.On("SubmitAndWait", ctx, tradeExt).Return(&chain.SubmitResult{Outcome: chain.OutcomeTimeout}, nil)

	stats, err := svc.RelaySubmit(ctx)

	require.NoError(t, err)
	// 结果未知：哈希已落库，状态保持不变
	assert.Equal(t, 0, stats.Advanced)
	assert.Equal(t, 0, stats.Failed)
	repo.AssertNotCalled(t, "CompareAndUpdate")
}

func TestTradeService_RelaySubmit_ChainFailed(t *testing.T) {
	repo := new(MockOrderRepository)
	gateway := new(MockGateway)
	svc := NewTradeService(repo, gateway, nil, nil, 100)

	ctx := context.Background()
	order := lockedOrder(5)
	tradeExt := &chain.SignedExtrinsic{Raw: "0xfeed", Hash: "0x5555", Signer: testMarket, Batched: true}

	repo.On("ListBucket", ctx, model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed, 100).
		Return([]*model.Order{order}, nil)
	gateway.On("BuildAndSignInscribeTransfer", ctx, testBuyer, "DOTA", order.Amount).Return(tradeExt, nil)
	repo.On("SetTradeHash", ctx, int64(5), "0x5555").Return(true, nil)
	gateway.On("SubmitAndWait", ctx, tradeExt).Return(&chain.SubmitResult{
		Outcome:    chain.OutcomeFailed,
		FailReason: "Balances.InsufficientBalance",
	}, nil)
	repo.On("CompareAndUpdate", ctx, int64(5), model.OrderStatusLocked, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == model.OrderStatusFailed &&
			u["chain_status"] == model.ChainStatusTradeBlockFailed
	})).Return(int64(1), nil)

	stats, err := svc.RelaySubmit(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	repo.AssertExpectations(t)
}
