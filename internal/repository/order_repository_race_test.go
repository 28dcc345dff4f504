package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/liuxiaoxue22/market/internal/model"
)

// setupSQLiteDB 创建内存数据库
// 单连接串行执行，条件更新的原子性仍由 WHERE 子句保证
func setupSQLiteDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.Order{}))
	return db
}

// TestOrderRepository_Claim_ExactlyOneWinner 并发抢单只有一个买家成功
func TestOrderRepository_Claim_ExactlyOneWinner(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.Order{
		Seller:      "seller-addr",
		Tick:        "DOTA",
		Amount:      decimal.NewFromInt(1000),
		TotalPrice:  decimal.NewFromInt(20_000_000_000),
		Status:      model.OrderStatusListing,
		ChainStatus: model.ChainStatusSellInscribeConfirmed,
	}
	require.NoError(t, repo.Create(ctx, order))

	const buyers = 10
	var wg sync.WaitGroup
	results := make([]bool, buyers)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := repo.Claim(ctx, order.ID,
				fmt.Sprintf("buyer-%d", i), fmt.Sprintf("0x%064d", i))
			assert.NoError(t, err)
			results[i] = claimed
		}(i)
	}
	wg.Wait()

	winners := 0
	winner := -1
	for i, ok := range results {
		if ok {
			winners++
			winner = i
		}
	}
	require.Equal(t, 1, winners, "exactly one buyer must win the claim")

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusLocked, got.Status)
	assert.Equal(t, fmt.Sprintf("buyer-%d", winner), got.Buyer)
	assert.Equal(t, fmt.Sprintf("0x%064d", winner), got.BuyHash)
}

// TestOrderRepository_ClaimThenCancel_Excluded 锁定后不可再取消
func TestOrderRepository_ClaimThenCancel_Excluded(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.Order{
		Seller:      "seller-addr",
		Tick:        "DOTA",
		Amount:      decimal.NewFromInt(1000),
		TotalPrice:  decimal.NewFromInt(20_000_000_000),
		Status:      model.OrderStatusListing,
		ChainStatus: model.ChainStatusSellInscribeConfirmed,
	}
	require.NoError(t, repo.Create(ctx, order))

	claimed, err := repo.Claim(ctx, order.ID, "buyer-addr", "0x2222")
	require.NoError(t, err)
	require.True(t, claimed)

	marked, err := repo.MarkCanceling(ctx, order.ID, "seller-addr", "0x3333")
	require.NoError(t, err)
	assert.False(t, marked)
}

// TestOrderRepository_SetTradeHash_OnlyOnce trade_hash 只写入一次
func TestOrderRepository_SetTradeHash_OnlyOnce(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.Order{
		Seller:      "seller-addr",
		Buyer:       "buyer-addr",
		Tick:        "DOTA",
		Amount:      decimal.NewFromInt(1000),
		TotalPrice:  decimal.NewFromInt(20_000_000_000),
		Status:      model.OrderStatusLocked,
		ChainStatus: model.ChainStatusBuyBlockConfirmed,
	}
	require.NoError(t, repo.Create(ctx, order))

	set, err := repo.SetTradeHash(ctx, order.ID, "0x5555")
	require.NoError(t, err)
	assert.True(t, set)

	// 第二次写入被条件排除
	set, err = repo.SetTradeHash(ctx, order.ID, "0x6666")
	require.NoError(t, err)
	assert.False(t, set)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "0x5555", got.TradeHash)
}

// TestOrderRepository_List_CursorPaging 游标分页
func TestOrderRepository_List_CursorPaging(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &model.Order{
			Seller:      "seller-addr",
			Tick:        "DOTA",
			Amount:      decimal.NewFromInt(100),
			TotalPrice:  decimal.NewFromInt(10_000_000_000),
			Status:      model.OrderStatusListing,
			ChainStatus: model.ChainStatusSellInscribeConfirmed,
		}))
	}

	page1, next, err := repo.List(ctx, &OrderFilter{Seller: "seller-addr"}, 0, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotZero(t, next)
	// id 降序
	assert.Greater(t, page1[0].ID, page1[1].ID)

	page2, next2, err := repo.List(ctx, &OrderFilter{Seller: "seller-addr"}, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Greater(t, page1[1].ID, page2[0].ID)

	page3, next3, err := repo.List(ctx, &OrderFilter{Seller: "seller-addr"}, next2, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Zero(t, next3)
}

// TestOrderRepository_ListBucket_AscendingOrder 对账桶按 id 升序
func TestOrderRepository_ListBucket_AscendingOrder(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &model.Order{
			Seller:      "seller-addr",
			Tick:        "DOTA",
			Amount:      decimal.NewFromInt(100),
			TotalPrice:  decimal.NewFromInt(10_000_000_000),
			Status:      model.OrderStatusPending,
			ChainStatus: model.ChainStatusSellBlockConfirmed,
		}))
	}
	// 不在桶里的订单
	require.NoError(t, repo.Create(ctx, &model.Order{
		Seller:      "seller-addr",
		Tick:        "DOTA",
		Amount:      decimal.NewFromInt(100),
		TotalPrice:  decimal.NewFromInt(10_000_000_000),
		Status:      model.OrderStatusListing,
		ChainStatus: model.ChainStatusSellInscribeConfirmed,
	}))

	orders, err := repo.ListBucket(ctx, model.OrderStatusPending, model.ChainStatusSellBlockConfirmed, 10)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Less(t, orders[0].ID, orders[1].ID)
	assert.Less(t, orders[1].ID, orders[2].ID)
}
