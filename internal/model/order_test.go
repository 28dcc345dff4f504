package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusListing.IsTerminal())
	assert.False(t, OrderStatusLocked.IsTerminal())
	assert.False(t, OrderStatusCanceling.IsTerminal())
	assert.True(t, OrderStatusSold.IsTerminal())
	assert.True(t, OrderStatusCanceled.IsTerminal())
	assert.True(t, OrderStatusFailed.IsTerminal())
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusListing, true},
		{OrderStatusPending, OrderStatusLocked, true},
		{OrderStatusPending, OrderStatusCanceling, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusSold, false},

		{OrderStatusListing, OrderStatusLocked, true},
		{OrderStatusListing, OrderStatusCanceling, true},
		{OrderStatusListing, OrderStatusFailed, true},
		{OrderStatusListing, OrderStatusPending, false},
		{OrderStatusListing, OrderStatusSold, false},

		{OrderStatusLocked, OrderStatusSold, true},
		{OrderStatusLocked, OrderStatusFailed, true},
		{OrderStatusLocked, OrderStatusListing, false},
		{OrderStatusLocked, OrderStatusCanceling, false},

		{OrderStatusCanceling, OrderStatusCanceled, true},
		{OrderStatusCanceling, OrderStatusFailed, true},
		{OrderStatusCanceling, OrderStatusLocked, false},

		// 终态不能转换
		{OrderStatusSold, OrderStatusFailed, false},
		{OrderStatusCanceled, OrderStatusListing, false},
		{OrderStatusFailed, OrderStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestChainStatus_IsFailed(t *testing.T) {
	failed := []ChainStatus{
		ChainStatusSellBlockFailed, ChainStatusSellInscribeFailed,
		ChainStatusBuyBlockFailed,
		ChainStatusCancelBlockFailed, ChainStatusCancelInscribeFailed,
		ChainStatusTradeBlockFailed, ChainStatusTradeInscribeFailed,
	}
	for _, s := range failed {
		assert.True(t, s.IsFailed(), "%s", s)
	}

	ok := []ChainStatus{
		ChainStatusNone,
		ChainStatusSellBlockConfirmed, ChainStatusSellInscribeConfirmed,
		ChainStatusBuyBlockConfirmed,
		ChainStatusCancelBlockConfirmed, ChainStatusCancelInscribeConfirmed,
		ChainStatusTradeBlockConfirmed, ChainStatusTradeInscribeConfirmed,
	}
	for _, s := range ok {
		assert.False(t, s.IsFailed(), "%s", s)
	}
}

func TestChainStatus_ValidForStatus(t *testing.T) {
	// 正常推进路径
	assert.True(t, ChainStatusNone.ValidForStatus(OrderStatusPending))
	assert.True(t, ChainStatusSellBlockConfirmed.ValidForStatus(OrderStatusPending))
	assert.True(t, ChainStatusSellInscribeConfirmed.ValidForStatus(OrderStatusListing))
	assert.True(t, ChainStatusBuyBlockConfirmed.ValidForStatus(OrderStatusLocked))
	assert.True(t, ChainStatusTradeBlockConfirmed.ValidForStatus(OrderStatusLocked))
	assert.True(t, ChainStatusCancelBlockConfirmed.ValidForStatus(OrderStatusCanceling))
	assert.True(t, ChainStatusTradeInscribeConfirmed.ValidForStatus(OrderStatusSold))
	assert.True(t, ChainStatusCancelInscribeConfirmed.ValidForStatus(OrderStatusCanceled))

	// 提交超时的行停在上一腿的子状态
	assert.True(t, ChainStatusSellInscribeConfirmed.ValidForStatus(OrderStatusLocked))
	assert.True(t, ChainStatusSellInscribeConfirmed.ValidForStatus(OrderStatusCanceling))

	// FAILED 必须携带失败腿
	assert.True(t, ChainStatusSellBlockFailed.ValidForStatus(OrderStatusFailed))
	assert.True(t, ChainStatusTradeInscribeFailed.ValidForStatus(OrderStatusFailed))
	assert.False(t, ChainStatusSellBlockConfirmed.ValidForStatus(OrderStatusFailed))

	// 非法组合
	assert.False(t, ChainStatusBuyBlockConfirmed.ValidForStatus(OrderStatusPending))
	assert.False(t, ChainStatusTradeInscribeConfirmed.ValidForStatus(OrderStatusListing))
	assert.False(t, ChainStatusSellBlockFailed.ValidForStatus(OrderStatusSold))
}

func TestOrder_ClaimableAndCancelable(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusListing} {
		o := &Order{Status: s}
		assert.True(t, o.Claimable(), "%s", s)
		assert.True(t, o.Cancelable(), "%s", s)
	}
	for _, s := range []OrderStatus{OrderStatusLocked, OrderStatusCanceling, OrderStatusSold, OrderStatusCanceled, OrderStatusFailed} {
		o := &Order{Status: s}
		assert.False(t, o.Claimable(), "%s", s)
		assert.False(t, o.Cancelable(), "%s", s)
	}
}
