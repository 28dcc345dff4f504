// Package model 定义市场服务的数据模型
package model

import (
	"github.com/shopspring/decimal"
)

// OrderStatus 订单主状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // 已创建，等待铭文索引确认
	OrderStatusListing   OrderStatus = "LISTING"   // 挂单中，可被买家抢单
	OrderStatusLocked    OrderStatus = "LOCKED"    // 已被买家锁定，交易进行中
	OrderStatusCanceling OrderStatus = "CANCELING" // 取消中，等待铭文退回确认
	OrderStatusSold      OrderStatus = "SOLD"      // 已售出 (终态)
	OrderStatusCanceled  OrderStatus = "CANCELED"  // 已取消 (终态)
	OrderStatusFailed    OrderStatus = "FAILED"    // 失败 (终态)
)

// IsTerminal 判断是否为终态
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusSold || s == OrderStatusCanceled || s == OrderStatusFailed
}

// CanTransitionTo 检查主状态转换是否合法
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	transitions := map[OrderStatus][]OrderStatus{
		OrderStatusPending:   {OrderStatusListing, OrderStatusLocked, OrderStatusCanceling, OrderStatusFailed},
		OrderStatusListing:   {OrderStatusLocked, OrderStatusCanceling, OrderStatusFailed},
		OrderStatusLocked:    {OrderStatusSold, OrderStatusFailed},
		OrderStatusCanceling: {OrderStatusCanceled, OrderStatusFailed},
	}
	allowed, ok := transitions[s]
	if !ok {
		return false // 终态不能转换
	}
	for _, n := range allowed {
		if n == next {
			return true
		}
	}
	return false
}

// ChainStatus 链上子状态，记录当前转换处于哪一腿
// *_BLOCK_* 表示区块层面结果，*_INSCRIBE_* 表示铭文索引层面结果
type ChainStatus string

const (
	ChainStatusNone ChainStatus = "" // 尚未提交上链

	ChainStatusSellBlockConfirmed    ChainStatus = "SELL_BLOCK_CONFIRMED"
	ChainStatusSellBlockFailed       ChainStatus = "SELL_BLOCK_FAILED"
	ChainStatusSellInscribeConfirmed ChainStatus = "SELL_INSCRIBE_CONFIRMED"
	ChainStatusSellInscribeFailed    ChainStatus = "SELL_INSCRIBE_FAILED"

	ChainStatusBuyBlockConfirmed ChainStatus = "BUY_BLOCK_CONFIRMED"
	ChainStatusBuyBlockFailed    ChainStatus = "BUY_BLOCK_FAILED"

	ChainStatusCancelBlockConfirmed    ChainStatus = "CANCEL_BLOCK_CONFIRMED"
	ChainStatusCancelBlockFailed       ChainStatus = "CANCEL_BLOCK_FAILED"
	ChainStatusCancelInscribeConfirmed ChainStatus = "CANCEL_INSCRIBE_CONFIRMED"
	ChainStatusCancelInscribeFailed    ChainStatus = "CANCEL_INSCRIBE_FAILED"

	ChainStatusTradeBlockConfirmed    ChainStatus = "TRADE_BLOCK_CONFIRMED"
	ChainStatusTradeBlockFailed       ChainStatus = "TRADE_BLOCK_FAILED"
	ChainStatusTradeInscribeConfirmed ChainStatus = "TRADE_INSCRIBE_CONFIRMED"
	ChainStatusTradeInscribeFailed    ChainStatus = "TRADE_INSCRIBE_FAILED"
)

// IsFailed 判断是否为失败腿，失败腿强制主状态为 FAILED
func (s ChainStatus) IsFailed() bool {
	switch s {
	case ChainStatusSellBlockFailed, ChainStatusSellInscribeFailed,
		ChainStatusBuyBlockFailed,
		ChainStatusCancelBlockFailed, ChainStatusCancelInscribeFailed,
		ChainStatusTradeBlockFailed, ChainStatusTradeInscribeFailed:
		return true
	}
	return false
}

// ValidForStatus 检查子状态与主状态的组合是否合法
// LOCKED/CANCELING 允许保留上一腿的子状态：提交超时的行停在提交前的
// 子状态，等待人工或后续扫描处理
func (s ChainStatus) ValidForStatus(status OrderStatus) bool {
	valid := map[OrderStatus][]ChainStatus{
		OrderStatusPending: {ChainStatusNone, ChainStatusSellBlockConfirmed},
		OrderStatusListing: {ChainStatusSellInscribeConfirmed},
		OrderStatusLocked: {ChainStatusNone, ChainStatusSellBlockConfirmed, ChainStatusSellInscribeConfirmed,
			ChainStatusBuyBlockConfirmed, ChainStatusTradeBlockConfirmed},
		OrderStatusCanceling: {ChainStatusNone, ChainStatusSellBlockConfirmed, ChainStatusSellInscribeConfirmed,
			ChainStatusCancelBlockConfirmed},
		OrderStatusSold:     {ChainStatusTradeInscribeConfirmed},
		OrderStatusCanceled: {ChainStatusCancelInscribeConfirmed},
	}
	if status == OrderStatusFailed {
		return s.IsFailed()
	}
	for _, v := range valid[status] {
		if v == s {
			return true
		}
	}
	return false
}

// Order 订单模型
// 对应数据库表 market_orders，只追加转换，从不删除
type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Seller          string          `gorm:"type:varchar(64);index;not null" json:"seller"`                // 卖家地址
	Buyer           string          `gorm:"type:varchar(64);index" json:"buyer"`                          // 买家地址 (抢单成功时设置，仅一次)
	Tick            string          `gorm:"type:varchar(20);index;not null" json:"tick"`                  // 铭文符号 (大写)
	Amount          decimal.Decimal `gorm:"type:decimal(38,0);not null" json:"amount"`                    // 铭文数量
	TotalPrice      decimal.Decimal `gorm:"type:decimal(38,0);not null" json:"total_price"`               // 铭文出售总价 (Planck)
	BuyServiceFee   decimal.Decimal `gorm:"type:decimal(38,0);not null" json:"buy_service_fee"`           // 平台服务费 (Planck)
	BuyRealPayPrice decimal.Decimal `gorm:"type:decimal(38,0);not null" json:"buy_real_pay_price"`        // 挂单交易实际支付给平台的金额 (Planck)
	SellHash        string          `gorm:"type:varchar(66)" json:"sell_hash"`                            // 挂单交易哈希
	BuyHash         string          `gorm:"type:varchar(66)" json:"buy_hash"`                             // 买单交易哈希
	CancelHash      string          `gorm:"type:varchar(66)" json:"cancel_hash"`                          // 取消交易哈希
	TradeHash       string          `gorm:"type:varchar(66)" json:"trade_hash"`                           // 平台转铭文给买家的交易哈希 (防重复转账的幂等标记)
	Status          OrderStatus     `gorm:"type:varchar(16);index:idx_status_chain;not null" json:"status"`
	ChainStatus     ChainStatus     `gorm:"type:varchar(32);index:idx_status_chain" json:"chain_status"`
	FailReason      string          `gorm:"type:varchar(255)" json:"fail_reason"`                  // 失败原因 (仅终态失败时填充)
	ListingAt       int64           `gorm:"type:bigint" json:"listing_at"`                         // 挂单确认时间 (毫秒，仅设置一次)
	CanceledAt      int64           `gorm:"type:bigint" json:"canceled_at"`                        // 取消确认时间 (毫秒，仅设置一次)
	SoldAt          int64           `gorm:"type:bigint" json:"sold_at"`                            // 售出确认时间 (毫秒，仅设置一次)
	CreatedAt       int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt       int64           `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Order) TableName() string {
	return "market_orders"
}

// Claimable 判断订单是否可被买家抢单
func (o *Order) Claimable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusListing
}

// Cancelable 判断订单是否可被卖家取消
func (o *Order) Cancelable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusListing
}
