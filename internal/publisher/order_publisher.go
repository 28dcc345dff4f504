// Package publisher 提供订单事件发布
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/chain"
	"github.com/liuxiaoxue22/market/internal/kafka"
	"github.com/liuxiaoxue22/market/internal/model"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// KafkaProducer Kafka 生产者接口
type KafkaProducer interface {
	SendWithContext(ctx context.Context, topic string, key, value []byte) error
}

// OrderPublisher 订单状态更新发布者
// 每次持久化的状态转换发布一条消息；发布失败只记录日志，不影响转换本身
type OrderPublisher struct {
	producer KafkaProducer
	decimals int32
}

// NewOrderPublisher 创建订单发布者
// producer 为 nil 时发布为空操作 (Kafka 未启用)
func NewOrderPublisher(producer KafkaProducer, decimals int32) *OrderPublisher {
	return &OrderPublisher{producer: producer, decimals: decimals}
}

// OrderUpdateMessage 订单状态更新消息
type OrderUpdateMessage struct {
	EventID       string `json:"event_id"`
	OrderID       int64  `json:"order_id"`
	Seller        string `json:"seller"`
	Buyer         string `json:"buyer,omitempty"`
	Tick          string `json:"tick"`
	Amount        string `json:"amount"`
	TotalPrice    string `json:"total_price"`     // Planck
	TotalPriceDot string `json:"total_price_dot"` // DOT，下游展示用
	Status        string `json:"status"`
	ChainStatus   string `json:"chain_status"`
	FailReason    string `json:"fail_reason,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// PublishOrderUpdate 发布订单状态更新
func (p *OrderPublisher) PublishOrderUpdate(ctx context.Context, order *model.Order) error {
	if p.producer == nil {
		return nil // Kafka 未启用
	}

	msg := &OrderUpdateMessage{
		EventID:       uuid.NewString(),
		OrderID:       order.ID,
		Seller:        order.Seller,
		Buyer:         order.Buyer,
		Tick:          order.Tick,
		Amount:        order.Amount.String(),
		TotalPrice:    order.TotalPrice.String(),
		TotalPriceDot: chain.Planck2Dot(order.TotalPrice, p.decimals).String(),
		Status:        string(order.Status),
		ChainStatus:   string(order.ChainStatus),
		FailReason:    order.FailReason,
		Timestamp:     time.Now().UnixMilli(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order update message: %w", err)
	}

	// 使用订单 ID 作为 key，保证同一订单的消息有序
	key := []byte(strconv.FormatInt(order.ID, 10))

	if err := p.producer.SendWithContext(ctx, kafka.TopicOrderUpdates, key, data); err != nil {
		logger.Error("publish order update failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
		return fmt.Errorf("send order update: %w", err)
	}

	logger.Debug("order update published",
		zap.Int64("order_id", order.ID),
		zap.String("status", string(order.Status)),
	)

	return nil
}
