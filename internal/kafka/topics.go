package kafka

// Kafka topic 名称
const (
	// TopicOrderUpdates 订单状态更新 (market → ws/analytics)
	TopicOrderUpdates = "order-updates"
)
