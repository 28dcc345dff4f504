// Package metrics 定义服务监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrderTransitionsTotal 订单状态转换总数，按目标状态/子状态分组
	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dot20",
			Subsystem: "market",
			Name:      "order_transitions_total",
			Help:      "订单状态转换总数，按目标主状态和链上子状态分组",
		},
		[]string{"status", "chain_status"},
	)

	// ChainSubmitTotal 链上提交结果计数
	ChainSubmitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dot20",
			Subsystem: "market",
			Name:      "chain_submit_total",
			Help:      "链上提交结果计数，按交易腿(sell/buy/cancel/trade)和结果(finalized/failed/timeout)分组",
		},
		[]string{"leg", "outcome"},
	)

	// ChainSubmitLatency 链上提交等待最终化耗时
	ChainSubmitLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dot20",
			Subsystem: "market",
			Name:      "chain_submit_latency_seconds",
			Help:      "提交交易到最终化的耗时(秒)",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s ~ 512s
		},
		[]string{"leg"},
	)

	// IndexerPollsTotal 索引查询计数，按返回状态码分组
	IndexerPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dot20",
			Subsystem: "market",
			Name:      "indexer_polls_total",
			Help:      "铭文索引查询计数，按状态码(confirmed/insufficient/pending/error)分组",
		},
		[]string{"result"},
	)

	// SweepDuration 对账扫描耗时
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dot20",
			Subsystem: "market",
			Name:      "sweep_duration_seconds",
			Help:      "对账扫描单轮耗时(秒)，按任务分组",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"sweep"},
	)

	// SweepOrdersTotal 对账扫描处理的订单数
	SweepOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dot20",
			Subsystem: "market",
			Name:      "sweep_orders_total",
			Help:      "对账扫描处理的订单数，按任务和结果(advanced/failed/skipped/error)分组",
		},
		[]string{"sweep", "result"},
	)
)
