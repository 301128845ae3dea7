package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 监控指标集合
type Metrics struct {
	// 评估周期
	CycleTotal    prometheus.Counter
	CycleDuration prometheus.Histogram

	// 信号评估
	SignalsEvaluated *prometheus.CounterVec
	RunnableSignals  prometheus.Gauge

	// 行情查询
	VenueErrorTotal    *prometheus.CounterVec
	VenueFallbackTotal *prometheus.CounterVec
	QuoteCacheHit      prometheus.Counter
	QuoteCacheMiss     prometheus.Counter

	// 通知
	NotifyTotal *prometheus.CounterVec

	// 持久化
	PersistErrorTotal prometheus.Counter

	// NATS
	NATSConnected    prometheus.Gauge
	OutcomePublished prometheus.Counter

	// 数据源
	FeedRowTotal *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		CycleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_cycle_total",
			Help:      "评估周期执行总数",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_cycle_duration_seconds",
			Help:      "评估周期耗时分布",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SignalsEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_evaluated_total",
			Help:      "信号评估总数",
		}, []string{"result"}),
		RunnableSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runnable_signals",
			Help:      "当前可执行信号数量",
		}),
		VenueErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venue_error_total",
			Help:      "行情查询失败总数",
		}, []string{"venue"}),
		VenueFallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venue_fallback_total",
			Help:      "跨交易所回退成功总数",
		}, []string{"venue"}),
		QuoteCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_hit_total",
			Help:      "行情缓存命中总数",
		}),
		QuoteCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_miss_total",
			Help:      "行情缓存未命中总数",
		}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_total",
			Help:      "通知发送总数",
		}, []string{"status"}),
		PersistErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_error_total",
			Help:      "信号持久化失败总数",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "NATS连接状态 1=已连接 0=断开",
		}),
		OutcomePublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_published_total",
			Help:      "评估结果发布总数",
		}),
		FeedRowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_row_total",
			Help:      "数据源记录处理总数",
		}, []string{"status"}),
	}

	prometheus.MustRegister(
		m.CycleTotal,
		m.CycleDuration,
		m.SignalsEvaluated,
		m.RunnableSignals,
		m.VenueErrorTotal,
		m.VenueFallbackTotal,
		m.QuoteCacheHit,
		m.QuoteCacheMiss,
		m.NotifyTotal,
		m.PersistErrorTotal,
		m.NATSConnected,
		m.OutcomePublished,
		m.FeedRowTotal,
	)

	return m
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics 获取全局监控指标单例
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("sigwatch")
	})
	return globalMetrics
}

// InitMetrics 初始化监控指标
func InitMetrics() {
	GetMetrics()
}
