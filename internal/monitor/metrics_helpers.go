package monitor

import "time"

// ObserveCycle 记录一次评估周期
func ObserveCycle(d time.Duration) {
	m := GetMetrics()
	m.CycleTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// IncSignalEvaluated 记录信号评估结果
func IncSignalEvaluated(result string) {
	GetMetrics().SignalsEvaluated.WithLabelValues(result).Inc()
}

// SetRunnableSignals 更新可执行信号数量
func SetRunnableSignals(n int) {
	GetMetrics().RunnableSignals.Set(float64(n))
}

// IncVenueError 记录行情查询失败
func IncVenueError(venue string) {
	GetMetrics().VenueErrorTotal.WithLabelValues(venue).Inc()
}

// IncVenueFallback 记录跨交易所回退成功
func IncVenueFallback(venue string) {
	GetMetrics().VenueFallbackTotal.WithLabelValues(venue).Inc()
}

// IncQuoteCacheHit 记录行情缓存命中
func IncQuoteCacheHit() {
	GetMetrics().QuoteCacheHit.Inc()
}

// IncQuoteCacheMiss 记录行情缓存未命中
func IncQuoteCacheMiss() {
	GetMetrics().QuoteCacheMiss.Inc()
}

// IncNotify 记录通知发送结果
func IncNotify(status string) {
	GetMetrics().NotifyTotal.WithLabelValues(status).Inc()
}

// IncPersistError 记录持久化失败
func IncPersistError() {
	GetMetrics().PersistErrorTotal.Inc()
}

// SetNATSConnected 更新NATS连接状态
func SetNATSConnected(connected bool) {
	if connected {
		GetMetrics().NATSConnected.Set(1)
	} else {
		GetMetrics().NATSConnected.Set(0)
	}
}

// IncOutcomePublished 记录评估结果发布
func IncOutcomePublished() {
	GetMetrics().OutcomePublished.Inc()
}

// IncFeedRow 记录数据源记录处理结果
func IncFeedRow(status string) {
	GetMetrics().FeedRowTotal.WithLabelValues(status).Inc()
}
