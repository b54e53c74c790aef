// Package metrics 提供 Prometheus 指标采集的统一封装。
// 该包集中定义认证与查询链路的关键指标，便于在各模块复用并保持标签一致。
//
// 命令行工具是短生命周期进程，指标注册在独立的 Registry 上，
// 退出前可通过 WriteTextfile 写入 node_exporter 的 textfile 目录。
// 所有方法对 nil 接收者安全，未启用指标时组件可以直接传入 nil。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 封装查询链路的指标集合。
//
// 指标分类:
//   - 令牌指标: 缓存命中、换取次数与耗时
//   - 查询指标: 查询次数、耗时、返回与丢弃的消息数
type Metrics struct {
	registry *prometheus.Registry

	// ========== 令牌相关指标 ==========

	// TokenCacheHits 令牌缓存命中计数器
	// 标签: region
	TokenCacheHits *prometheus.CounterVec

	// TokenExchanges 令牌换取请求计数器
	// 标签: region, result (success, missing_credential, failed)
	TokenExchanges *prometheus.CounterVec

	// TokenExchangeDuration 令牌换取耗时直方图（单位：秒）
	// 标签: region
	TokenExchangeDuration *prometheus.HistogramVec

	// ========== 查询相关指标 ==========

	// QueriesTotal 日志查询计数器
	// 标签: region, result (success, transport_error, malformed)
	QueriesTotal *prometheus.CounterVec

	// QueryDuration 日志查询耗时直方图（单位：秒）
	// 标签: region
	QueryDuration *prometheus.HistogramVec

	// MessagesReturned 最终返回的消息数
	// 标签: region
	MessagesReturned *prometheus.CounterVec

	// MessagesDropped 被丢弃的消息数
	// 标签: region, reason (filter, psm)
	MessagesDropped *prometheus.CounterVec
}

// NewMetrics 在新的 Registry 上创建并注册全部指标。
//
// 参数:
//   - namespace: 指标命名空间前缀，例如 "logid"
//
// 返回:
//   - *Metrics: 初始化完成的指标集合
func NewMetrics(namespace string) *Metrics {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TokenCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_cache_hits_total",
				Help:      "Number of token requests served from the in-memory cache",
			},
			[]string{"region"},
		),
		TokenExchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_exchanges_total",
				Help:      "Number of credential to token exchanges by result",
			},
			[]string{"region", "result"},
		),
		TokenExchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_exchange_duration_seconds",
				Help:      "Duration of token exchange requests",
				Buckets:   buckets,
			},
			[]string{"region"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Number of log queries by result",
			},
			[]string{"region", "result"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of log query requests including parsing",
				Buckets:   buckets,
			},
			[]string{"region"},
		),
		MessagesReturned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_returned_total",
				Help:      "Number of messages returned after filtering",
			},
			[]string{"region"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_dropped_total",
				Help:      "Number of messages removed by the filter chain or the PSM re-check",
			},
			[]string{"region", "reason"},
		),
	}

	m.registry.MustRegister(
		m.TokenCacheHits,
		m.TokenExchanges,
		m.TokenExchangeDuration,
		m.QueriesTotal,
		m.QueryDuration,
		m.MessagesReturned,
		m.MessagesDropped,
	)
	return m
}

// Registry 返回承载全部指标的 Registry。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordCacheHit 记录一次令牌缓存命中。
func (m *Metrics) RecordCacheHit(region string) {
	if m == nil {
		return
	}
	m.TokenCacheHits.WithLabelValues(region).Inc()
}

// RecordExchange 记录一次令牌换取及其耗时。
func (m *Metrics) RecordExchange(region, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(region, result).Inc()
	if d > 0 {
		m.TokenExchangeDuration.WithLabelValues(region).Observe(d.Seconds())
	}
}

// RecordQuery 记录一次日志查询及其耗时。
func (m *Metrics) RecordQuery(region, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(region, result).Inc()
	m.QueryDuration.WithLabelValues(region).Observe(d.Seconds())
}

// RecordMessages 记录返回与丢弃的消息数。
func (m *Metrics) RecordMessages(region string, returned, droppedByFilter, droppedByPSM int) {
	if m == nil {
		return
	}
	m.MessagesReturned.WithLabelValues(region).Add(float64(returned))
	if droppedByFilter > 0 {
		m.MessagesDropped.WithLabelValues(region, "filter").Add(float64(droppedByFilter))
	}
	if droppedByPSM > 0 {
		m.MessagesDropped.WithLabelValues(region, "psm").Add(float64(droppedByPSM))
	}
}

// WriteTextfile 以 Prometheus 文本格式将当前指标写入文件。
// 写入先落到临时文件再重命名，node_exporter 不会读到半个文件。
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
