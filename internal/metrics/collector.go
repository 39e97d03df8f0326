// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 指标收集器。nil 安全：所有方法对 nil 接收者直接返回，
// 组件可以在不接线指标的情况下独立使用。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 上游指标
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	// 凭据池指标
	poolOpsTotal *prometheus.CounterVec

	// 生成任务轮询指标
	pollRoundsTotal prometheus.Counter
}

// NewCollector 创建指标收集器并注册到默认 registry。
func NewCollector(namespace string) *Collector {
	c := &Collector{}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	c.upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream backend requests",
		},
		[]string{"endpoint", "status"},
	)
	c.upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream backend request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	c.poolOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_pool_ops_total",
			Help:      "Total number of credential pool operations",
		},
		[]string{"op"},
	)
	c.pollRoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_poll_rounds_total",
			Help:      "Total number of generation status poll rounds",
		},
	)

	return c
}

// RecordHTTPRequest 记录入站 HTTP 请求。
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpstreamRequest 记录一次后端请求。
func (c *Collector) RecordUpstreamRequest(endpoint string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.upstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordPoolOp 记录一次凭据池操作（borrow / rotate / invalidate）。
func (c *Collector) RecordPoolOp(op string) {
	if c == nil {
		return
	}
	c.poolOpsTotal.WithLabelValues(op).Inc()
}

// RecordPollRound 记录一次生成任务状态轮询。
func (c *Collector) RecordPollRound() {
	if c == nil {
		return
	}
	c.pollRoundsTotal.Inc()
}
