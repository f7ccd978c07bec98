package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按路由与状态码统计的请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todopro_http_requests_total",
		Help: "HTTP requests processed, partitioned by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "todopro_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthEventsTotal 认证事件（register / login / logout / refresh）及结果。
	AuthEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todopro_auth_events_total",
		Help: "Authentication events by kind and outcome.",
	}, []string{"event", "outcome"})

	// RateLimitRejectedTotal 被限流拒绝的请求数。
	RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todopro_ratelimit_rejected_total",
		Help: "Requests rejected by a rate limiter, by action.",
	}, []string{"action"})

	// TaskMutationsTotal 任务写操作计数。
	TaskMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todopro_task_mutations_total",
		Help: "Task mutations by operation.",
	}, []string{"op"})

	// TokensPrunedTotal 定时清理删除的过期 token 数。
	TokensPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todopro_tokens_pruned_total",
		Help: "Expired access tokens removed by the maintenance scheduler.",
	})

	// MailQueueDepth 邮件队列积压。
	MailQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "todopro_mail_queue_depth",
		Help: "Jobs waiting in the outbound mail queue.",
	})

	initOnce sync.Once
)

// InitMetrics 将所有指标注册到默认 Registry，可重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthEventsTotal,
			RateLimitRejectedTotal,
			TaskMutationsTotal,
			TokensPrunedTotal,
			MailQueueDepth,
		)
	})
}
