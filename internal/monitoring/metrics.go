package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 发送指标
	EmailsSent     prometheus.Counter
	SendRejections *prometheus.CounterVec // 按拒绝原因分类

	// 追踪指标
	OpensRecorded  prometheus.Counter
	ClicksRecorded prometheus.Counter
	PixelHits      prometheus.Counter // 包含重复打开的全部像素请求
	ClickHits      prometheus.Counter // 包含重复点击的全部跳转请求
	CacheHits      prometheus.Counter // 追踪缓存短路次数

	// 用户指标
	UsersRegistered prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtrace_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailtrace_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		EmailsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_emails_sent_total",
				Help: "Total number of emails sent",
			},
		),

		SendRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtrace_send_rejections_total",
				Help: "Total number of rejected send requests",
			},
			[]string{"reason"},
		),

		OpensRecorded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_opens_recorded_total",
				Help: "Total number of first-open transitions recorded",
			},
		),

		ClicksRecorded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_clicks_recorded_total",
				Help: "Total number of first-click transitions recorded",
			},
		),

		PixelHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_pixel_hits_total",
				Help: "Total number of tracking pixel requests",
			},
		),

		ClickHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_click_hits_total",
				Help: "Total number of tracked link redirects",
			},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_tracking_cache_hits_total",
				Help: "Total number of tracking requests short-circuited by cache",
			},
		),

		UsersRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_users_registered_total",
				Help: "Total number of users registered",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtrace_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"type"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtrace_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtrace_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEmailSent 记录一次成功发送
func (m *Metrics) RecordEmailSent() {
	m.EmailsSent.Inc()
}

// RecordSendRejection 按原因记录一次发送拒绝
func (m *Metrics) RecordSendRejection(reason string) {
	m.SendRejections.WithLabelValues(reason).Inc()
}

// RecordOpen 记录一次首次打开迁移
func (m *Metrics) RecordOpen() {
	m.OpensRecorded.Inc()
}

// RecordClick 记录一次首次点击迁移
func (m *Metrics) RecordClick() {
	m.ClicksRecorded.Inc()
}

// RecordPixelHit 记录一次像素请求
func (m *Metrics) RecordPixelHit() {
	m.PixelHits.Inc()
}

// RecordClickHit 记录一次跳转请求
func (m *Metrics) RecordClickHit() {
	m.ClickHits.Inc()
}

// RecordCacheHit 记录一次追踪缓存短路
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	m.UsersRegistered.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
