package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tempbox",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tempbox",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// InboxesCreated 创建成功的邮箱总数
	InboxesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tempbox",
		Name:      "inboxes_created_total",
		Help:      "Inboxes created.",
	})

	// InboxesExpired 清理任务删除的过期邮箱总数
	InboxesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tempbox",
		Name:      "inboxes_expired_total",
		Help:      "Inboxes removed by the cleanup worker.",
	})

	// MessagesDelivered 投递成功的邮件总数
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tempbox",
		Name:      "messages_delivered_total",
		Help:      "Messages accepted over SMTP.",
	})

	// MessagesRejected 按原因统计拒收的邮件
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tempbox",
		Name:      "messages_rejected_total",
		Help:      "Messages rejected over SMTP by reason.",
	}, []string{"reason"})
)

// HTTPMetrics 采集HTTP请求计数与时延
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route,
			strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
	}
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
