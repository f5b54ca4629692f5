package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/middleware"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/ratelimit"
	"tempbox/backend/internal/service"
)

// NewRouter 组装HTTP路由与中间件链
func NewRouter(cfg *config.Config, handler *Handler, inboxes *service.InboxService,
	limiter *ratelimit.Limiter, probes healthcheck.Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(ginMode(cfg.Server.Mode))

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(monitoring.HTTPMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.BodyLimit(1 << 20))

	r.GET("/live", gin.WrapF(probes.LiveEndpoint))
	r.GET("/ready", gin.WrapF(probes.ReadyEndpoint))
	r.GET("/metrics", gin.WrapH(monitoring.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(limiter, ratelimit.ClassAPI))

	api.POST("/inboxes",
		middleware.RateLimit(limiter, ratelimit.ClassInboxCreate),
		handler.CreateInbox)

	authed := api.Group("/inboxes/:inboxID")
	authed.Use(middleware.InboxAuth(inboxes))
	{
		authed.GET("", handler.GetInbox)
		authed.DELETE("", handler.DeleteInbox)
		authed.GET("/messages", handler.ListMessages)
		authed.GET("/messages/:messageID", handler.GetMessage)
		authed.GET("/messages/:messageID/raw", handler.GetRawMessage)
		authed.GET("/messages/:messageID/attachments/:attachmentID", handler.GetAttachment)
		authed.DELETE("/messages/:messageID", handler.DeleteMessage)
	}

	// WebSocket订阅走查询参数鉴权，不挂统一的Header鉴权中间件
	api.GET("/inboxes/:inboxID/ws", handler.Subscribe)

	return r
}

func ginMode(mode string) string {
	switch mode {
	case "debug":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
