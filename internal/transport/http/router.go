package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"mailtrace/backend/internal/auth"
	jwtpkg "mailtrace/backend/internal/auth/jwt"
	"mailtrace/backend/internal/config"
	"mailtrace/backend/internal/health"
	"mailtrace/backend/internal/middleware"
	"mailtrace/backend/internal/monitoring"
	"mailtrace/backend/internal/service"
	"mailtrace/backend/internal/storage/filesystem"
	"mailtrace/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config           *config.Config
	AuthService      *auth.Service
	EmailService     *service.EmailService
	UsageService     *service.UsageService
	TrackingService  *service.TrackingService
	AnalyticsService *service.AnalyticsService
	ProfileService   *service.ProfileService
	JWTManager       *jwtpkg.Manager
	WebSocketHub     *websocket.Hub
	Metrics          *monitoring.Metrics // 可选
	HealthChecker    *health.HealthChecker
	BlobStore        *filesystem.BlobStore
	Logger           *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(20 * 1024 * 1024))

	if deps.Metrics != nil {
		router.Use(middleware.NewMonitoringMiddleware(deps.Metrics).HTTPMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时需清空凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager, deps.Metrics, log)
	emailHandler := NewEmailHandler(deps.EmailService, deps.UsageService, log)
	trackingHandler := NewTrackingHandler(deps.TrackingService, log)
	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService, log)
	profileHandler := NewProfileHandler(deps.ProfileService, log)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)
	trackingRateLimit := middleware.NewIPRateLimiter(
		deps.Config.RateLimit.TrackingRPS,
		deps.Config.RateLimit.TrackingBurst,
		deps.Metrics,
	)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.HealthChecker != nil {
		router.GET("/health/live", gin.WrapF(deps.HealthChecker.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.HealthChecker.ReadyHandler()))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// 公开追踪端点，按 IP 限流
	tracking := router.Group("/", trackingRateLimit.Handler())
	{
		tracking.GET("/track/:trackingId", trackingHandler.Pixel)
		tracking.GET("/track-click/:trackingId/*destination", trackingHandler.Click)
	}

	// 头像静态文件，挂载点与 AvatarURL 返回的路径一致
	if deps.BlobStore != nil {
		router.Static("/avatars", deps.BlobStore.AvatarDir())
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		emails := v1.Group("/emails", jwtAuth.RequireAuth())
		{
			emails.POST("/send", emailHandler.Send)
			emails.POST("/draft", emailHandler.Draft)
			emails.GET("/:folder", emailHandler.List)
			emails.POST("/:id/trash", emailHandler.Trash)
			emails.POST("/:id/untrash", emailHandler.Untrash)
			emails.POST("/:id/star", emailHandler.Star)
			emails.DELETE("/:id", emailHandler.Delete)
		}

		v1.GET("/usage", jwtAuth.RequireAuth(), emailHandler.Usage)

		analytics := v1.Group("/analytics", jwtAuth.RequireAuth())
		{
			analytics.GET("", analyticsHandler.List)
			analytics.GET("/export", analyticsHandler.Export)
		}

		profile := v1.Group("/profile", jwtAuth.RequireAuth())
		{
			profile.GET("", profileHandler.Get)
			profile.PUT("", profileHandler.Update)
		}

		// WebSocket 追踪事件推送，令牌经查询参数认证
		if deps.WebSocketHub != nil {
			v1.GET("/ws", deps.WebSocketHub.HandleConnection)
		}
	}

	return router
}
