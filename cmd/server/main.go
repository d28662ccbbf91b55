package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailtrace/backend/internal/auth"
	jwtpkg "mailtrace/backend/internal/auth/jwt"
	"mailtrace/backend/internal/config"
	"mailtrace/backend/internal/health"
	"mailtrace/backend/internal/logger"
	"mailtrace/backend/internal/mail"
	"mailtrace/backend/internal/monitoring"
	"mailtrace/backend/internal/pool"
	"mailtrace/backend/internal/security"
	"mailtrace/backend/internal/service"
	"mailtrace/backend/internal/storage"
	"mailtrace/backend/internal/storage/filesystem"
	"mailtrace/backend/internal/storage/memory"
	redisstore "mailtrace/backend/internal/storage/redis"
	sqlstore "mailtrace/backend/internal/storage/sql"
	httptransport "mailtrace/backend/internal/transport/http"
	"mailtrace/backend/internal/websocket"
)

// main 启动邮件追踪后端服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting mailtrace server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close() //nolint:errcheck

	// 初始化 Redis 追踪缓存（可选）
	var redisClient *redisstore.Client
	var trackingCache *redisstore.TrackingCache
	if cfg.Redis.Enabled {
		redisClient, err = redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, tracking cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			trackingCache = redisstore.NewTrackingCache(redisClient, cfg.Tracking.CacheTTL)
			log.Info("tracking cache enabled",
				zap.String("address", cfg.Redis.Address),
				zap.Duration("ttl", cfg.Tracking.CacheTTL),
			)
		}
	}

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, redisClient, log)

	// 初始化头像 blob 存储
	blobStore, err := filesystem.NewBlobStore(cfg.Storage.AvatarDir)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize blob storage: %v", err))
	}

	// 初始化认证
	authService := auth.NewService(store)
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// WebSocket Hub 与追踪通知协程池
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)
	workerPool := pool.NewWorkerPool(4, 256, log)

	// 初始化服务层
	trackingService := service.NewTrackingService(
		store,
		trackingCache,
		metrics,
		wsHub,
		workerPool,
		cfg.Tracking.PublicBaseURL,
		log,
	)
	usageService := service.NewUsageService(store, cfg.RateLimit.DailyLimit)
	emailService := service.NewEmailService(
		store,
		security.NewContentFilter(cfg.Filter.Denylist),
		security.NewAttachmentSecurity(10*1024*1024),
		mail.NewSMTPSender(&cfg.Mail, log),
		trackingService,
		usageService,
		metrics,
		cfg.Mail.From,
		log,
	)
	analyticsService := service.NewAnalyticsService(store)
	profileService := service.NewProfileService(store, blobStore, cfg.Storage.MaxAvatarSize, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:           cfg,
		AuthService:      authService,
		EmailService:     emailService,
		UsageService:     usageService,
		TrackingService:  trackingService,
		AnalyticsService: analyticsService,
		ProfileService:   profileService,
		JWTManager:       jwtManager,
		WebSocketHub:     wsHub,
		Metrics:          metrics,
		HealthChecker:    healthChecker,
		BlobStore:        blobStore,
		Logger:           log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerPool.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	// WebSocket Hub goroutine
	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}

		workerPool.Stop()
		if redisClient != nil {
			redisClient.Close() //nolint:errcheck
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
