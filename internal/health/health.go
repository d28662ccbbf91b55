package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailtrace/backend/internal/storage"
	redisstore "mailtrace/backend/internal/storage/redis"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	redis  *redisstore.Client
	log    *zap.Logger
}

// NewHealthChecker 创建健康检查器。redisClient 为 nil 时跳过 Redis 检查。
func NewHealthChecker(store storage.Store, redisClient *redisstore.Client, log *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redisClient,
		log:    log,
	}

	hc.addChecks()
	return hc
}

// addChecks 注册存活/就绪检查。
func (hc *HealthChecker) addChecks() {
	hc.health.AddReadinessCheck("storage", func() error {
		return hc.store.Health()
	})

	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return hc.redis.Ping(ctx)
		})
	}

	// goroutine 泄漏保护
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(2000))
}

// LiveHandler 返回存活检查处理器。
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 返回就绪检查处理器。
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}
