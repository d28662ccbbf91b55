package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/monitoring"
	"mailtrace/backend/internal/pool"
	"mailtrace/backend/internal/storage"
	redisstore "mailtrace/backend/internal/storage/redis"
)

// Notifier 追踪事件的实时推送接口（由 WebSocket Hub 实现）。
type Notifier interface {
	Notify(event *domain.TrackingEvent)
}

// TrackingService 封装追踪标识签发与打开/点击事件记录。
//
// 像素/点击路径是全系统最热的路径：状态迁移只做一次条件更新，
// 事件通知、缓存回填这类副作用全部异步化或尽力而为，
// 任何副作用失败都不影响迁移结果。
type TrackingService struct {
	store   storage.Store
	cache   *redisstore.TrackingCache // 可选，nil 时直接打存储
	metrics *monitoring.Metrics       // 可选
	hub     Notifier                  // 可选
	pool    *pool.WorkerPool          // 可选，nil 时同步通知
	baseURL string
	log     *zap.Logger
}

// NewTrackingService 创建追踪服务。baseURL 不含尾部斜杠。
func NewTrackingService(
	store storage.Store,
	cache *redisstore.TrackingCache,
	metrics *monitoring.Metrics,
	hub Notifier,
	workerPool *pool.WorkerPool,
	baseURL string,
	log *zap.Logger,
) *TrackingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrackingService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		hub:     hub,
		pool:    workerPool,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Issue 签发一个新的追踪标识（v4 UUID）。
// 全局唯一性由存储层的唯一索引兜底，冲突概率可忽略。
func (s *TrackingService) Issue() string {
	return uuid.NewString()
}

// PixelURL 构造追踪像素的绝对地址。
func (s *TrackingService) PixelURL(trackingID string) string {
	return fmt.Sprintf("%s/track/%s", s.baseURL, trackingID)
}

// ClickURL 构造点击跳转的绝对地址，目标地址整体转义后放在路径尾部。
func (s *TrackingService) ClickURL(trackingID, destination string) string {
	return fmt.Sprintf("%s/track-click/%s/%s", s.baseURL, trackingID, url.PathEscape(destination))
}

// Instrument 在外发 HTML 正文末尾注入 1x1 追踪像素。
func (s *TrackingService) Instrument(htmlBody, trackingID string) string {
	pixel := fmt.Sprintf(
		`<img src="%s" width="1" height="1" style="display:none" alt="" />`,
		s.PixelURL(trackingID),
	)
	return htmlBody + pixel
}

// RecordOpen 记录一次像素请求。
//
// 缓存命中说明迁移早已完成，直接短路；否则执行条件更新，
// 只有真正完成 false→true 迁移的那一次才计指标、回填缓存并推送事件。
// 未知追踪 ID 返回 storage.ErrTrackingNotFound，由 HTTP 层吞掉。
func (s *TrackingService) RecordOpen(ctx context.Context, trackingID string) error {
	if s.metrics != nil {
		s.metrics.RecordPixelHit()
	}

	if s.cache != nil {
		hit, err := s.cache.IsOpened(ctx, trackingID)
		if err != nil {
			// 缓存故障降级为直接打存储
			s.log.Warn("tracking cache lookup failed", zap.Error(err))
		} else if hit {
			if s.metrics != nil {
				s.metrics.RecordCacheHit()
			}
			return nil
		}
	}

	transitioned, err := s.markOpened(trackingID)
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.MarkOpened(ctx, trackingID); err != nil {
			s.log.Warn("tracking cache backfill failed", zap.Error(err))
		}
	}

	if transitioned {
		if s.metrics != nil {
			s.metrics.RecordOpen()
		}
		s.notify(trackingID, domain.EventOpen, "")
	}
	return nil
}

// RecordClick 记录一次点击跳转请求，语义与 RecordOpen 对称。
func (s *TrackingService) RecordClick(ctx context.Context, trackingID, destination string) error {
	if s.metrics != nil {
		s.metrics.RecordClickHit()
	}

	if s.cache != nil {
		hit, err := s.cache.IsClicked(ctx, trackingID)
		if err != nil {
			s.log.Warn("tracking cache lookup failed", zap.Error(err))
		} else if hit {
			if s.metrics != nil {
				s.metrics.RecordCacheHit()
			}
			return nil
		}
	}

	transitioned, err := s.markClicked(trackingID)
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.MarkClicked(ctx, trackingID); err != nil {
			s.log.Warn("tracking cache backfill failed", zap.Error(err))
		}
	}

	if transitioned {
		if s.metrics != nil {
			s.metrics.RecordClick()
		}
		s.notify(trackingID, domain.EventClick, destination)
	}
	return nil
}

// markOpened 执行打开迁移，追踪记录缺失且邮件存在时惰性补建后重试一次。
func (s *TrackingService) markOpened(trackingID string) (bool, error) {
	transitioned, err := s.store.MarkOpened(trackingID, time.Now().UTC())
	if errors.Is(err, storage.ErrTrackingNotFound) {
		if lazyErr := s.ensureTracking(trackingID); lazyErr != nil {
			return false, lazyErr
		}
		return s.store.MarkOpened(trackingID, time.Now().UTC())
	}
	return transitioned, err
}

// markClicked 执行点击迁移，语义与 markOpened 对称。
func (s *TrackingService) markClicked(trackingID string) (bool, error) {
	transitioned, err := s.store.MarkClicked(trackingID, time.Now().UTC())
	if errors.Is(err, storage.ErrTrackingNotFound) {
		if lazyErr := s.ensureTracking(trackingID); lazyErr != nil {
			return false, lazyErr
		}
		return s.store.MarkClicked(trackingID, time.Now().UTC())
	}
	return transitioned, err
}

// ensureTracking 为已存在的邮件补建空追踪记录。
// 邮件本身不存在时，追踪 ID 确实未知，返回 ErrTrackingNotFound。
func (s *TrackingService) ensureTracking(trackingID string) error {
	email, err := s.store.GetEmailByTrackingID(trackingID)
	if errors.Is(err, storage.ErrEmailNotFound) {
		return storage.ErrTrackingNotFound
	}
	if err != nil {
		return err
	}

	return s.store.SaveTracking(&domain.EmailTracking{
		ID:         uuid.NewString(),
		EmailID:    email.ID,
		TrackingID: trackingID,
	})
}

// InvalidateCache 清除追踪 ID 的缓存条目（删除邮件时调用）。
func (s *TrackingService) InvalidateCache(ctx context.Context, trackingID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, trackingID); err != nil {
		s.log.Warn("tracking cache invalidate failed",
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
	}
}

// notify 构造追踪事件并推送给发信用户，通过协程池异步执行。
func (s *TrackingService) notify(trackingID string, eventType domain.TrackingEventType, clickURL string) {
	if s.hub == nil {
		return
	}
	occurredAt := time.Now().UTC()

	task := func() {
		email, err := s.store.GetEmailByTrackingID(trackingID)
		if err != nil {
			s.log.Warn("failed to load email for tracking event",
				zap.String("tracking_id", trackingID),
				zap.Error(err),
			)
			return
		}
		s.hub.Notify(&domain.TrackingEvent{
			Type:       eventType,
			UserID:     email.UserID,
			EmailID:    email.ID,
			TrackingID: trackingID,
			Recipient:  email.Recipient,
			Subject:    email.Subject,
			OccurredAt: occurredAt,
			URL:        clickURL,
		})
	}

	if s.pool != nil {
		if !s.pool.TrySubmit(task) {
			s.log.Warn("worker pool full, dropping tracking notification",
				zap.String("tracking_id", trackingID),
			)
		}
		return
	}
	task()
}
