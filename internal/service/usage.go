package service

import (
	"errors"
	"fmt"
	"time"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/storage"
)

// ErrRateLimitExceeded 当日发送配额已用尽
var ErrRateLimitExceeded = errors.New("daily email limit reached")

// UsageStatus 用户当日配额的快照，供前端展示剩余额度。
type UsageStatus struct {
	SentToday  int `json:"sentToday"`
	DailyLimit int `json:"dailyLimit"`
	Remaining  int `json:"remaining"`
}

// UsageService 封装每日发送配额业务。
//
// 跨日清零、配额检查和计数递增是一个不可拆分的序列，
// 由 storage 层按用户串行化执行；本层只负责注入配额上限和时钟。
type UsageService struct {
	repo  storage.UsageRepository
	limit int
	now   func() time.Time
}

// NewUsageService 创建配额服务。
func NewUsageService(repo storage.UsageRepository, dailyLimit int) *UsageService {
	return &UsageService{
		repo:  repo,
		limit: dailyLimit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// TryConsume 消费一次发送额度，返回消费后的当日计数。
// 配额用尽时返回 ErrRateLimitExceeded，计数不递增。
func (s *UsageService) TryConsume(userID string) (int, error) {
	allowed, sentToday, err := s.repo.ConsumeUsage(userID, s.limit, s.now())
	if err != nil {
		return 0, fmt.Errorf("consume usage: %w", err)
	}
	if !allowed {
		return sentToday, ErrRateLimitExceeded
	}
	return sentToday, nil
}

// Status 返回用户当日配额的只读快照，不消费额度。
// 读取时同样应用跨日语义：上次清零不在今天则按零计数展示。
func (s *UsageService) Status(userID string) (*UsageStatus, error) {
	usage, err := s.repo.GetUsage(userID)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}

	sentToday := usage.EmailsSentToday
	if !domain.SameDay(usage.LastResetDate, s.now()) {
		sentToday = 0
	}

	remaining := s.limit - sentToday
	if remaining < 0 {
		remaining = 0
	}
	return &UsageStatus{
		SentToday:  sentToday,
		DailyLimit: s.limit,
		Remaining:  remaining,
	}, nil
}
