package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TrackingCache 缓存已经完成迁移的追踪状态。
//
// 打开/点击标志是单调的，true 之后永远为 true，所以缓存命中时
// 像素/点击路径可以直接短路，不必再打数据库。缓存只存正向结论，
// 未命中不代表未打开。
type TrackingCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewTrackingCache 创建追踪状态缓存。
func NewTrackingCache(client *Client, ttl time.Duration) *TrackingCache {
	return &TrackingCache{
		client: client.Client(),
		ttl:    ttl,
	}
}

func openedKey(trackingID string) string {
	return fmt.Sprintf("tracking:opened:%s", trackingID)
}

func clickedKey(trackingID string) string {
	return fmt.Sprintf("tracking:clicked:%s", trackingID)
}

// MarkOpened 记录追踪 ID 已打开。
func (c *TrackingCache) MarkOpened(ctx context.Context, trackingID string) error {
	return c.client.Set(ctx, openedKey(trackingID), "1", c.ttl).Err()
}

// IsOpened 判断追踪 ID 是否已知打开过。false 只代表缓存未命中。
func (c *TrackingCache) IsOpened(ctx context.Context, trackingID string) (bool, error) {
	err := c.client.Get(ctx, openedKey(trackingID)).Err()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkClicked 记录追踪 ID 已点击。
func (c *TrackingCache) MarkClicked(ctx context.Context, trackingID string) error {
	return c.client.Set(ctx, clickedKey(trackingID), "1", c.ttl).Err()
}

// IsClicked 判断追踪 ID 是否已知点击过。false 只代表缓存未命中。
func (c *TrackingCache) IsClicked(ctx context.Context, trackingID string) (bool, error) {
	err := c.client.Get(ctx, clickedKey(trackingID)).Err()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate 清除指定追踪 ID 的缓存条目（删除邮件时使用）。
func (c *TrackingCache) Invalidate(ctx context.Context, trackingID string) error {
	return c.client.Del(ctx, openedKey(trackingID), clickedKey(trackingID)).Err()
}
