package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtrace/backend/internal/storage/memory"
)

func TestUsageService_TryConsume(t *testing.T) {
	store := memory.NewStore()
	svc := NewUsageService(store, 3)

	t.Run("额度内允许发送", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			sent, err := svc.TryConsume("user-1")
			require.NoError(t, err)
			assert.Equal(t, i, sent)
		}
	})

	t.Run("超限返回错误且计数不再递增", func(t *testing.T) {
		sent, err := svc.TryConsume("user-1")
		assert.ErrorIs(t, err, ErrRateLimitExceeded)
		assert.Equal(t, 3, sent)

		sent, err = svc.TryConsume("user-1")
		assert.ErrorIs(t, err, ErrRateLimitExceeded)
		assert.Equal(t, 3, sent)
	})

	t.Run("不同用户额度互不影响", func(t *testing.T) {
		sent, err := svc.TryConsume("user-2")
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
	})
}

func TestUsageService_CrossDayReset(t *testing.T) {
	store := memory.NewStore()
	svc := NewUsageService(store, 2)

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }

	_, err := svc.TryConsume("user-1")
	require.NoError(t, err)
	_, err = svc.TryConsume("user-1")
	require.NoError(t, err)
	_, err = svc.TryConsume("user-1")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// 跨日后计数清零
	svc.now = func() time.Time { return day1.Add(2 * time.Minute) }
	sent, err := svc.TryConsume("user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestUsageService_Status(t *testing.T) {
	store := memory.NewStore()
	svc := NewUsageService(store, 10)

	t.Run("从未发送的用户", func(t *testing.T) {
		status, err := svc.Status("fresh-user")
		require.NoError(t, err)
		assert.Equal(t, 0, status.SentToday)
		assert.Equal(t, 10, status.DailyLimit)
		assert.Equal(t, 10, status.Remaining)
	})

	t.Run("消费后状态同步", func(t *testing.T) {
		_, err := svc.TryConsume("user-1")
		require.NoError(t, err)

		status, err := svc.Status("user-1")
		require.NoError(t, err)
		assert.Equal(t, 1, status.SentToday)
		assert.Equal(t, 9, status.Remaining)
	})

	t.Run("状态查询不消费额度", func(t *testing.T) {
		before, err := svc.Status("user-1")
		require.NoError(t, err)
		after, err := svc.Status("user-1")
		require.NoError(t, err)
		assert.Equal(t, before.SentToday, after.SentToday)
	})

	t.Run("跨日后按零计数展示", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }
		status, err := svc.Status("user-1")
		require.NoError(t, err)
		assert.Equal(t, 0, status.SentToday)
		assert.Equal(t, 10, status.Remaining)
	})
}
