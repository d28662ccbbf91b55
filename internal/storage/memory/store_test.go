package memory

import (
	"sync"
	"testing"
	"time"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEmail(t *testing.T, store *Store, id, userID, trackingID string, category domain.EmailCategory) *domain.Email {
	t.Helper()
	email := &domain.Email{
		ID:          id,
		UserID:      userID,
		Recipient:   "rcpt@example.com",
		SenderEmail: "sender@example.com",
		Subject:     "Test Subject",
		Body:        "hello",
		TrackingID:  trackingID,
		Category:    category,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.SaveEmail(email))
	require.NoError(t, store.SaveTracking(&domain.EmailTracking{
		ID:         "trk-" + id,
		EmailID:    id,
		TrackingID: trackingID,
	}))
	return email
}

func TestMemoryStore_EmailOperations(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-1", domain.CategorySent)

	// Test GetEmail
	email, err := store.GetEmail("user-1", "email-1")
	require.NoError(t, err)
	assert.Equal(t, "tid-1", email.TrackingID)

	// 其他用户看不到这封邮件
	_, err = store.GetEmail("user-2", "email-1")
	assert.ErrorIs(t, err, storage.ErrEmailNotFound)

	// Test GetEmailByTrackingID
	email, err = store.GetEmailByTrackingID("tid-1")
	require.NoError(t, err)
	assert.Equal(t, "email-1", email.ID)

	// Test ListEmailsByCategory
	emails, err := store.ListEmailsByCategory("user-1", domain.CategorySent)
	require.NoError(t, err)
	assert.Len(t, emails, 1)

	// Test UpdateEmailCategory / SetEmailStarred
	require.NoError(t, store.UpdateEmailCategory("user-1", "email-1", domain.CategoryTrash))
	require.NoError(t, store.SetEmailStarred("user-1", "email-1", true))
	email, err = store.GetEmail("user-1", "email-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryTrash, email.Category)
	assert.True(t, email.Starred)
}

func TestMemoryStore_GetEmailReturnsCopy(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-1", domain.CategorySent)

	email, err := store.GetEmail("user-1", "email-1")
	require.NoError(t, err)
	email.Subject = "mutated outside the lock"

	// 调用方修改返回值不影响存储内的记录
	got, err := store.GetEmail("user-1", "email-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Subject", got.Subject)

	tracking, err := store.GetTrackingByTrackingID("tid-1")
	require.NoError(t, err)
	tracking.Opened = true

	got2, err := store.GetTrackingByTrackingID("tid-1")
	require.NoError(t, err)
	assert.False(t, got2.Opened)
}

func TestMemoryStore_ListStarredEmails(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-1", domain.CategorySent)
	seedEmail(t, store, "email-2", "user-1", "tid-2", domain.CategoryInbox)
	seedEmail(t, store, "email-3", "user-1", "tid-3", domain.CategoryTrash)

	require.NoError(t, store.SetEmailStarred("user-1", "email-1", true))
	require.NoError(t, store.SetEmailStarred("user-1", "email-3", true))

	// 星标视图跨文件夹，但不包含废纸篓
	emails, err := store.ListStarredEmails("user-1")
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "email-1", emails[0].ID)
}

func TestMemoryStore_SaveTrackingIdempotent(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-1", domain.CategorySent)

	transitioned, err := store.MarkOpened("tid-1", time.Now())
	require.NoError(t, err)
	require.True(t, transitioned)

	// 重复创建不会清掉已写入的打开标志
	require.NoError(t, store.SaveTracking(&domain.EmailTracking{
		ID:         "trk-late",
		EmailID:    "email-1",
		TrackingID: "tid-1",
	}))
	tracking, err := store.GetTrackingByTrackingID("tid-1")
	require.NoError(t, err)
	assert.True(t, tracking.Opened)
}

func TestMemoryStore_DuplicateTrackingID(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-dup", domain.CategorySent)

	err := store.SaveEmail(&domain.Email{
		ID:         "email-2",
		UserID:     "user-1",
		TrackingID: "tid-dup",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateTrackingID)
}

func TestMemoryStore_DeleteEmailCascades(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-1", domain.CategoryTrash)

	require.NoError(t, store.DeleteEmail("user-1", "email-1"))

	_, err := store.GetEmailByTrackingID("tid-1")
	assert.ErrorIs(t, err, storage.ErrEmailNotFound)
	_, err = store.GetTrackingByTrackingID("tid-1")
	assert.ErrorIs(t, err, storage.ErrTrackingNotFound)

	// 已删除的追踪 ID 不再触发任何状态迁移
	transitioned, err := store.MarkOpened("tid-1", time.Now())
	assert.ErrorIs(t, err, storage.ErrTrackingNotFound)
	assert.False(t, transitioned)
}

func TestMemoryStore_MarkOpenedOnce(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-1", domain.CategorySent)

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	transitioned, err := store.MarkOpened("tid-1", first)
	require.NoError(t, err)
	assert.True(t, transitioned)

	// 第二次打开不改变时间戳
	transitioned, err = store.MarkOpened("tid-1", first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, transitioned)

	tracking, err := store.GetTrackingByTrackingID("tid-1")
	require.NoError(t, err)
	assert.True(t, tracking.Opened)
	require.NotNil(t, tracking.OpenedAt)
	assert.Equal(t, first, *tracking.OpenedAt)
	assert.False(t, tracking.Clicked)
}

func TestMemoryStore_MarkOpenedConcurrent(t *testing.T) {
	store := NewStore()
	seedEmail(t, store, "email-1", "user-1", "tid-1", domain.CategorySent)

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transitioned, err := store.MarkOpened("tid-1", time.Now())
			assert.NoError(t, err)
			results <- transitioned
		}()
	}
	wg.Wait()
	close(results)

	// 并发打开只有一次真正发生迁移
	count := 0
	for transitioned := range results {
		if transitioned {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestMemoryStore_ConsumeUsage(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		allowed, sent, err := store.ConsumeUsage("user-1", 3, now)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, sent)
	}

	// 超限后拒绝且不再递增
	allowed, sent, err := store.ConsumeUsage("user-1", 3, now)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, sent)

	// 跨日后计数清零
	allowed, sent, err = store.ConsumeUsage("user-1", 3, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, sent)
}

func TestMemoryStore_ConsumeUsageConcurrent(t *testing.T) {
	store := NewStore()
	now := time.Now()

	const workers = 30
	const limit = 10
	var wg sync.WaitGroup
	allowedCount := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := store.ConsumeUsage("user-1", limit, now)
			assert.NoError(t, err)
			allowedCount <- allowed
		}()
	}
	wg.Wait()
	close(allowedCount)

	count := 0
	for allowed := range allowedCount {
		if allowed {
			count++
		}
	}
	assert.Equal(t, limit, count)
}

func TestMemoryStore_UserOperations(t *testing.T) {
	store := NewStore()

	user := &domain.User{
		ID:    "user-1",
		Email: "alice@example.com",
		Role:  domain.RoleUser,
	}
	require.NoError(t, store.CreateUser(user))

	// 重复注册邮箱被拒绝
	err := store.CreateUser(&domain.User{ID: "user-2", Email: "alice@example.com"})
	assert.ErrorIs(t, err, storage.ErrEmailExists)

	got, err := store.GetUserByEmail("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)

	require.NoError(t, store.UpdateLastLogin("user-1"))
	got, err = store.GetUserByID("user-1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)
}

func TestMemoryStore_ProfileOperations(t *testing.T) {
	store := NewStore()

	_, err := store.GetProfile("user-1")
	assert.ErrorIs(t, err, storage.ErrProfileNotFound)

	require.NoError(t, store.SaveProfile(&domain.Profile{
		UserID:     "user-1",
		Bio:        "hello",
		AvatarName: "user-1.png",
	}))

	profile, err := store.GetProfile("user-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", profile.Bio)
	assert.False(t, profile.UpdatedAt.IsZero())
}
