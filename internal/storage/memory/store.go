package memory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/storage"
)

// Store 使用内存保存邮件、追踪与配额数据，主要用于开发验证。
//
// 所有读写经过同一把锁，配额的 清零-检查-递增 序列天然按用户串行化。
type Store struct {
	mu          sync.RWMutex
	emails      map[string]*domain.Email         // emailID -> email
	byTracking  map[string]string                // trackingID -> emailID
	trackings   map[string]*domain.EmailTracking // emailID -> tracking
	usages      map[string]*domain.EmailUsage    // userID -> usage
	users       map[string]*domain.User          // userID -> user
	byUserEmail map[string]string                // email -> userID
	profiles    map[string]*domain.Profile       // userID -> profile
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		emails:      make(map[string]*domain.Email),
		byTracking:  make(map[string]string),
		trackings:   make(map[string]*domain.EmailTracking),
		usages:      make(map[string]*domain.EmailUsage),
		users:       make(map[string]*domain.User),
		byUserEmail: make(map[string]string),
		profiles:    make(map[string]*domain.Profile),
	}
}

// ========== Email Repository ==========

// SaveEmail 保存邮件，追踪 ID 冲突时拒绝写入。
func (s *Store) SaveEmail(email *domain.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if email.ID == "" {
		return errors.New("email ID is required")
	}
	if existing, ok := s.byTracking[email.TrackingID]; ok && existing != email.ID {
		return storage.ErrDuplicateTrackingID
	}

	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}

	s.emails[email.ID] = email
	s.byTracking[email.TrackingID] = email.ID
	return nil
}

// GetEmail 获取属于指定用户的单封邮件。返回副本，调用方的修改不会写回存储。
func (s *Store) GetEmail(userID, emailID string) (*domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.emails[emailID]
	if !ok || email.UserID != userID {
		return nil, storage.ErrEmailNotFound
	}
	e := *email
	return &e, nil
}

// GetEmailByTrackingID 根据追踪 ID 获取邮件，不做用户过滤（公开追踪端点使用）。
func (s *Store) GetEmailByTrackingID(trackingID string) (*domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emailID, ok := s.byTracking[trackingID]
	if !ok {
		return nil, storage.ErrEmailNotFound
	}
	email, ok := s.emails[emailID]
	if !ok {
		return nil, storage.ErrEmailNotFound
	}
	e := *email
	return &e, nil
}

// ListEmailsByCategory 按文件夹列出用户邮件，按创建时间倒序。
func (s *Store) ListEmailsByCategory(userID string, category domain.EmailCategory) ([]domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Email, 0)
	for _, email := range s.emails {
		if email.UserID == userID && email.Category == category {
			result = append(result, *email)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListStarredEmails 列出用户加星的邮件（废纸篓中的除外），按创建时间倒序。
func (s *Store) ListStarredEmails(userID string) ([]domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Email, 0)
	for _, email := range s.emails {
		if email.UserID == userID && email.Starred && email.Category != domain.CategoryTrash {
			result = append(result, *email)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateEmailCategory 移动邮件到指定文件夹。
func (s *Store) UpdateEmailCategory(userID, emailID string, category domain.EmailCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.emails[emailID]
	if !ok || email.UserID != userID {
		return storage.ErrEmailNotFound
	}
	email.Category = category
	return nil
}

// SetEmailStarred 设置邮件星标。
func (s *Store) SetEmailStarred(userID, emailID string, starred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.emails[emailID]
	if !ok || email.UserID != userID {
		return storage.ErrEmailNotFound
	}
	email.Starred = starred
	return nil
}

// DeleteEmail 永久删除邮件及其追踪记录。
// 追踪 ID 的索引条目一并移除，此后该 ID 不再命中，也永不复用。
func (s *Store) DeleteEmail(userID, emailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.emails[emailID]
	if !ok || email.UserID != userID {
		return storage.ErrEmailNotFound
	}

	delete(s.byTracking, email.TrackingID)
	delete(s.trackings, emailID)
	delete(s.emails, emailID)
	return nil
}

// ========== Tracking Repository ==========

// SaveTracking 创建追踪记录。已存在同邮件的记录时保持原记录不变，
// 避免惰性创建的并发调用覆盖掉已写入的打开/点击标志。
func (s *Store) SaveTracking(tracking *domain.EmailTracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[tracking.EmailID]; !ok {
		return storage.ErrEmailNotFound
	}
	if _, exists := s.trackings[tracking.EmailID]; exists {
		return nil
	}
	s.trackings[tracking.EmailID] = tracking
	return nil
}

// GetTrackingByEmailID 根据邮件 ID 获取追踪记录。
func (s *Store) GetTrackingByEmailID(emailID string) (*domain.EmailTracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracking, ok := s.trackings[emailID]
	if !ok {
		return nil, storage.ErrTrackingNotFound
	}
	tr := *tracking
	return &tr, nil
}

// GetTrackingByTrackingID 根据追踪 ID 获取追踪记录。
func (s *Store) GetTrackingByTrackingID(trackingID string) (*domain.EmailTracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracking, err := s.trackingByIDLocked(trackingID)
	if err != nil {
		return nil, err
	}
	tr := *tracking
	return &tr, nil
}

// MarkOpened 原子地完成打开标志的 false→true 迁移。
func (s *Store) MarkOpened(trackingID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracking, err := s.trackingByIDLocked(trackingID)
	if err != nil {
		return false, err
	}
	if tracking.Opened {
		return false, nil
	}
	at = at.UTC()
	tracking.Opened = true
	tracking.OpenedAt = &at
	return true, nil
}

// MarkClicked 原子地完成点击标志的 false→true 迁移。
func (s *Store) MarkClicked(trackingID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracking, err := s.trackingByIDLocked(trackingID)
	if err != nil {
		return false, err
	}
	if tracking.Clicked {
		return false, nil
	}
	at = at.UTC()
	tracking.Clicked = true
	tracking.ClickedAt = &at
	return true, nil
}

func (s *Store) trackingByIDLocked(trackingID string) (*domain.EmailTracking, error) {
	emailID, ok := s.byTracking[trackingID]
	if !ok {
		return nil, storage.ErrTrackingNotFound
	}
	tracking, ok := s.trackings[emailID]
	if !ok {
		return nil, storage.ErrTrackingNotFound
	}
	return tracking, nil
}

// ListTrackingForUser 返回用户所有已发送邮件及其追踪状态，按发送时间倒序。
func (s *Store) ListTrackingForUser(userID string) ([]domain.EmailWithTracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.EmailWithTracking, 0)
	for _, email := range s.emails {
		if email.UserID != userID || email.Category != domain.CategorySent {
			continue
		}
		item := domain.EmailWithTracking{Email: *email}
		if tracking, ok := s.trackings[email.ID]; ok {
			t := *tracking
			item.Tracking = &t
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Email, result[j].Email
		if a.SentAt != nil && b.SentAt != nil {
			return a.SentAt.After(*b.SentAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return result, nil
}

// ========== Usage Repository ==========

// GetUsage 获取用户的当日发送计数，不存在时返回零值记录。
func (s *Store) GetUsage(userID string) (*domain.EmailUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage, ok := s.usages[userID]
	if !ok {
		return &domain.EmailUsage{UserID: userID, LastResetDate: domain.Midnight(time.Now())}, nil
	}
	u := *usage
	return &u, nil
}

// ConsumeUsage 在锁内完成 跨日清零 + 配额检查 + 递增。
// 超限时不递增计数，返回当前计数供调用方提示。
func (s *Store) ConsumeUsage(userID string, limit int, now time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.usages[userID]
	if !ok {
		usage = &domain.EmailUsage{UserID: userID, LastResetDate: domain.Midnight(now)}
		s.usages[userID] = usage
	}

	if !domain.SameDay(usage.LastResetDate, now) {
		usage.EmailsSentToday = 0
		usage.LastResetDate = domain.Midnight(now)
	}

	if usage.EmailsSentToday >= limit {
		return false, usage.EmailsSentToday, nil
	}
	usage.EmailsSentToday++
	return true, usage.EmailsSentToday, nil
}

// ========== User Repository ==========

// CreateUser 创建新用户。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		return errors.New("user ID is required")
	}
	if _, exists := s.byUserEmail[user.Email]; exists {
		return storage.ErrEmailExists
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	s.users[user.ID] = user
	s.byUserEmail[user.Email] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// GetUserByEmail 根据注册邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byUserEmail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// UpdateUser 更新用户信息。
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrUserNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = user
	return nil
}

// UpdateLastLogin 更新用户最后登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	user.UpdatedAt = now
	return nil
}

// ========== Profile Repository ==========

// GetProfile 获取用户资料。
func (s *Store) GetProfile(userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, storage.ErrProfileNotFound
	}
	p := *profile
	return &p, nil
}

// SaveProfile 保存用户资料。
func (s *Store) SaveProfile(profile *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile.UpdatedAt = time.Now().UTC()
	p := *profile
	s.profiles[profile.UserID] = &p
	return nil
}

// ========== 工具方法 ==========

// Close 关闭存储连接。
func (s *Store) Close() error {
	// 内存存储不需要关闭连接
	return nil
}

// Health 健康检查。
func (s *Store) Health() error {
	// 内存存储总是健康的
	return nil
}
