package sql

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储并执行迁移。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	// 验证驱动类型
	var dialector gorm.Dialector
	switch driverName {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // 把方言各异的唯一约束错误翻译成 gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, driverName: driverName}

	if err := store.Migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Migrate 执行数据库迁移（使用 GORM AutoMigrate）。
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Profile{},
		&domain.Email{},
		&domain.EmailTracking{},
		&domain.EmailUsage{},
	)
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ========== Email Repository ==========

// SaveEmail 保存邮件。追踪 ID 的唯一索引冲突会转换成 ErrDuplicateTrackingID。
func (s *Store) SaveEmail(email *domain.Email) error {
	err := s.db.Save(email).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrDuplicateTrackingID
	}
	return err
}

// GetEmail 获取属于指定用户的单封邮件。
func (s *Store) GetEmail(userID, emailID string) (*domain.Email, error) {
	var email domain.Email
	err := s.db.Where("id = ? AND user_id = ?", emailID, userID).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// GetEmailByTrackingID 根据追踪 ID 获取邮件（公开追踪端点使用）。
func (s *Store) GetEmailByTrackingID(trackingID string) (*domain.Email, error) {
	var email domain.Email
	err := s.db.Where("tracking_id = ?", trackingID).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// ListEmailsByCategory 按文件夹列出用户邮件，按创建时间倒序。
func (s *Store) ListEmailsByCategory(userID string, category domain.EmailCategory) ([]domain.Email, error) {
	emails := make([]domain.Email, 0)
	err := s.db.
		Where("user_id = ? AND category = ?", userID, category).
		Order("created_at DESC").
		Find(&emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}

// ListStarredEmails 列出用户加星的邮件（废纸篓中的除外），按创建时间倒序。
func (s *Store) ListStarredEmails(userID string) ([]domain.Email, error) {
	emails := make([]domain.Email, 0)
	err := s.db.
		Where("user_id = ? AND starred = ? AND category <> ?", userID, true, domain.CategoryTrash).
		Order("created_at DESC").
		Find(&emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}

// UpdateEmailCategory 移动邮件到指定文件夹。
func (s *Store) UpdateEmailCategory(userID, emailID string, category domain.EmailCategory) error {
	result := s.db.Model(&domain.Email{}).
		Where("id = ? AND user_id = ?", emailID, userID).
		Update("category", category)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrEmailNotFound
	}
	return nil
}

// SetEmailStarred 设置邮件星标。
func (s *Store) SetEmailStarred(userID, emailID string, starred bool) error {
	result := s.db.Model(&domain.Email{}).
		Where("id = ? AND user_id = ?", emailID, userID).
		Update("starred", starred)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrEmailNotFound
	}
	return nil
}

// DeleteEmail 在事务内永久删除邮件及其追踪记录。
func (s *Store) DeleteEmail(userID, emailID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", emailID, userID).Delete(&domain.Email{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrEmailNotFound
		}
		return tx.Where("email_id = ?", emailID).Delete(&domain.EmailTracking{}).Error
	})
}

// ========== Tracking Repository ==========

// SaveTracking 创建追踪记录。唯一索引冲突说明记录已存在，视为成功，
// 避免惰性创建的并发调用覆盖掉已写入的打开/点击标志。
func (s *Store) SaveTracking(tracking *domain.EmailTracking) error {
	err := s.db.Create(tracking).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// GetTrackingByEmailID 根据邮件 ID 获取追踪记录。
func (s *Store) GetTrackingByEmailID(emailID string) (*domain.EmailTracking, error) {
	var tracking domain.EmailTracking
	err := s.db.Where("email_id = ?", emailID).First(&tracking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrTrackingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tracking, nil
}

// GetTrackingByTrackingID 根据追踪 ID 获取追踪记录。
func (s *Store) GetTrackingByTrackingID(trackingID string) (*domain.EmailTracking, error) {
	var tracking domain.EmailTracking
	err := s.db.Where("tracking_id = ?", trackingID).First(&tracking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrTrackingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tracking, nil
}

// MarkOpened 用单条条件 UPDATE 完成打开标志的 false→true 迁移。
// 并发命中同一条记录时，数据库保证只有一条 UPDATE 改到行，
// RowsAffected 就是"是否由本次调用完成迁移"的判据。
func (s *Store) MarkOpened(trackingID string, at time.Time) (bool, error) {
	result := s.db.Model(&domain.EmailTracking{}).
		Where("tracking_id = ? AND opened = ?", trackingID, false).
		Updates(map[string]interface{}{
			"opened":    true,
			"opened_at": at.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	// 没改到行：要么已打开，要么记录不存在
	return false, s.trackingExists(trackingID)
}

// MarkClicked 用单条条件 UPDATE 完成点击标志的 false→true 迁移。
func (s *Store) MarkClicked(trackingID string, at time.Time) (bool, error) {
	result := s.db.Model(&domain.EmailTracking{}).
		Where("tracking_id = ? AND clicked = ?", trackingID, false).
		Updates(map[string]interface{}{
			"clicked":    true,
			"clicked_at": at.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	return false, s.trackingExists(trackingID)
}

func (s *Store) trackingExists(trackingID string) error {
	var count int64
	if err := s.db.Model(&domain.EmailTracking{}).
		Where("tracking_id = ?", trackingID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return storage.ErrTrackingNotFound
	}
	return nil
}

// ListTrackingForUser 返回用户所有已发送邮件及其追踪状态，按发送时间倒序。
func (s *Store) ListTrackingForUser(userID string) ([]domain.EmailWithTracking, error) {
	emails := make([]domain.Email, 0)
	err := s.db.
		Where("user_id = ? AND category = ?", userID, domain.CategorySent).
		Order("sent_at DESC").
		Find(&emails).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.EmailWithTracking, 0, len(emails))
	for _, email := range emails {
		item := domain.EmailWithTracking{Email: email}
		var tracking domain.EmailTracking
		err := s.db.Where("email_id = ?", email.ID).First(&tracking).Error
		switch {
		case err == nil:
			t := tracking
			item.Tracking = &t
		case errors.Is(err, gorm.ErrRecordNotFound):
			// 追踪记录缺失时只返回邮件本身
		default:
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

// ========== Usage Repository ==========

// GetUsage 获取用户的当日发送计数，不存在时返回零值记录。
func (s *Store) GetUsage(userID string) (*domain.EmailUsage, error) {
	var usage domain.EmailUsage
	err := s.db.Where("user_id = ?", userID).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.EmailUsage{UserID: userID, LastResetDate: domain.Midnight(time.Now())}, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// ConsumeUsage 在事务内用行锁串行化 跨日清零 + 配额检查 + 递增。
func (s *Store) ConsumeUsage(userID string, limit int, now time.Time) (bool, int, error) {
	var allowed bool
	var sentToday int

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var usage domain.EmailUsage
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&usage).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			usage = domain.EmailUsage{UserID: userID, LastResetDate: domain.Midnight(now)}
			if err := tx.Create(&usage).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if !domain.SameDay(usage.LastResetDate, now) {
			usage.EmailsSentToday = 0
			usage.LastResetDate = domain.Midnight(now)
		}

		if usage.EmailsSentToday >= limit {
			allowed = false
			sentToday = usage.EmailsSentToday
			// 跨日清零仍需落库
			return tx.Save(&usage).Error
		}

		usage.EmailsSentToday++
		allowed = true
		sentToday = usage.EmailsSentToday
		return tx.Save(&usage).Error
	})
	if err != nil {
		return false, 0, err
	}
	return allowed, sentToday, nil
}

// ========== User Repository ==========

// CreateUser 创建新用户。
func (s *Store) CreateUser(user *domain.User) error {
	err := s.db.Create(user).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrEmailExists
	}
	return err
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail 根据注册邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser 更新用户信息。
func (s *Store) UpdateUser(user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	result := s.db.Model(&domain.User{}).Where("id = ?", user.ID).Updates(user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin 更新用户最后登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	now := time.Now().UTC()
	result := s.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": now,
			"updated_at":    now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// ========== Profile Repository ==========

// GetProfile 获取用户资料。
func (s *Store) GetProfile(userID string) (*domain.Profile, error) {
	var profile domain.Profile
	err := s.db.Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveProfile 保存用户资料。
func (s *Store) SaveProfile(profile *domain.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	return s.db.Save(profile).Error
}
