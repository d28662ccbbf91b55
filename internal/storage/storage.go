package storage

import (
	"errors"
	"time"

	"mailtrace/backend/internal/domain"
)

var (
	// ErrEmailNotFound 邮件未找到错误
	ErrEmailNotFound = errors.New("email not found")
	// ErrTrackingNotFound 追踪记录未找到错误
	ErrTrackingNotFound = errors.New("tracking record not found")
	// ErrUserNotFound 用户未找到错误
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists 注册邮箱已存在错误
	ErrEmailExists = errors.New("email already exists")
	// ErrDuplicateTrackingID 追踪 ID 冲突，违反全局唯一约束
	ErrDuplicateTrackingID = errors.New("duplicate tracking id")
	// ErrProfileNotFound 用户资料未找到错误
	ErrProfileNotFound = errors.New("profile not found")
)

// EmailRepository 定义邮件数据存取操作。
type EmailRepository interface {
	SaveEmail(email *domain.Email) error
	GetEmail(userID, emailID string) (*domain.Email, error)
	GetEmailByTrackingID(trackingID string) (*domain.Email, error)
	ListEmailsByCategory(userID string, category domain.EmailCategory) ([]domain.Email, error)
	ListStarredEmails(userID string) ([]domain.Email, error)
	UpdateEmailCategory(userID, emailID string, category domain.EmailCategory) error
	SetEmailStarred(userID, emailID string, starred bool) error
	DeleteEmail(userID, emailID string) error // 连同追踪记录一起删除
}

// TrackingRepository 定义打开/点击追踪数据存取操作。
//
// MarkOpened/MarkClicked 必须原子地完成 false→true 迁移：
// 只有真正发生迁移的那一次调用返回 transitioned=true，
// 并发重复调用既不覆盖时间戳也不报错。
type TrackingRepository interface {
	SaveTracking(tracking *domain.EmailTracking) error
	GetTrackingByEmailID(emailID string) (*domain.EmailTracking, error)
	GetTrackingByTrackingID(trackingID string) (*domain.EmailTracking, error)
	MarkOpened(trackingID string, at time.Time) (transitioned bool, err error)
	MarkClicked(trackingID string, at time.Time) (transitioned bool, err error)
	ListTrackingForUser(userID string) ([]domain.EmailWithTracking, error)
}

// UsageRepository 定义每日发送配额数据存取操作。
//
// ConsumeUsage 按用户串行化地执行 跨日清零 + 配额检查 + 递增，
// 返回消费后的当日计数；超限时返回 allowed=false 且不递增。
type UsageRepository interface {
	GetUsage(userID string) (*domain.EmailUsage, error)
	ConsumeUsage(userID string, limit int, now time.Time) (allowed bool, sentToday int, err error)
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	UpdateLastLogin(userID string) error
}

// ProfileRepository 定义用户资料数据存取操作。
type ProfileRepository interface {
	GetProfile(userID string) (*domain.Profile, error)
	SaveProfile(profile *domain.Profile) error
}

// Store 定义完整的存储接口。
type Store interface {
	EmailRepository
	TrackingRepository
	UsageRepository
	UserRepository
	ProfileRepository

	// 工具方法
	Close() error
	Health() error
}
