package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/mail"
	"mailtrace/backend/internal/monitoring"
	"mailtrace/backend/internal/security"
	"mailtrace/backend/internal/storage"
)

var (
	// ErrValidation 发送请求字段非法
	ErrValidation = errors.New("invalid send request")
	// ErrContentRejected 内容被过滤器拦截
	ErrContentRejected = errors.New("content rejected by filter")
	// ErrAttachmentRejected 附件未通过安全检查
	ErrAttachmentRejected = errors.New("attachment rejected")
	// ErrDispatch 上游 SMTP 投递失败
	ErrDispatch = errors.New("email dispatch failed")
	// ErrNotInTrash 永久删除只允许作用于废纸篓中的邮件
	ErrNotInTrash = errors.New("email is not in trash")
	// ErrInvalidFolder 未知的文件夹名
	ErrInvalidFolder = errors.New("invalid folder")
)

// SendInput 定义发送一封邮件所需的输入。
type SendInput struct {
	UserID      string
	SenderEmail string // 可选，留空使用系统默认发件人
	Recipient   string
	Subject     string
	Body        string // HTML 正文，追踪像素由服务注入
	Attachment  *mail.Attachment
}

// EmailService 编排邮件发送的完整流水线。
//
// 五个阶段按序执行、逐段快速失败：校验 → 配额 → 内容过滤 →
// 投递 → 落库。投递成功后落库失败是接受的不一致窗口，
// 记录错误日志后照常返回错误，不回滚已发出的邮件。
type EmailService struct {
	store     storage.Store
	validator *domain.EmailValidator
	filter    *security.ContentFilter
	attachSec *security.AttachmentSecurity
	sender    mail.Sender
	tracking  *TrackingService
	usage     *UsageService
	metrics   *monitoring.Metrics // 可选
	from      string              // 系统默认发件人
	log       *zap.Logger
}

// NewEmailService 创建邮件服务。
func NewEmailService(
	store storage.Store,
	filter *security.ContentFilter,
	attachSec *security.AttachmentSecurity,
	sender mail.Sender,
	tracking *TrackingService,
	usage *UsageService,
	metrics *monitoring.Metrics,
	defaultFrom string,
	log *zap.Logger,
) *EmailService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailService{
		store:     store,
		validator: domain.NewEmailValidator(),
		filter:    filter,
		attachSec: attachSec,
		sender:    sender,
		tracking:  tracking,
		usage:     usage,
		metrics:   metrics,
		from:      defaultFrom,
		log:       log,
	}
}

// Send 执行发送流水线，成功时返回已落库的邮件记录。
func (s *EmailService) Send(input SendInput) (*domain.Email, error) {
	// 阶段一：字段校验
	if err := s.validateSend(&input); err != nil {
		s.rejectSend("validation")
		return nil, err
	}

	// 阶段二：每日配额，通过即消费一次额度
	if _, err := s.usage.TryConsume(input.UserID); err != nil {
		if errors.Is(err, ErrRateLimitExceeded) {
			s.rejectSend("rate_limit")
		}
		return nil, err
	}

	// 阶段三：内容过滤与附件安全检查，只匹配正文
	if allowed, matched := s.filter.Check(input.Body); !allowed {
		s.rejectSend("content_filter")
		return nil, fmt.Errorf("%w: matched keyword %q", ErrContentRejected, matched)
	}
	if input.Attachment != nil {
		att := input.Attachment
		if err := s.attachSec.CheckAttachment(att.Filename, att.ContentType, int64(len(att.Content))); err != nil {
			s.rejectSend("attachment")
			return nil, fmt.Errorf("%w: %v", ErrAttachmentRejected, err)
		}
	}

	// 阶段四：注入追踪像素并投递
	trackingID := s.tracking.Issue()
	instrumented := s.tracking.Instrument(input.Body, trackingID)

	from := input.SenderEmail
	if from == "" {
		from = s.from
	}

	err := s.sender.Send(&mail.OutboundMessage{
		From:       from,
		To:         input.Recipient,
		Subject:    input.Subject,
		HTMLBody:   instrumented,
		Attachment: input.Attachment,
	})
	if err != nil {
		s.rejectSend("dispatch")
		return nil, fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	// 阶段五：落库（邮件 + 空追踪记录）
	now := time.Now().UTC()
	email := &domain.Email{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Recipient:   input.Recipient,
		SenderEmail: from,
		Subject:     input.Subject,
		Body:        input.Body,
		TrackingID:  trackingID,
		Category:    domain.CategorySent,
		CreatedAt:   now,
		SentAt:      &now,
	}
	if input.Attachment != nil {
		email.AttachmentName = input.Attachment.Filename
	}

	if err := s.store.SaveEmail(email); err != nil {
		// 邮件已发出但没有留档，接受这个不一致窗口
		s.log.Error("email dispatched but persistence failed",
			zap.String("user_id", input.UserID),
			zap.String("recipient", input.Recipient),
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("persist email: %w", err)
	}
	if err := s.store.SaveTracking(&domain.EmailTracking{
		ID:         uuid.NewString(),
		EmailID:    email.ID,
		TrackingID: trackingID,
	}); err != nil {
		// 追踪记录会在首次像素请求时惰性补建
		s.log.Warn("failed to create tracking record",
			zap.String("email_id", email.ID),
			zap.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordEmailSent()
	}
	s.log.Info("email sent",
		zap.String("user_id", input.UserID),
		zap.String("recipient", input.Recipient),
		zap.String("tracking_id", trackingID),
	)
	return email, nil
}

// validateSend 校验发送请求的各字段。
func (s *EmailService) validateSend(input *SendInput) error {
	if input.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if err := s.validator.ValidateAddress(input.Recipient); err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrValidation, err)
	}
	if input.SenderEmail != "" {
		if err := s.validator.ValidateAddress(input.SenderEmail); err != nil {
			return fmt.Errorf("%w: sender: %v", ErrValidation, err)
		}
	}
	if input.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	return nil
}

func (s *EmailService) rejectSend(reason string) {
	if s.metrics != nil {
		s.metrics.RecordSendRejection(reason)
	}
}

// SaveDraft 把撰写中的邮件存为草稿，不投递也不消费配额。
// 草稿在创建时就分配追踪 ID，正式发送前不会创建追踪记录。
func (s *EmailService) SaveDraft(input SendInput) (*domain.Email, error) {
	if input.Recipient != "" {
		if err := s.validator.ValidateAddress(input.Recipient); err != nil {
			return nil, fmt.Errorf("%w: recipient: %v", ErrValidation, err)
		}
	}

	email := &domain.Email{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Recipient:   input.Recipient,
		SenderEmail: input.SenderEmail,
		Subject:     input.Subject,
		Body:        input.Body,
		TrackingID:  s.tracking.Issue(),
		Category:    domain.CategoryDraft,
		CreatedAt:   time.Now().UTC(),
	}
	if input.Attachment != nil {
		email.AttachmentName = input.Attachment.Filename
	}

	if err := s.store.SaveEmail(email); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return email, nil
}

// folderCategories 映射 URL 中的文件夹名到存储分类。
var folderCategories = map[string]domain.EmailCategory{
	"inbox":  domain.CategoryInbox,
	"sent":   domain.CategorySent,
	"drafts": domain.CategoryDraft,
	"trash":  domain.CategoryTrash,
}

// ListFolder 列出指定文件夹内的邮件。"starred" 是跨文件夹的虚拟视图。
func (s *EmailService) ListFolder(userID, folder string) ([]domain.Email, error) {
	if folder == "starred" {
		return s.store.ListStarredEmails(userID)
	}
	category, ok := folderCategories[folder]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFolder, folder)
	}
	return s.store.ListEmailsByCategory(userID, category)
}

// Get 获取用户的单封邮件。
func (s *EmailService) Get(userID, emailID string) (*domain.Email, error) {
	return s.store.GetEmail(userID, emailID)
}

// MoveToTrash 把邮件移入废纸篓。
func (s *EmailService) MoveToTrash(userID, emailID string) error {
	return s.store.UpdateEmailCategory(userID, emailID, domain.CategoryTrash)
}

// MoveToInbox 把邮件从废纸篓还原到收件箱。
func (s *EmailService) MoveToInbox(userID, emailID string) error {
	return s.store.UpdateEmailCategory(userID, emailID, domain.CategoryInbox)
}

// ToggleStar 翻转邮件星标，返回新的星标状态。
func (s *EmailService) ToggleStar(userID, emailID string) (bool, error) {
	email, err := s.store.GetEmail(userID, emailID)
	if err != nil {
		return false, err
	}
	starred := !email.Starred
	if err := s.store.SetEmailStarred(userID, emailID, starred); err != nil {
		return false, err
	}
	return starred, nil
}

// DeleteForever 永久删除废纸篓中的邮件，连同追踪记录和缓存条目。
// 追踪 ID 删除后不再命中，也永不复用。
func (s *EmailService) DeleteForever(ctx context.Context, userID, emailID string) error {
	email, err := s.store.GetEmail(userID, emailID)
	if err != nil {
		return err
	}
	if email.Category != domain.CategoryTrash {
		return ErrNotInTrash
	}

	if err := s.store.DeleteEmail(userID, emailID); err != nil {
		return err
	}
	s.tracking.InvalidateCache(ctx, email.TrackingID)
	return nil
}
