package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/mail"
	"mailtrace/backend/internal/security"
	"mailtrace/backend/internal/storage"
	"mailtrace/backend/internal/storage/memory"
)

// fakeSender 捕获投递的邮件供断言，可注入投递失败。
type fakeSender struct {
	mu   sync.Mutex
	sent []*mail.OutboundMessage
	err  error
}

func (f *fakeSender) Send(msg *mail.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last() *mail.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func newEmailFixture(t *testing.T, dailyLimit int) (*EmailService, *memory.Store, *fakeSender) {
	t.Helper()
	store := memory.NewStore()
	sender := &fakeSender{}
	tracking := NewTrackingService(store, nil, nil, nil, nil, "https://mail.example.com", nil)
	usage := NewUsageService(store, dailyLimit)
	svc := NewEmailService(
		store,
		security.NewContentFilter([]string{"spam"}),
		security.NewAttachmentSecurity(1024*1024),
		sender,
		tracking,
		usage,
		nil,
		"noreply@mail.example.com",
		nil,
	)
	return svc, store, sender
}

func validSendInput() SendInput {
	return SendInput{
		UserID:    "user-1",
		Recipient: "rcpt@example.com",
		Subject:   "Weekly update",
		Body:      "<p>all good</p>",
	}
}

func TestEmailService_Send(t *testing.T) {
	svc, store, sender := newEmailFixture(t, 10)

	email, err := svc.Send(validSendInput())
	require.NoError(t, err)
	require.NotNil(t, email)

	t.Run("邮件落库到已发送", func(t *testing.T) {
		saved, err := store.GetEmail("user-1", email.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CategorySent, saved.Category)
		require.NotNil(t, saved.SentAt)
		assert.NotEmpty(t, saved.TrackingID)
		assert.Equal(t, "noreply@mail.example.com", saved.SenderEmail)
	})

	t.Run("追踪记录同步创建且未打开", func(t *testing.T) {
		tracking, err := store.GetTrackingByEmailID(email.ID)
		require.NoError(t, err)
		assert.Equal(t, email.TrackingID, tracking.TrackingID)
		assert.False(t, tracking.Opened)
		assert.False(t, tracking.Clicked)
	})

	t.Run("投递正文注入像素而落库正文保持原样", func(t *testing.T) {
		msg := sender.last()
		require.NotNil(t, msg)
		assert.Contains(t, msg.HTMLBody, "/track/"+email.TrackingID)
		assert.NotContains(t, email.Body, "/track/")
	})
}

func TestEmailService_SendValidation(t *testing.T) {
	svc, _, sender := newEmailFixture(t, 10)

	tests := []struct {
		name   string
		mutate func(*SendInput)
	}{
		{"缺少收件人", func(in *SendInput) { in.Recipient = "" }},
		{"收件人地址非法", func(in *SendInput) { in.Recipient = "not-an-address" }},
		{"发件人地址非法", func(in *SendInput) { in.SenderEmail = "also bad" }},
		{"缺少主题", func(in *SendInput) { in.Subject = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validSendInput()
			tt.mutate(&input)
			_, err := svc.Send(input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	// 校验失败不触发投递
	assert.Equal(t, 0, sender.count())
}

func TestEmailService_SendRateLimit(t *testing.T) {
	svc, _, sender := newEmailFixture(t, 2)

	_, err := svc.Send(validSendInput())
	require.NoError(t, err)
	_, err = svc.Send(validSendInput())
	require.NoError(t, err)

	_, err = svc.Send(validSendInput())
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 2, sender.count())
}

func TestEmailService_SendContentFilter(t *testing.T) {
	svc, store, sender := newEmailFixture(t, 10)

	t.Run("正文命中关键词", func(t *testing.T) {
		input := validSendInput()
		input.Body = "<p>Buy SPAM now</p>"
		_, err := svc.Send(input)
		assert.ErrorIs(t, err, ErrContentRejected)

		// 被拦截的邮件既不投递也不落库
		assert.Equal(t, 0, sender.count())
		emails, err := store.ListEmailsByCategory("user-1", domain.CategorySent)
		require.NoError(t, err)
		assert.Empty(t, emails)
	})

	t.Run("主题不参与过滤", func(t *testing.T) {
		input := validSendInput()
		input.Subject = "hot spam deals"
		_, err := svc.Send(input)
		require.NoError(t, err)
		assert.Equal(t, 1, sender.count())
	})
}

func TestEmailService_SendAttachment(t *testing.T) {
	svc, _, sender := newEmailFixture(t, 10)

	t.Run("危险附件被拒绝", func(t *testing.T) {
		input := validSendInput()
		input.Attachment = &mail.Attachment{
			Filename:    "payload.exe",
			ContentType: "application/pdf",
			Content:     []byte("MZ"),
		}
		_, err := svc.Send(input)
		assert.ErrorIs(t, err, ErrAttachmentRejected)
		assert.Equal(t, 0, sender.count())
	})

	t.Run("合法附件随邮件投递", func(t *testing.T) {
		input := validSendInput()
		input.Attachment = &mail.Attachment{
			Filename:    "report.pdf",
			ContentType: "application/pdf",
			Content:     []byte("%PDF-1.4"),
		}
		email, err := svc.Send(input)
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", email.AttachmentName)

		msg := sender.last()
		require.NotNil(t, msg)
		require.NotNil(t, msg.Attachment)
		assert.Equal(t, "report.pdf", msg.Attachment.Filename)
	})
}

func TestEmailService_SendDispatchFailure(t *testing.T) {
	svc, store, sender := newEmailFixture(t, 10)
	sender.err = errors.New("relay unreachable")

	_, err := svc.Send(validSendInput())
	assert.ErrorIs(t, err, ErrDispatch)

	// 投递失败的邮件不落库
	emails, listErr := store.ListEmailsByCategory("user-1", domain.CategorySent)
	require.NoError(t, listErr)
	assert.Empty(t, emails)
}

func TestEmailService_SaveDraft(t *testing.T) {
	svc, store, sender := newEmailFixture(t, 10)

	draft, err := svc.SaveDraft(SendInput{
		UserID:  "user-1",
		Subject: "wip",
		Body:    "<p>draft</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryDraft, draft.Category)
	assert.Nil(t, draft.SentAt)
	assert.NotEmpty(t, draft.TrackingID)

	t.Run("草稿不投递", func(t *testing.T) {
		assert.Equal(t, 0, sender.count())
	})

	t.Run("草稿不消费配额", func(t *testing.T) {
		usage, err := store.GetUsage("user-1")
		require.NoError(t, err)
		assert.Equal(t, 0, usage.EmailsSentToday)
	})

	t.Run("草稿不创建追踪记录", func(t *testing.T) {
		_, err := store.GetTrackingByEmailID(draft.ID)
		assert.ErrorIs(t, err, storage.ErrTrackingNotFound)
	})
}

func TestEmailService_Folders(t *testing.T) {
	svc, _, _ := newEmailFixture(t, 10)

	email, err := svc.Send(validSendInput())
	require.NoError(t, err)

	t.Run("列出已发送", func(t *testing.T) {
		emails, err := svc.ListFolder("user-1", "sent")
		require.NoError(t, err)
		require.Len(t, emails, 1)
		assert.Equal(t, email.ID, emails[0].ID)
	})

	t.Run("未知文件夹", func(t *testing.T) {
		_, err := svc.ListFolder("user-1", "archive")
		assert.ErrorIs(t, err, ErrInvalidFolder)
	})

	t.Run("移入废纸篓再还原", func(t *testing.T) {
		require.NoError(t, svc.MoveToTrash("user-1", email.ID))
		emails, err := svc.ListFolder("user-1", "trash")
		require.NoError(t, err)
		assert.Len(t, emails, 1)

		require.NoError(t, svc.MoveToInbox("user-1", email.ID))
		emails, err = svc.ListFolder("user-1", "inbox")
		require.NoError(t, err)
		assert.Len(t, emails, 1)
	})

	t.Run("星标视图", func(t *testing.T) {
		starred, err := svc.ToggleStar("user-1", email.ID)
		require.NoError(t, err)
		assert.True(t, starred)

		emails, err := svc.ListFolder("user-1", "starred")
		require.NoError(t, err)
		assert.Len(t, emails, 1)

		starred, err = svc.ToggleStar("user-1", email.ID)
		require.NoError(t, err)
		assert.False(t, starred)

		emails, err = svc.ListFolder("user-1", "starred")
		require.NoError(t, err)
		assert.Empty(t, emails)
	})
}

func TestEmailService_DeleteForever(t *testing.T) {
	svc, store, _ := newEmailFixture(t, 10)
	ctx := context.Background()

	email, err := svc.Send(validSendInput())
	require.NoError(t, err)

	t.Run("不在废纸篓中拒绝删除", func(t *testing.T) {
		err := svc.DeleteForever(ctx, "user-1", email.ID)
		assert.ErrorIs(t, err, ErrNotInTrash)
	})

	t.Run("废纸篓中的邮件连同追踪记录一起删除", func(t *testing.T) {
		require.NoError(t, svc.MoveToTrash("user-1", email.ID))
		require.NoError(t, svc.DeleteForever(ctx, "user-1", email.ID))

		_, err := store.GetEmail("user-1", email.ID)
		assert.ErrorIs(t, err, storage.ErrEmailNotFound)
		_, err = store.GetTrackingByTrackingID(email.TrackingID)
		assert.ErrorIs(t, err, storage.ErrTrackingNotFound)
	})

	t.Run("删除后追踪 ID 不再命中", func(t *testing.T) {
		tracking := NewTrackingService(store, nil, nil, nil, nil, "https://mail.example.com", nil)
		err := tracking.RecordOpen(ctx, email.TrackingID)
		assert.ErrorIs(t, err, storage.ErrTrackingNotFound)
	})
}
