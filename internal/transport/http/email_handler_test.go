package httptransport

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtrace/backend/internal/mail"
	"mailtrace/backend/internal/security"
	"mailtrace/backend/internal/service"
	"mailtrace/backend/internal/storage/memory"
)

// stubSender 丢弃投递的邮件，只统计次数。
type stubSender struct {
	mu    sync.Mutex
	count int
}

func (s *stubSender) Send(msg *mail.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func newEmailTestRouter(t *testing.T, dailyLimit int) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	tracking := service.NewTrackingService(store, nil, nil, nil, nil, "https://mail.example.com", nil)
	usage := service.NewUsageService(store, dailyLimit)
	emails := service.NewEmailService(
		store,
		security.NewContentFilter([]string{"spam"}),
		security.NewAttachmentSecurity(1024*1024),
		&stubSender{},
		tracking,
		usage,
		nil,
		"noreply@mail.example.com",
		nil,
	)
	analytics := service.NewAnalyticsService(store)

	emailHandler := NewEmailHandler(emails, usage, nil)
	analyticsHandler := NewAnalyticsHandler(analytics, nil)

	router := gin.New()
	// 测试中用固定身份替代 JWT 中间件
	router.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
		c.Next()
	})
	router.POST("/v1/emails/send", emailHandler.Send)
	router.POST("/v1/emails/draft", emailHandler.Draft)
	router.GET("/v1/emails/:folder", emailHandler.List)
	router.DELETE("/v1/emails/:id", emailHandler.Delete)
	router.GET("/v1/usage", emailHandler.Usage)
	router.GET("/v1/analytics/export", analyticsHandler.Export)
	return router, store
}

func postSendForm(t *testing.T, router *gin.Engine, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/emails/send", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	router.ServeHTTP(w, req)
	return w
}

func validSendFields() map[string]string {
	return map[string]string{
		"recipient": "rcpt@example.com",
		"subject":   "Weekly update",
		"message":   "<p>all good</p>",
	}
}

func TestEmailHandler_Send(t *testing.T) {
	router, _ := newEmailTestRouter(t, 10)

	w := postSendForm(t, router, validSendFields())
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeCreated, resp.Code)
}

func TestEmailHandler_SendRejections(t *testing.T) {
	t.Run("配额用尽返回 429 与固定提示", func(t *testing.T) {
		router, _ := newEmailTestRouter(t, 1)
		w := postSendForm(t, router, validSendFields())
		require.Equal(t, http.StatusCreated, w.Code)

		w = postSendForm(t, router, validSendFields())
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, MsgDailyLimitReached, resp.Msg)
	})

	t.Run("收件人非法返回 400", func(t *testing.T) {
		router, _ := newEmailTestRouter(t, 10)
		fields := validSendFields()
		fields["recipient"] = "not-an-address"
		w := postSendForm(t, router, fields)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("命中内容过滤返回 400", func(t *testing.T) {
		router, _ := newEmailTestRouter(t, 10)
		fields := validSendFields()
		fields["message"] = "<p>Buy SPAM now</p>"
		w := postSendForm(t, router, fields)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEmailHandler_Folders(t *testing.T) {
	router, _ := newEmailTestRouter(t, 10)
	require.Equal(t, http.StatusCreated, postSendForm(t, router, validSendFields()).Code)

	t.Run("已发送列表", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/emails/sent", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data struct {
				Total int `json:"total"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Data.Total)
	})

	t.Run("未知文件夹返回 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/emails/archive", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEmailHandler_Usage(t *testing.T) {
	router, _ := newEmailTestRouter(t, 10)
	require.Equal(t, http.StatusCreated, postSendForm(t, router, validSendFields()).Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.UsageStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.SentToday)
	assert.Equal(t, 9, resp.Data.Remaining)
}

func TestAnalyticsHandler_Export(t *testing.T) {
	router, _ := newEmailTestRouter(t, 10)
	require.Equal(t, http.StatusCreated, postSendForm(t, router, validSendFields()).Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/export", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "Recipient,Subject,Opened,Opened At,Clicked,Clicked At")
	assert.Contains(t, w.Body.String(), "rcpt@example.com")
}
