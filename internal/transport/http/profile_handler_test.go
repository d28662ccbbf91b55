package httptransport

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtrace/backend/internal/service"
	"mailtrace/backend/internal/storage/filesystem"
	"mailtrace/backend/internal/storage/memory"
)

func newProfileTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	blobs, err := filesystem.NewBlobStore(t.TempDir())
	require.NoError(t, err)
	profiles := service.NewProfileService(store, blobs, 1024*1024, nil)
	handler := NewProfileHandler(profiles, nil)

	router := gin.New()
	// 测试中用固定身份替代 JWT 中间件
	router.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
		c.Next()
	})
	router.GET("/v1/profile", handler.Get)
	router.PUT("/v1/profile", handler.Update)
	// 与生产路由相同的头像静态挂载
	router.Static("/avatars", blobs.AvatarDir())
	return router
}

func putProfileForm(t *testing.T, router *gin.Engine, bio string, avatar []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("bio", bio))
	if avatar != nil {
		fw, err := mw.CreateFormFile("avatar", "me.png")
		require.NoError(t, err)
		_, err = fw.Write(avatar)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/profile", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	router.ServeHTTP(w, req)
	return w
}

func TestProfileHandler_AvatarServedAtURL(t *testing.T) {
	router := newProfileTestRouter(t)

	content := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	w := putProfileForm(t, router, "hello", content)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.ProfileView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.AvatarURL)

	// 返回的头像地址必须能经静态路由取回上传的内容
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, resp.Data.AvatarURL, nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

func TestProfileHandler_GetEmptyProfile(t *testing.T) {
	router := newProfileTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.ProfileView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.Data.UserID)
	assert.Empty(t, resp.Data.AvatarURL)
}
