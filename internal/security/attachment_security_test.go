package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentSecurity_CheckAttachment(t *testing.T) {
	checker := NewAttachmentSecurity(1024)

	t.Run("合法附件通过", func(t *testing.T) {
		assert.NoError(t, checker.CheckAttachment("report.pdf", "application/pdf", 512))
		assert.NoError(t, checker.CheckAttachment("photo.jpg", "image/jpeg; charset=binary", 100))
	})

	t.Run("危险扩展名被拒绝", func(t *testing.T) {
		err := checker.CheckAttachment("payload.exe", "application/pdf", 10)
		assert.ErrorContains(t, err, "dangerous file extension")
	})

	t.Run("不允许的类型被拒绝", func(t *testing.T) {
		err := checker.CheckAttachment("app.bin", "application/octet-stream", 10)
		assert.ErrorContains(t, err, "disallowed MIME type")
	})

	t.Run("超大文件被拒绝", func(t *testing.T) {
		err := checker.CheckAttachment("big.pdf", "application/pdf", 2048)
		assert.ErrorContains(t, err, "file too large")
	})
}
