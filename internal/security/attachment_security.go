package security

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// AttachmentSecurity 附件安全检查器
type AttachmentSecurity struct {
	allowedMimeTypes    map[string]bool
	maxFileSize         int64
	dangerousExtensions map[string]bool
}

// NewAttachmentSecurity 创建附件安全检查器
func NewAttachmentSecurity(maxFileSize int64) *AttachmentSecurity {
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024 // 10MB
	}
	return &AttachmentSecurity{
		allowedMimeTypes: map[string]bool{
			"text/plain":                   true,
			"text/html":                    true,
			"text/csv":                     true,
			"application/json":             true,
			"application/pdf":              true,
			"image/jpeg":                   true,
			"image/png":                    true,
			"image/gif":                    true,
			"image/webp":                   true,
			"application/zip":              true,
			"application/x-zip-compressed": true,
		},
		maxFileSize: maxFileSize,
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".js":  true,
			".jar": true,
			".php": true,
			".asp": true,
			".jsp": true,
		},
	}
}

// CheckAttachment 检查附件安全性。
func (as *AttachmentSecurity) CheckAttachment(filename, mimeType string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if as.dangerousExtensions[ext] {
		return fmt.Errorf("dangerous file extension: %s", ext)
	}

	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fmt.Errorf("invalid MIME type: %s", mimeType)
	}
	if !as.allowedMimeTypes[mediaType] {
		return fmt.Errorf("disallowed MIME type: %s", mediaType)
	}

	if size > as.maxFileSize {
		return fmt.Errorf("file too large: %d bytes exceeds limit of %d", size, as.maxFileSize)
	}

	return nil
}
