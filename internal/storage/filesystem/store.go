package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore 文件系统对象存储，保存用户头像等二进制内容。
type BlobStore struct {
	basePath string // 对象存储根目录
}

// NewBlobStore 创建文件系统对象存储实例。
func NewBlobStore(basePath string) (*BlobStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("blob store base path is empty")
	}

	normalizedPath := filepath.Clean(basePath)
	if err := os.MkdirAll(normalizedPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &BlobStore{basePath: normalizedPath}, nil
}

// BasePath 返回对象存储根目录。
func (s *BlobStore) BasePath() string {
	return s.basePath
}

// AvatarDir 返回头像所在目录，静态文件路由必须挂载这个目录
// 才能让 AvatarURL 返回的路径命中实际文件。
func (s *BlobStore) AvatarDir() string {
	return filepath.Join(s.basePath, "avatars")
}

// ========== 头像存储 ==========

// SaveAvatar 保存用户头像，返回对象名。
// 对象名由用户 ID 和清理后的原始文件扩展名组成，同一用户重复上传会覆盖。
func (s *BlobStore) SaveAvatar(userID, originalFilename string, content []byte) (string, error) {
	if err := os.MkdirAll(s.AvatarDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create avatar directory: %w", err)
	}

	name := userID + sanitizeExt(originalFilename)
	avatarFile := filepath.Join(s.AvatarDir(), name)

	if err := os.WriteFile(avatarFile, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write avatar: %w", err)
	}

	return name, nil
}

// GetAvatar 读取头像内容。
func (s *BlobStore) GetAvatar(name string) ([]byte, error) {
	avatarFile := filepath.Join(s.AvatarDir(), filepath.Base(name))

	content, err := os.ReadFile(avatarFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("avatar not found")
		}
		return nil, fmt.Errorf("failed to read avatar: %w", err)
	}

	return content, nil
}

// DeleteAvatar 删除头像，文件不存在时视为成功。
func (s *BlobStore) DeleteAvatar(name string) error {
	if name == "" {
		return nil
	}
	avatarFile := filepath.Join(s.AvatarDir(), filepath.Base(name))
	err := os.Remove(avatarFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}

// AvatarURL 返回对象名对应的访问路径。
func (s *BlobStore) AvatarURL(name string) string {
	if name == "" {
		return ""
	}
	return "/avatars/" + name
}

// sanitizeExt 从原始文件名提取安全的扩展名，只接受常见图片格式。
func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return ext
	}
	return ".png"
}
