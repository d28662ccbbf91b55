package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/storage"
	"mailtrace/backend/internal/storage/filesystem"
)

// ErrAvatarTooLarge 头像文件超出大小限制
var ErrAvatarTooLarge = errors.New("avatar file too large")

// ProfileView 返回给前端的资料视图，头像以公开 URL 呈现。
type ProfileView struct {
	UserID    string `json:"userId"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// UpdateProfileInput 定义资料更新输入。头像为 nil 时保持原头像。
type UpdateProfileInput struct {
	UserID         string
	Bio            string
	AvatarFilename string
	AvatarContent  []byte
}

// ProfileService 封装用户资料与头像管理。
type ProfileService struct {
	repo          storage.ProfileRepository
	blobs         *filesystem.BlobStore
	maxAvatarSize int64
	log           *zap.Logger
}

// NewProfileService 创建资料服务。
func NewProfileService(
	repo storage.ProfileRepository,
	blobs *filesystem.BlobStore,
	maxAvatarSize int64,
	log *zap.Logger,
) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{
		repo:          repo,
		blobs:         blobs,
		maxAvatarSize: maxAvatarSize,
		log:           log,
	}
}

// Get 获取用户资料，从未编辑过资料的用户返回空资料。
func (s *ProfileService) Get(userID string) (*ProfileView, error) {
	profile, err := s.repo.GetProfile(userID)
	if errors.Is(err, storage.ErrProfileNotFound) {
		return &ProfileView{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.view(profile), nil
}

// Update 更新资料。上传新头像时旧头像从 blob 存储中删除。
func (s *ProfileService) Update(input UpdateProfileInput) (*ProfileView, error) {
	profile, err := s.repo.GetProfile(input.UserID)
	if errors.Is(err, storage.ErrProfileNotFound) {
		profile = &domain.Profile{UserID: input.UserID}
	} else if err != nil {
		return nil, err
	}

	profile.Bio = input.Bio

	if len(input.AvatarContent) > 0 {
		if int64(len(input.AvatarContent)) > s.maxAvatarSize {
			return nil, ErrAvatarTooLarge
		}

		oldName := profile.AvatarName
		name, err := s.blobs.SaveAvatar(input.UserID, input.AvatarFilename, input.AvatarContent)
		if err != nil {
			return nil, fmt.Errorf("save avatar: %w", err)
		}
		profile.AvatarName = name

		// 对象名按用户固定，只有扩展名变化时旧对象才会残留
		if oldName != "" && oldName != name {
			if err := s.blobs.DeleteAvatar(oldName); err != nil {
				s.log.Warn("failed to delete old avatar",
					zap.String("user_id", input.UserID),
					zap.String("name", oldName),
					zap.Error(err),
				)
			}
		}
	}

	if err := s.repo.SaveProfile(profile); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return s.view(profile), nil
}

func (s *ProfileService) view(profile *domain.Profile) *ProfileView {
	v := &ProfileView{
		UserID: profile.UserID,
		Bio:    profile.Bio,
	}
	if profile.AvatarName != "" {
		v.AvatarURL = s.blobs.AvatarURL(profile.AvatarName)
	}
	return v
}
