package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtrace/backend/internal/storage/filesystem"
	"mailtrace/backend/internal/storage/memory"
)

func newProfileFixture(t *testing.T) (*ProfileService, *filesystem.BlobStore) {
	t.Helper()
	blobs, err := filesystem.NewBlobStore(t.TempDir())
	require.NoError(t, err)
	return NewProfileService(memory.NewStore(), blobs, 1024, nil), blobs
}

func TestProfileService_Get(t *testing.T) {
	svc, _ := newProfileFixture(t)

	t.Run("从未编辑过资料的用户返回空资料", func(t *testing.T) {
		view, err := svc.Get("user-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", view.UserID)
		assert.Empty(t, view.Bio)
		assert.Empty(t, view.AvatarURL)
	})
}

func TestProfileService_Update(t *testing.T) {
	svc, blobs := newProfileFixture(t)

	t.Run("更新简介", func(t *testing.T) {
		view, err := svc.Update(UpdateProfileInput{UserID: "user-1", Bio: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "hello", view.Bio)

		view, err = svc.Get("user-1")
		require.NoError(t, err)
		assert.Equal(t, "hello", view.Bio)
	})

	t.Run("上传头像", func(t *testing.T) {
		view, err := svc.Update(UpdateProfileInput{
			UserID:         "user-1",
			Bio:            "hello",
			AvatarFilename: "me.png",
			AvatarContent:  []byte("png-bytes"),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, view.AvatarURL)

		content, err := blobs.GetAvatar("user-1.png")
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), content)
	})

	t.Run("替换头像删除旧对象", func(t *testing.T) {
		_, err := svc.Update(UpdateProfileInput{
			UserID:         "user-1",
			Bio:            "hello",
			AvatarFilename: "new.jpg",
			AvatarContent:  []byte("jpg-bytes"),
		})
		require.NoError(t, err)

		_, err = blobs.GetAvatar("user-1.png")
		assert.Error(t, err)
		content, err := blobs.GetAvatar("user-1.jpg")
		require.NoError(t, err)
		assert.Equal(t, []byte("jpg-bytes"), content)
	})

	t.Run("超大头像被拒绝", func(t *testing.T) {
		_, err := svc.Update(UpdateProfileInput{
			UserID:         "user-1",
			AvatarFilename: "big.png",
			AvatarContent:  make([]byte, 2048),
		})
		assert.ErrorIs(t, err, ErrAvatarTooLarge)
	})

	t.Run("不带头像的更新保留原头像", func(t *testing.T) {
		view, err := svc.Update(UpdateProfileInput{UserID: "user-1", Bio: "updated"})
		require.NoError(t, err)
		assert.Equal(t, "updated", view.Bio)
		assert.NotEmpty(t, view.AvatarURL)
	})
}
