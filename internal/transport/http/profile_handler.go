package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtrace/backend/internal/service"
)

// ProfileHandler 处理用户资料与头像的 HTTP 请求
type ProfileHandler struct {
	profiles *service.ProfileService
	log      *zap.Logger
}

// NewProfileHandler 创建资料处理器。
func NewProfileHandler(profiles *service.ProfileService, log *zap.Logger) *ProfileHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileHandler{
		profiles: profiles,
		log:      log,
	}
}

// Get 获取当前用户的资料
// @Summary 获取资料
// @Tags 资料
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response "用户资料"
// @Router /v1/profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	userID := c.GetString("userID")

	view, err := h.profiles.Get(userID)
	if err != nil {
		h.log.Error("failed to get profile", zap.Error(err))
		InternalError(c, MsgProfileGetFailed)
		return
	}
	Success(c, view)
}

// Update 更新当前用户的资料，头像通过 multipart 文件域上传
// @Summary 更新资料
// @Tags 资料
// @Accept multipart/form-data
// @Produce json
// @Param bio formData string false "个人简介"
// @Param avatar formData file false "头像文件"
// @Security BearerAuth
// @Success 200 {object} Response "更新成功"
// @Failure 400 {object} Response "头像超出大小限制"
// @Router /v1/profile [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	userID := c.GetString("userID")

	input := service.UpdateProfileInput{
		UserID: userID,
		Bio:    c.PostForm("bio"),
	}

	if fileHeader, err := c.FormFile("avatar"); err == nil {
		content, err := readMultipartFile(fileHeader)
		if err != nil {
			BadRequest(c, MsgInvalidForm)
			return
		}
		input.AvatarFilename = fileHeader.Filename
		input.AvatarContent = content
	}

	view, err := h.profiles.Update(input)
	if err != nil {
		if errors.Is(err, service.ErrAvatarTooLarge) {
			BadRequest(c, GetErrorMessage(service.ErrAvatarTooLarge))
			return
		}
		h.log.Error("failed to update profile", zap.Error(err))
		InternalError(c, MsgProfileSaveFailed)
		return
	}
	Success(c, view)
}
