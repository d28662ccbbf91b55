package httptransport

import (
	"errors"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtrace/backend/internal/mail"
	"mailtrace/backend/internal/service"
	"mailtrace/backend/internal/storage"
)

// EmailHandler 处理邮件撰写与文件夹管理的 HTTP 请求
type EmailHandler struct {
	emails *service.EmailService
	usage  *service.UsageService
	log    *zap.Logger
}

// NewEmailHandler 创建邮件处理器。
func NewEmailHandler(emails *service.EmailService, usage *service.UsageService, log *zap.Logger) *EmailHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailHandler{
		emails: emails,
		usage:  usage,
		log:    log,
	}
}

// composeForm 撰写表单（发送与草稿共用），附件通过 multipart 文件域上传。
type composeForm struct {
	Recipient   string `form:"recipient"`
	Subject     string `form:"subject"`
	Message     string `form:"message"`
	SenderEmail string `form:"sender_email"`
}

// Send 发送一封邮件
// @Summary 发送邮件
// @Description 校验、扣减当日配额、过滤内容后经 SMTP 中继投递，正文自动注入追踪像素
// @Tags 邮件
// @Accept multipart/form-data
// @Produce json
// @Param recipient formData string true "收件人地址"
// @Param subject formData string true "主题"
// @Param message formData string true "HTML 正文"
// @Param sender_email formData string false "发件人地址，留空使用系统默认"
// @Param attachment formData file false "附件"
// @Security BearerAuth
// @Success 201 {object} Response "发送成功"
// @Failure 400 {object} Response "参数或内容被拒绝"
// @Failure 429 {object} Response "当日配额已用完"
// @Router /v1/emails/send [post]
func (h *EmailHandler) Send(c *gin.Context) {
	userID := c.GetString("userID")

	var form composeForm
	if err := c.ShouldBind(&form); err != nil {
		BadRequest(c, MsgInvalidForm)
		return
	}

	attachment, err := h.readAttachment(c)
	if err != nil {
		BadRequest(c, MsgInvalidForm)
		return
	}

	email, err := h.emails.Send(service.SendInput{
		UserID:      userID,
		SenderEmail: form.SenderEmail,
		Recipient:   form.Recipient,
		Subject:     form.Subject,
		Body:        form.Message,
		Attachment:  attachment,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimitExceeded):
			TooManyRequests(c, MsgDailyLimitReached)
		case errors.Is(err, service.ErrValidation):
			BadRequest(c, GetErrorMessage(service.ErrValidation))
		case errors.Is(err, service.ErrContentRejected):
			BadRequest(c, GetErrorMessage(service.ErrContentRejected))
		case errors.Is(err, service.ErrAttachmentRejected):
			BadRequest(c, GetErrorMessage(service.ErrAttachmentRejected))
		case errors.Is(err, service.ErrDispatch):
			InternalError(c, GetErrorMessage(service.ErrDispatch))
		default:
			h.log.Error("failed to send email", zap.Error(err))
			InternalError(c, MsgSendFailed)
		}
		return
	}

	Created(c, email)
}

// Draft 保存草稿
// @Summary 保存草稿
// @Tags 邮件
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Success 201 {object} Response "保存成功"
// @Router /v1/emails/draft [post]
func (h *EmailHandler) Draft(c *gin.Context) {
	userID := c.GetString("userID")

	var form composeForm
	if err := c.ShouldBind(&form); err != nil {
		BadRequest(c, MsgInvalidForm)
		return
	}

	attachment, err := h.readAttachment(c)
	if err != nil {
		BadRequest(c, MsgInvalidForm)
		return
	}

	draft, err := h.emails.SaveDraft(service.SendInput{
		UserID:      userID,
		SenderEmail: form.SenderEmail,
		Recipient:   form.Recipient,
		Subject:     form.Subject,
		Body:        form.Message,
		Attachment:  attachment,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			BadRequest(c, GetErrorMessage(service.ErrValidation))
			return
		}
		h.log.Error("failed to save draft", zap.Error(err))
		InternalError(c, MsgDraftSaveFailed)
		return
	}

	Created(c, draft)
}

// readAttachment 读取可选的附件文件域。
func (h *EmailHandler) readAttachment(c *gin.Context) (*mail.Attachment, error) {
	fileHeader, err := c.FormFile("attachment")
	if err != nil {
		// 未携带附件
		return nil, nil
	}
	content, err := readMultipartFile(fileHeader)
	if err != nil {
		return nil, err
	}
	return &mail.Attachment{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func readMultipartFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// List 列出指定文件夹内的邮件
// @Summary 文件夹邮件列表
// @Tags 邮件
// @Produce json
// @Param folder path string true "文件夹" Enums(inbox, sent, drafts, trash, starred)
// @Security BearerAuth
// @Success 200 {object} Response "邮件列表"
// @Failure 400 {object} Response "未知文件夹"
// @Router /v1/emails/{folder} [get]
func (h *EmailHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	folder := c.Param("folder")

	emails, err := h.emails.ListFolder(userID, folder)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFolder) {
			BadRequest(c, GetErrorMessage(service.ErrInvalidFolder))
			return
		}
		h.log.Error("failed to list folder",
			zap.String("folder", folder),
			zap.Error(err),
		)
		InternalError(c, MsgFolderListFail)
		return
	}

	Success(c, gin.H{"emails": emails, "total": len(emails)})
}

// Trash 把邮件移入废纸篓
// @Summary 移入废纸篓
// @Tags 邮件
// @Produce json
// @Param id path string true "邮件 ID"
// @Security BearerAuth
// @Success 200 {object} Response "移动成功"
// @Router /v1/emails/{id}/trash [post]
func (h *EmailHandler) Trash(c *gin.Context) {
	h.move(c, h.emails.MoveToTrash)
}

// Untrash 把邮件从废纸篓还原到收件箱
// @Summary 还原邮件
// @Tags 邮件
// @Produce json
// @Param id path string true "邮件 ID"
// @Security BearerAuth
// @Success 200 {object} Response "还原成功"
// @Router /v1/emails/{id}/untrash [post]
func (h *EmailHandler) Untrash(c *gin.Context) {
	h.move(c, h.emails.MoveToInbox)
}

func (h *EmailHandler) move(c *gin.Context, op func(userID, emailID string) error) {
	userID := c.GetString("userID")
	emailID := c.Param("id")

	if err := op(userID, emailID); err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			NotFound(c, MsgEmailNotFound)
			return
		}
		h.log.Error("failed to move email", zap.String("email_id", emailID), zap.Error(err))
		InternalError(c, MsgEmailMoveFailed)
		return
	}
	SuccessWithMsg(c, "操作成功", nil)
}

// Star 翻转邮件星标
// @Summary 星标切换
// @Tags 邮件
// @Produce json
// @Param id path string true "邮件 ID"
// @Security BearerAuth
// @Success 200 {object} Response "切换成功"
// @Router /v1/emails/{id}/star [post]
func (h *EmailHandler) Star(c *gin.Context) {
	userID := c.GetString("userID")
	emailID := c.Param("id")

	starred, err := h.emails.ToggleStar(userID, emailID)
	if err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			NotFound(c, MsgEmailNotFound)
			return
		}
		h.log.Error("failed to toggle star", zap.String("email_id", emailID), zap.Error(err))
		InternalError(c, MsgStarFailed)
		return
	}
	Success(c, gin.H{"starred": starred})
}

// Delete 永久删除废纸篓中的邮件
// @Summary 永久删除
// @Tags 邮件
// @Produce json
// @Param id path string true "邮件 ID"
// @Security BearerAuth
// @Success 204 {object} Response "删除成功"
// @Failure 403 {object} Response "邮件不在废纸篓中"
// @Router /v1/emails/{id} [delete]
func (h *EmailHandler) Delete(c *gin.Context) {
	userID := c.GetString("userID")
	emailID := c.Param("id")

	err := h.emails.DeleteForever(c.Request.Context(), userID, emailID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailNotFound):
			NotFound(c, MsgEmailNotFound)
		case errors.Is(err, service.ErrNotInTrash):
			Forbidden(c, GetErrorMessage(service.ErrNotInTrash))
		default:
			h.log.Error("failed to delete email", zap.String("email_id", emailID), zap.Error(err))
			InternalError(c, MsgDeleteFailed)
		}
		return
	}
	NoContent(c)
}

// Usage 返回当前用户的当日配额状态
// @Summary 配额状态
// @Tags 邮件
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response "配额状态"
// @Router /v1/usage [get]
func (h *EmailHandler) Usage(c *gin.Context) {
	userID := c.GetString("userID")

	status, err := h.usage.Status(userID)
	if err != nil {
		h.log.Error("failed to get usage status", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, status)
}
