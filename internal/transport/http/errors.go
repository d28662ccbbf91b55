package httptransport

import (
	"mailtrace/backend/internal/service"
	"mailtrace/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 发送流水线错误
	service.ErrValidation:         "发送请求参数无效",
	service.ErrRateLimitExceeded:  "今日发送额度已用完",
	service.ErrContentRejected:    "邮件内容包含被禁止的关键词",
	service.ErrAttachmentRejected: "附件未通过安全检查",
	service.ErrDispatch:           "邮件投递失败，请稍后重试",

	// 邮件管理错误
	service.ErrNotInTrash:    "只能永久删除废纸篓中的邮件",
	service.ErrInvalidFolder: "文件夹不存在",
	storage.ErrEmailNotFound: "邮件不存在",

	// 资料错误
	service.ErrAvatarTooLarge: "头像文件超出大小限制",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgInvalidForm    = "表单格式错误"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "邮箱或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"
	MsgUserInactive       = "账户已被禁用"
	MsgEmailTaken         = "该邮箱已被注册"

	// 发送相关
	MsgDailyLimitReached = "Daily email limit reached."
	MsgSendFailed        = "发送失败，请稍后重试"
	MsgDraftSaveFailed   = "保存草稿失败"

	// 邮件管理相关
	MsgEmailNotFound   = "邮件不存在"
	MsgFolderListFail  = "获取邮件列表失败"
	MsgEmailMoveFailed = "移动邮件失败"
	MsgStarFailed      = "设置星标失败"
	MsgDeleteFailed    = "删除邮件失败"

	// 分析相关
	MsgAnalyticsFailed = "获取追踪数据失败"
	MsgExportFailed    = "导出追踪数据失败"

	// 资料相关
	MsgProfileGetFailed  = "获取资料失败"
	MsgProfileSaveFailed = "保存资料失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
