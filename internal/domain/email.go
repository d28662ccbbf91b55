package domain

import "time"

// EmailCategory 邮件所属文件夹
type EmailCategory string

const (
	CategoryInbox EmailCategory = "inbox"
	CategorySent  EmailCategory = "sent"
	CategoryDraft EmailCategory = "draft"
	CategoryTrash EmailCategory = "trash"
)

// Valid 判断文件夹取值是否合法
func (c EmailCategory) Valid() bool {
	switch c {
	case CategoryInbox, CategorySent, CategoryDraft, CategoryTrash:
		return true
	}
	return false
}

// Email 表示一封外发或存档的邮件。
//
// TrackingID 是对外暴露的查询键（像素/点击端点只认它），
// 永远不暴露内部主键。全局唯一，删除后也不复用。
type Email struct {
	ID             string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string        `json:"userId" gorm:"type:varchar(36);index;not null"`
	Recipient      string        `json:"recipient" gorm:"type:varchar(255);index"`
	SenderEmail    string        `json:"senderEmail" gorm:"type:varchar(255)"`
	Subject        string        `json:"subject" gorm:"type:varchar(500)"`
	Body           string        `json:"body" gorm:"type:text"`
	TrackingID     string        `json:"trackingId" gorm:"type:varchar(36);uniqueIndex;not null"`
	Category       EmailCategory `json:"category" gorm:"type:varchar(20);default:'draft';index"`
	Starred        bool          `json:"starred" gorm:"default:false;index"`
	AttachmentName string        `json:"attachmentName,omitempty" gorm:"type:varchar(255)"`
	CreatedAt      time.Time     `json:"createdAt"`
	SentAt         *time.Time    `json:"sentAt,omitempty" gorm:"index"`
}

// EmailWithTracking 分析视图：邮件与其追踪状态的组合。
type EmailWithTracking struct {
	Email    Email          `json:"email"`
	Tracking *EmailTracking `json:"tracking,omitempty"`
}
