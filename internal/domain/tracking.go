package domain

import "time"

// EmailTracking 与 Email 一一对应的打开/点击追踪记录。
//
// 两个标志都是单调的：false→true 只发生一次，时间戳在迁移时写入一次，
// 之后不再变化。TrackingID 冗余存储一份，让像素/点击路径上的条件更新
// 可以只用一条 UPDATE 完成（见 storage 层）。
type EmailTracking struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EmailID    string     `json:"emailId" gorm:"type:varchar(36);uniqueIndex;not null"`
	TrackingID string     `json:"trackingId" gorm:"type:varchar(36);uniqueIndex;not null"`
	Opened     bool       `json:"opened" gorm:"default:false"`
	OpenedAt   *time.Time `json:"openedAt,omitempty"`
	Clicked    bool       `json:"clicked" gorm:"default:false"`
	ClickedAt  *time.Time `json:"clickedAt,omitempty"`
}

// TrackingEventType 追踪事件类型
type TrackingEventType string

const (
	EventOpen  TrackingEventType = "open"
	EventClick TrackingEventType = "click"
)

// TrackingEvent 推送给实时看板的追踪事件。
type TrackingEvent struct {
	Type       TrackingEventType `json:"type"`
	UserID     string            `json:"-"` // 事件所属的发信用户，不随消息下发
	EmailID    string            `json:"emailId"`
	TrackingID string            `json:"trackingId"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	OccurredAt time.Time         `json:"occurredAt"`
	URL        string            `json:"url,omitempty"` // 点击事件的目标地址
}
