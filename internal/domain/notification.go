package domain

import "time"

// 通知类型。
const (
	NotificationKicked = "kicked"
	NotificationBanned = "banned"
)

// Notification 是发给用户的持久化站内通知 (由后台 worker 写入)。
type Notification struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"` // 接收通知的用户 ID
	RoomID    uint      `gorm:"not null"`       // 关联的房间 ID
	Kind      string    `gorm:"size:20;not null"`
	Message   string    `gorm:"size:255"`
	Read      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}
