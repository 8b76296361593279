package domain

import "time"

// 参与者在房间内的角色。
const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Participant 表示某个用户在某个房间中的成员资格。
// (room_id, user_id) 组合唯一：一个用户在同一房间最多有一条记录。
type Participant struct {
	ID     uint   `gorm:"primaryKey"`
	RoomID uint   `gorm:"uniqueIndex:idx_room_user;not null"` // 所属房间 ID
	UserID uint   `gorm:"uniqueIndex:idx_room_user;not null"` // 用户 ID
	Role   string `gorm:"size:20;not null;default:member"`    // owner / moderator / member
	// Banned 为 true 时该用户无法再加入此房间 (成员记录保留作为封禁凭据)
	Banned   bool      `gorm:"not null;default:false"`
	JoinedAt time.Time // 首次加入房间的时间
	LastSeen time.Time `gorm:"index"` // 最近一次在线时间
}

// CanModerate 判断该参与者是否拥有管理权限 (踢人/封禁)。
func (p *Participant) CanModerate() bool {
	return p.Role == RoleOwner || p.Role == RoleModerator
}
