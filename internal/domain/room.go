package domain

import "time"

// Room 表示一个协作绘画房间。
type Room struct {
	ID        uint   `gorm:"primaryKey"`                    // 房间唯一标识符 (主键)
	CreatorID uint   `gorm:"index;not null"`                // 创建该房间的用户 ID (外键关联到 User.ID)
	Name      string `gorm:"size:100;not null"`
	JoinCode  string `gorm:"uniqueIndex;size:191;not null"` // 用于加入房间的邀请码，必须唯一且不能为空
	Private   bool   `gorm:"not null;default:false"`        // 私有房间不出现在公开房间列表中
	// Active 为 false 时房间不再接受实时连接 (由后台清扫任务标记)
	Active     bool      `gorm:"not null;default:true;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	LastActive time.Time `gorm:"index"` // 房间最后活跃时间，用于清理不活跃房间
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}
