package repository

import (
	"context"
	"time"

	"collabcanvas/internal/domain"
)

// ParticipantRepository 定义了房间成员关系的存储和检索操作。
type ParticipantRepository interface {
	// FindByRoomAndUser 查找某用户在某房间的成员记录。
	// 如果记录不存在，应返回 ErrParticipantNotFound。
	FindByRoomAndUser(ctx context.Context, roomID, userID uint) (*domain.Participant, error)

	// FindByRoomAndUsers 批量查询房间内指定用户的成员记录，
	// 用于组装在线名单。未找到的用户会被跳过。
	FindByRoomAndUsers(ctx context.Context, roomID uint, userIDs []uint) ([]domain.Participant, error)

	// Save 保存成员记录。
	// 违反 (room_id, user_id) 唯一约束时返回 ErrDuplicateEntry。
	Save(ctx context.Context, p *domain.Participant) error

	// Delete 删除成员记录 (踢出时调用)。
	// 如果记录不存在，返回 ErrParticipantNotFound。
	Delete(ctx context.Context, roomID, userID uint) error

	// TouchLastSeen 更新成员的最后在线时间。
	TouchLastSeen(ctx context.Context, roomID, userID uint, at time.Time) error
}
