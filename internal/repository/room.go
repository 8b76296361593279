package repository

import (
	"context"
	"time"

	"collabcanvas/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间。
	// 如果房间不存在，应返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByJoinCode 根据加入码查找房间。
	// 如果房间不存在，应返回 ErrRoomNotFound。
	FindByJoinCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 保存房间信息。
	// 如果房间已存在 (基于 ID)，则更新；否则创建新房间。
	Save(ctx context.Context, room *domain.Room) error

	// ListPublicActive 返回最近活跃的公开房间，按 last_active 倒序。
	ListPublicActive(ctx context.Context, limit int) ([]domain.Room, error)

	// TouchLastActive 更新房间的最后活跃时间。
	TouchLastActive(ctx context.Context, roomID uint, at time.Time) error

	// DeactivateIdle 将最后活跃时间早于 before 的房间标记为不活跃，
	// 返回受影响的行数。由后台清扫任务调用。
	DeactivateIdle(ctx context.Context, before time.Time) (int64, error)

	// IsJoinCodeExists 检查加入码是否已存在。
	IsJoinCodeExists(ctx context.Context, code string) (bool, error)
}
