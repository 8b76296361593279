package repository

import (
	"context"

	"collabcanvas/internal/domain"
)

// NotificationRepository 定义了用户通知的存储和检索操作。
type NotificationRepository interface {
	// Save 保存通知记录。
	Save(ctx context.Context, n *domain.Notification) error

	// ListByUser 按创建时间倒序返回某用户的通知。
	ListByUser(ctx context.Context, userID uint, limit int) ([]domain.Notification, error)

	// FindByID 根据 ID 查找通知。
	// 如果通知不存在，应返回 ErrNotificationNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Notification, error)

	// MarkRead 将通知标记为已读。
	MarkRead(ctx context.Context, id uint) error
}
