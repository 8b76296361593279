package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
)

// GormNotificationRepository 是 NotificationRepository 接口的 GORM 实现
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository 创建 GormNotificationRepository 实例
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	if db == nil {
		panic("database connection cannot be nil for GormNotificationRepository")
	}
	return &GormNotificationRepository{db: db}
}

// Save 实现保存通知记录
func (r *GormNotificationRepository) Save(ctx context.Context, n *domain.Notification) error {
	if err := r.db.WithContext(ctx).Save(n).Error; err != nil {
		return fmt.Errorf("gorm: save notification (user: %d, kind: %s): %w", n.UserID, n.Kind, err)
	}
	return nil
}

// ListByUser 实现按创建时间倒序查询用户通知
func (r *GormNotificationRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]domain.Notification, error) {
	var ns []domain.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&ns).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list notifications for user %d: %w", userID, err)
	}
	return ns, nil
}

// FindByID 实现根据 ID 查找通知
func (r *GormNotificationRepository) FindByID(ctx context.Context, id uint) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).First(&n, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("gorm: find notification by id %d: %w", id, err)
	}
	return &n, nil
}

// MarkRead 实现将通知标记为已读
func (r *GormNotificationRepository) MarkRead(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("read", true).Error
	if err != nil {
		return fmt.Errorf("gorm: mark notification %d read: %w", id, err)
	}
	return nil
}
