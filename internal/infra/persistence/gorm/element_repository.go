package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"collabcanvas/internal/domain"
)

// GormElementRepository 是 ElementRepository 接口的 GORM 实现
type GormElementRepository struct {
	db *gorm.DB
}

// NewGormElementRepository 创建 GormElementRepository 实例
func NewGormElementRepository(db *gorm.DB) *GormElementRepository {
	if db == nil {
		panic("database connection cannot be nil for GormElementRepository")
	}
	return &GormElementRepository{db: db}
}

// SaveBatch 实现按顺序批量追加元素
// GORM 的 Create 对 slice 使用单条批量 INSERT，失败时整批回滚。
func (r *GormElementRepository) SaveBatch(ctx context.Context, elements []domain.Element) error {
	if len(elements) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&elements).Error; err != nil {
		return fmt.Errorf("gorm: save element batch (room: %d, count: %d): %w",
			elements[0].RoomID, len(elements), err)
	}
	return nil
}

// FindByRoom 实现按追加顺序读取房间的全部元素
func (r *GormElementRepository) FindByRoom(ctx context.Context, roomID uint) ([]domain.Element, error) {
	var els []domain.Element
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&els).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find elements for room %d: %w", roomID, err)
	}
	return els, nil
}

// DeleteByRoom 实现删除房间的全部元素
func (r *GormElementRepository) DeleteByRoom(ctx context.Context, roomID uint) error {
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Delete(&domain.Element{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete elements for room %d: %w", roomID, err)
	}
	return nil
}
