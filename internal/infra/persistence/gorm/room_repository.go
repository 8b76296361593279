package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).First(&roomData, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &roomData, nil
}

// FindByJoinCode 实现根据加入码查找房间
func (r *GormRoomRepository) FindByJoinCode(ctx context.Context, code string) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).Where("join_code = ?", code).First(&roomData).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by join code '%s': %w", code, err)
	}
	return &roomData, nil
}

// Save 实现保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, roomData *domain.Room) error {
	result := r.db.WithContext(ctx).Save(roomData)
	err := result.Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, join_code: %s): %w", roomData.ID, roomData.JoinCode, err)
	}
	return nil
}

// ListPublicActive 实现查询最近活跃的公开房间
func (r *GormRoomRepository) ListPublicActive(ctx context.Context, limit int) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("private = ? AND active = ?", false, true).
		Order("last_active DESC").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list public active rooms: %w", err)
	}
	return rooms, nil
}

// TouchLastActive 实现更新房间的最后活跃时间
func (r *GormRoomRepository) TouchLastActive(ctx context.Context, roomID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", roomID).
		Update("last_active", at).Error
	if err != nil {
		return fmt.Errorf("gorm: touch last_active for room %d: %w", roomID, err)
	}
	return nil
}

// DeactivateIdle 实现批量停用闲置房间，返回受影响的行数
func (r *GormRoomRepository) DeactivateIdle(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("active = ? AND last_active < ?", true, before).
		Update("active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: deactivate idle rooms: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// IsJoinCodeExists 实现检查加入码是否存在
func (r *GormRoomRepository) IsJoinCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	// 使用 Count() 优化查询，只查询数量
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("join_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by join code '%s': %w", code, err)
	}
	return count > 0, nil
}
