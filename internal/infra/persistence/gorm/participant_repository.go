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

// GormParticipantRepository 是 ParticipantRepository 接口的 GORM 实现
type GormParticipantRepository struct {
	db *gorm.DB
}

// NewGormParticipantRepository 创建 GormParticipantRepository 实例
func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	if db == nil {
		panic("database connection cannot be nil for GormParticipantRepository")
	}
	return &GormParticipantRepository{db: db}
}

// FindByRoomAndUser 实现查找成员记录
func (r *GormParticipantRepository) FindByRoomAndUser(ctx context.Context, roomID, userID uint) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("gorm: find participant (room: %d, user: %d): %w", roomID, userID, err)
	}
	return &p, nil
}

// FindByRoomAndUsers 实现批量查询成员记录
func (r *GormParticipantRepository) FindByRoomAndUsers(ctx context.Context, roomID uint, userIDs []uint) ([]domain.Participant, error) {
	var ps []domain.Participant
	if len(userIDs) == 0 {
		return ps, nil // 避免空的 IN 查询
	}
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id IN ?", roomID, userIDs).
		Find(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find participants in room %d: %w", roomID, err)
	}
	return ps, nil
}

// Save 实现保存成员记录（创建或更新）
func (r *GormParticipantRepository) Save(ctx context.Context, p *domain.Participant) error {
	result := r.db.WithContext(ctx).Save(p)
	if err := result.Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save participant (room: %d, user: %d): %w", p.RoomID, p.UserID, err)
	}
	return nil
}

// Delete 实现删除成员记录
func (r *GormParticipantRepository) Delete(ctx context.Context, roomID, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.Participant{})
	if result.Error != nil {
		return fmt.Errorf("gorm: delete participant (room: %d, user: %d): %w", roomID, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrParticipantNotFound
	}
	return nil
}

// TouchLastSeen 实现更新成员的最后在线时间
func (r *GormParticipantRepository) TouchLastSeen(ctx context.Context, roomID, userID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("last_seen", at).Error
	if err != nil {
		return fmt.Errorf("gorm: touch last_seen (room: %d, user: %d): %w", roomID, userID, err)
	}
	return nil
}
