package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
)

// RoomService 负责房间生命周期相关的业务逻辑。
type RoomService struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, participantRepo repository.ParticipantRepository) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if participantRepo == nil {
		panic("ParticipantRepository cannot be nil for RoomService")
	}
	return &RoomService{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
	}
}

// CreateRoom 创建一个新房间，并把创建者登记为 owner。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, name string, private bool) (*domain.Room, error) {
	logCtx := logrus.WithField("creator_id", creatorID)

	// 1. 生成唯一的加入码
	joinCode, err := s.generateUniqueJoinCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique join code")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("join_code", joinCode)

	// 2. 创建房间对象
	room := &domain.Room{
		CreatorID:  creatorID,
		Name:       name,
		JoinCode:   joinCode,
		Private:    private,
		Active:     true,
		LastActive: time.Now(),
	}

	// 3. 保存房间 (调用 Repository 接口)
	err = s.roomRepo.Save(ctx, room)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 加入码唯一性已在生成时检查过，理论上不应发生
			logCtx.WithError(err).Error("Failed to save new room due to duplicate entry (join code conflict?)")
			return nil, ErrInternalServer
		}
		logCtx.WithError(err).Error("Failed to save new room to database")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	// 4. 登记创建者为 owner
	owner := &domain.Participant{
		RoomID:   room.ID,
		UserID:   creatorID,
		Role:     domain.RoleOwner,
		JoinedAt: time.Now(),
		LastSeen: time.Now(),
	}
	if err := s.participantRepo.Save(ctx, owner); err != nil {
		// 房间已建但 owner 行写入失败，记录后仍返回错误，避免出现无主房间
		logCtx.WithError(err).Error("Failed to save owner participant for new room")
		return nil, ErrInternalServer
	}

	logCtx.Info("Room created successfully")
	return room, nil
}

// ResolveRoom 将房间标识 (数字 ID 或 6 位加入码) 解析为房间对象。
// 不活跃的房间视为不可加入。
func (s *RoomService) ResolveRoom(ctx context.Context, identifier string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_identifier", identifier)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrRoomNotFound
	}

	var room *domain.Room
	var err error

	// 1. 纯数字优先按 ID 解析；未命中且长度恰好为 6 时再尝试加入码
	if id, parseErr := strconv.ParseUint(identifier, 10, 64); parseErr == nil {
		room, err = s.roomRepo.FindByID(ctx, uint(id))
		if errors.Is(err, repository.ErrRoomNotFound) && len(identifier) == joinCodeLength {
			room, err = s.roomRepo.FindByJoinCode(ctx, identifier)
		}
	} else {
		room, err = s.roomRepo.FindByJoinCode(ctx, strings.ToUpper(identifier))
	}

	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("ResolveRoom: Room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("ResolveRoom: Repository error")
		return nil, ErrInternalServer
	}
	if room == nil { // 防御
		logCtx.Warn("ResolveRoom: Repository returned nil room without error")
		return nil, ErrRoomNotFound
	}

	// 2. 已被清扫任务停用的房间不再接受加入
	if !room.Active {
		logCtx.WithField("room_id", room.ID).Warn("ResolveRoom: Room is inactive")
		return nil, ErrRoomInactive
	}
	return room, nil
}

// FindRoomByJoinCode 根据加入码查找可用房间，供 REST 加入接口使用。
func (s *RoomService) FindRoomByJoinCode(ctx context.Context, code string) (*domain.Room, error) {
	logCtx := logrus.WithField("join_code", code)

	room, err := s.roomRepo.FindByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("FindRoomByJoinCode: Room not found")
			return nil, ErrInvalidJoinCode
		}
		logCtx.WithError(err).Error("FindRoomByJoinCode: Repository error")
		return nil, ErrInternalServer
	}
	if room == nil { // 防御
		return nil, ErrInvalidJoinCode
	}
	if !room.Active {
		return nil, ErrRoomInactive
	}
	return room, nil
}

// FindRoomByID 根据 ID 查找房间。
func (s *RoomService) FindRoomByID(ctx context.Context, roomID uint) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", roomID)
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("FindRoomByID: Room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("FindRoomByID: Repository error")
		return nil, ErrInternalServer
	}
	if room == nil { // 防御
		logCtx.Warn("FindRoomByID: Repository returned nil room without error")
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// ListPublicRooms 返回最近活跃的公开房间列表。
func (s *RoomService) ListPublicRooms(ctx context.Context, limit int) ([]domain.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rooms, err := s.roomRepo.ListPublicActive(ctx, limit)
	if err != nil {
		logrus.WithError(err).Error("ListPublicRooms: Repository error")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// TouchRoom 更新房间的最后活跃时间，由写入路径调用。
func (s *RoomService) TouchRoom(ctx context.Context, roomID uint) error {
	if err := s.roomRepo.TouchLastActive(ctx, roomID, time.Now()); err != nil {
		return ErrInternalServer
	}
	return nil
}

// DeactivateIdleRooms 将闲置超过 idleFor 的房间标记为不活跃，
// 返回受影响的房间数。由后台清扫任务调用。
func (s *RoomService) DeactivateIdleRooms(ctx context.Context, idleFor time.Duration) (int64, error) {
	before := time.Now().Add(-idleFor)
	count, err := s.roomRepo.DeactivateIdle(ctx, before)
	if err != nil {
		logrus.WithError(err).Error("DeactivateIdleRooms: Repository error")
		return 0, ErrInternalServer
	}
	if count > 0 {
		logrus.WithField("count", count).Info("Deactivated idle rooms")
	}
	return count, nil
}

// --- 私有辅助函数 ---

const joinCodeLength = 6

// generateUniqueJoinCode 生成唯一的加入码
func (s *RoomService) generateUniqueJoinCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const maxAttempts = 10

	b := make([]byte, joinCodeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		// 检查加入码是否存在 (调用 Repository 接口)
		exists, err := s.roomRepo.IsJoinCodeExists(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("join_code", code).Error("Database error checking join code uniqueness")
			return "", fmt.Errorf("database error checking join code: %w", err)
		}
		if !exists {
			return code, nil
		}
		// code 已存在，重试
		logrus.WithField("join_code", code).Warnf("Generated join code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique join code after %d attempts", maxAttempts)
}
