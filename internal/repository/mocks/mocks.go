// Package mocks 提供 repository 接口的 testify mock 实现，供服务层测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"collabcanvas/internal/domain"
)

// UserRepository 是 repository.UserRepository 的 mock。
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	var user *domain.User
	if args.Get(0) != nil {
		user = args.Get(0).(*domain.User)
	}
	return user, args.Error(1)
}

func (m *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	args := m.Called(ctx, id)
	var user *domain.User
	if args.Get(0) != nil {
		user = args.Get(0).(*domain.User)
	}
	return user, args.Error(1)
}

func (m *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error) {
	args := m.Called(ctx, ids)
	var users []domain.User
	if args.Get(0) != nil {
		users = args.Get(0).([]domain.User)
	}
	return users, args.Error(1)
}

func (m *UserRepository) Save(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// RoomRepository 是 repository.RoomRepository 的 mock。
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	args := m.Called(ctx, id)
	var room *domain.Room
	if args.Get(0) != nil {
		room = args.Get(0).(*domain.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepository) FindByJoinCode(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	var room *domain.Room
	if args.Get(0) != nil {
		room = args.Get(0).(*domain.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) ListPublicActive(ctx context.Context, limit int) ([]domain.Room, error) {
	args := m.Called(ctx, limit)
	var rooms []domain.Room
	if args.Get(0) != nil {
		rooms = args.Get(0).([]domain.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepository) TouchLastActive(ctx context.Context, roomID uint, at time.Time) error {
	args := m.Called(ctx, roomID, at)
	return args.Error(0)
}

func (m *RoomRepository) DeactivateIdle(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RoomRepository) IsJoinCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

// ParticipantRepository 是 repository.ParticipantRepository 的 mock。
type ParticipantRepository struct {
	mock.Mock
}

func (m *ParticipantRepository) FindByRoomAndUser(ctx context.Context, roomID, userID uint) (*domain.Participant, error) {
	args := m.Called(ctx, roomID, userID)
	var p *domain.Participant
	if args.Get(0) != nil {
		p = args.Get(0).(*domain.Participant)
	}
	return p, args.Error(1)
}

func (m *ParticipantRepository) FindByRoomAndUsers(ctx context.Context, roomID uint, userIDs []uint) ([]domain.Participant, error) {
	args := m.Called(ctx, roomID, userIDs)
	var ps []domain.Participant
	if args.Get(0) != nil {
		ps = args.Get(0).([]domain.Participant)
	}
	return ps, args.Error(1)
}

func (m *ParticipantRepository) Save(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ParticipantRepository) Delete(ctx context.Context, roomID, userID uint) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *ParticipantRepository) TouchLastSeen(ctx context.Context, roomID, userID uint, at time.Time) error {
	args := m.Called(ctx, roomID, userID, at)
	return args.Error(0)
}

// ElementRepository 是 repository.ElementRepository 的 mock。
type ElementRepository struct {
	mock.Mock
}

func (m *ElementRepository) SaveBatch(ctx context.Context, elements []domain.Element) error {
	args := m.Called(ctx, elements)
	return args.Error(0)
}

func (m *ElementRepository) FindByRoom(ctx context.Context, roomID uint) ([]domain.Element, error) {
	args := m.Called(ctx, roomID)
	var els []domain.Element
	if args.Get(0) != nil {
		els = args.Get(0).([]domain.Element)
	}
	return els, args.Error(1)
}

func (m *ElementRepository) DeleteByRoom(ctx context.Context, roomID uint) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// NotificationRepository 是 repository.NotificationRepository 的 mock。
type NotificationRepository struct {
	mock.Mock
}

func (m *NotificationRepository) Save(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *NotificationRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, limit)
	var ns []domain.Notification
	if args.Get(0) != nil {
		ns = args.Get(0).([]domain.Notification)
	}
	return ns, args.Error(1)
}

func (m *NotificationRepository) FindByID(ctx context.Context, id uint) (*domain.Notification, error) {
	args := m.Called(ctx, id)
	var n *domain.Notification
	if args.Get(0) != nil {
		n = args.Get(0).(*domain.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationRepository) MarkRead(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// CanvasCacheRepository 是 repository.CanvasCacheRepository 的 mock。
type CanvasCacheRepository struct {
	mock.Mock
}

func (m *CanvasCacheRepository) GetElements(ctx context.Context, roomID uint) ([]domain.Element, error) {
	args := m.Called(ctx, roomID)
	var els []domain.Element
	if args.Get(0) != nil {
		els = args.Get(0).([]domain.Element)
	}
	return els, args.Error(1)
}

func (m *CanvasCacheRepository) SetElements(ctx context.Context, roomID uint, elements []domain.Element, ttl time.Duration) error {
	args := m.Called(ctx, roomID, elements, ttl)
	return args.Error(0)
}

func (m *CanvasCacheRepository) Invalidate(ctx context.Context, roomID uint) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}
