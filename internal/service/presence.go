package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
)

// RosterMember 是在线名单中的一项。
type RosterMember struct {
	UserID   uint
	Username string
	Role     string
}

// PresenceService 负责成员资格与在线名单：加入登记、封禁检查和名单组装。
type PresenceService struct {
	participantRepo repository.ParticipantRepository
	userRepo        repository.UserRepository
}

// NewPresenceService 创建 PresenceService 实例。
func NewPresenceService(participantRepo repository.ParticipantRepository, userRepo repository.UserRepository) *PresenceService {
	if participantRepo == nil {
		panic("ParticipantRepository cannot be nil for PresenceService")
	}
	if userRepo == nil {
		panic("UserRepository cannot be nil for PresenceService")
	}
	return &PresenceService{
		participantRepo: participantRepo,
		userRepo:        userRepo,
	}
}

// EnsureJoined 确保用户是房间成员：已有记录则校验封禁状态，
// 没有则以 member 角色登记。被封禁的用户返回 ErrBanned。
func (s *PresenceService) EnsureJoined(ctx context.Context, roomID, userID uint) (*domain.Participant, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	// 1. 查找现有成员记录
	p, err := s.participantRepo.FindByRoomAndUser(ctx, roomID, userID)
	if err != nil && !errors.Is(err, repository.ErrParticipantNotFound) {
		logCtx.WithError(err).Error("EnsureJoined: Repository error")
		return nil, ErrInternalServer
	}

	// 2. 没有记录时登记为 member
	if p == nil {
		now := time.Now()
		p = &domain.Participant{
			RoomID:   roomID,
			UserID:   userID,
			Role:     domain.RoleMember,
			JoinedAt: now,
			LastSeen: now,
		}
		if err := s.participantRepo.Save(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				// 并发加入时另一连接先写入了记录，重新读取
				p, err = s.participantRepo.FindByRoomAndUser(ctx, roomID, userID)
				if err != nil {
					logCtx.WithError(err).Error("EnsureJoined: Failed to re-read participant after duplicate entry")
					return nil, ErrInternalServer
				}
			} else {
				logCtx.WithError(err).Error("EnsureJoined: Failed to save participant")
				return nil, ErrInternalServer
			}
		} else {
			logCtx.Info("Participant registered")
			return p, nil
		}
	}

	// 3. 封禁检查
	if p.Banned {
		logCtx.Warn("EnsureJoined: User is banned from room")
		return nil, ErrBanned
	}

	// 4. 刷新最后在线时间，失败只记日志
	if err := s.participantRepo.TouchLastSeen(ctx, roomID, userID, time.Now()); err != nil {
		logCtx.WithError(err).Warn("EnsureJoined: Failed to touch last_seen")
	}
	return p, nil
}

// Roster 组装在线名单：按给定的在线用户顺序返回成员信息，
// 被封禁或已被移除的用户不会出现在名单中。
func (s *PresenceService) Roster(ctx context.Context, roomID uint, online []uint) ([]RosterMember, error) {
	if len(online) == 0 {
		return []RosterMember{}, nil
	}
	logCtx := logrus.WithField("room_id", roomID)

	// 1. 批量读取成员记录和用户名
	participants, err := s.participantRepo.FindByRoomAndUsers(ctx, roomID, online)
	if err != nil {
		logCtx.WithError(err).Error("Roster: Failed to load participants")
		return nil, ErrInternalServer
	}
	users, err := s.userRepo.FindByIDs(ctx, online)
	if err != nil {
		logCtx.WithError(err).Error("Roster: Failed to load users")
		return nil, ErrInternalServer
	}

	roleByUser := make(map[uint]string, len(participants))
	for _, p := range participants {
		if p.Banned {
			continue
		}
		roleByUser[p.UserID] = p.Role
	}
	nameByUser := make(map[uint]string, len(users))
	for _, u := range users {
		nameByUser[u.ID] = u.Username
	}

	// 2. 按在线顺序组装，保持名单稳定
	roster := make([]RosterMember, 0, len(online))
	for _, userID := range online {
		role, ok := roleByUser[userID]
		if !ok {
			continue
		}
		roster = append(roster, RosterMember{
			UserID:   userID,
			Username: nameByUser[userID],
			Role:     role,
		})
	}
	return roster, nil
}

// Touch 刷新成员的最后在线时间，由断开路径调用。
func (s *PresenceService) Touch(ctx context.Context, roomID, userID uint) error {
	if err := s.participantRepo.TouchLastSeen(ctx, roomID, userID, time.Now()); err != nil {
		return ErrInternalServer
	}
	return nil
}
