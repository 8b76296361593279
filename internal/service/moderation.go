package service

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
	"collabcanvas/internal/tasks"
)

// TaskEnqueuer 是 asynq.Client 的最小接口，便于测试替换。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ModerationService 负责踢出与封禁的权限校验和持久化处理。
// 规则：owner 和 moderator 可以执行；任何人不能对自己操作；
// owner 不可被操作；moderator 只能对普通 member 操作。
type ModerationService struct {
	participantRepo repository.ParticipantRepository
	taskClient      TaskEnqueuer
}

// NewModerationService 创建 ModerationService 实例。
// taskClient 可以为 nil，此时不投递通知任务。
func NewModerationService(participantRepo repository.ParticipantRepository, taskClient TaskEnqueuer) *ModerationService {
	if participantRepo == nil {
		panic("ParticipantRepository cannot be nil for ModerationService")
	}
	return &ModerationService{
		participantRepo: participantRepo,
		taskClient:      taskClient,
	}
}

// Kick 将目标用户移出房间 (删除成员记录)。用户可以重新加入。
func (s *ModerationService) Kick(ctx context.Context, roomID, actorID, targetID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"actor_id":  actorID,
		"target_id": targetID,
	})

	if _, err := s.checkModerationAllowed(ctx, roomID, actorID, targetID); err != nil {
		return err
	}

	if err := s.participantRepo.Delete(ctx, roomID, targetID); err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			// 校验和删除之间目标已离开
			return ErrParticipantNotFound
		}
		logCtx.WithError(err).Error("Kick: Failed to delete participant")
		return ErrInternalServer
	}

	logCtx.Info("Participant kicked")
	s.enqueueNotice(ctx, targetID, roomID, domain.NotificationKicked)
	return nil
}

// Ban 封禁目标用户：保留成员记录但设置封禁标记，阻止重新加入。
func (s *ModerationService) Ban(ctx context.Context, roomID, actorID, targetID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"actor_id":  actorID,
		"target_id": targetID,
	})

	target, err := s.checkModerationAllowed(ctx, roomID, actorID, targetID)
	if err != nil {
		return err
	}

	target.Banned = true
	if err := s.participantRepo.Save(ctx, target); err != nil {
		logCtx.WithError(err).Error("Ban: Failed to save banned participant")
		return ErrInternalServer
	}

	logCtx.Info("Participant banned")
	s.enqueueNotice(ctx, targetID, roomID, domain.NotificationBanned)
	return nil
}

// --- 私有辅助函数 ---

// checkModerationAllowed 执行共用的权限校验，通过时返回目标成员记录。
func (s *ModerationService) checkModerationAllowed(ctx context.Context, roomID, actorID, targetID uint) (*domain.Participant, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"actor_id":  actorID,
		"target_id": targetID,
	})

	// 1. 不允许对自己执行
	if actorID == targetID {
		return nil, ErrCannotActOnSelf
	}

	// 2. 执行者必须是房间成员且具备权限
	actor, err := s.participantRepo.FindByRoomAndUser(ctx, roomID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return nil, ErrUnauthorized
		}
		logCtx.WithError(err).Error("Moderation check: Failed to load actor")
		return nil, ErrInternalServer
	}
	if !actor.CanModerate() {
		logCtx.WithField("actor_role", actor.Role).Warn("Moderation check: Actor lacks permission")
		return nil, ErrUnauthorized
	}

	// 3. 目标必须是房间成员
	target, err := s.participantRepo.FindByRoomAndUser(ctx, roomID, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		logCtx.WithError(err).Error("Moderation check: Failed to load target")
		return nil, ErrInternalServer
	}

	// 4. owner 不可被操作；moderator 只能处理普通 member
	if target.Role == domain.RoleOwner {
		return nil, ErrUnauthorized
	}
	if actor.Role == domain.RoleModerator && target.Role != domain.RoleMember {
		return nil, ErrUnauthorized
	}
	return target, nil
}

// enqueueNotice 投递通知任务，失败只记日志。
func (s *ModerationService) enqueueNotice(ctx context.Context, userID, roomID uint, kind string) {
	if s.taskClient == nil {
		return
	}
	task, err := tasks.NewNotificationDeliverTask(userID, roomID, kind)
	if err != nil {
		logrus.WithError(err).Error("Failed to build notification task")
		return
	}
	if _, err := s.taskClient.EnqueueContext(ctx, task, asynq.Queue("low")); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"room_id": roomID,
			"kind":    kind,
		}).Warn("Failed to enqueue notification task")
	}
}
