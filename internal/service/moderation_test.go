package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
	"collabcanvas/internal/repository/mocks"
	"collabcanvas/internal/service"
	"collabcanvas/internal/tasks"
)

// mockTaskEnqueuer 模拟 asynq 客户端的投递行为。
type mockTaskEnqueuer struct{ mock.Mock }

func (m *mockTaskEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if info := args.Get(0); info != nil {
		return info.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func moderationFixture(t *testing.T) (*service.ModerationService, *mocks.ParticipantRepository, *mockTaskEnqueuer) {
	t.Helper()
	mockParticipantRepo := new(mocks.ParticipantRepository)
	enqueuer := new(mockTaskEnqueuer)
	moderationService := service.NewModerationService(mockParticipantRepo, enqueuer)
	return moderationService, mockParticipantRepo, enqueuer
}

func participantWithRole(roomID, userID uint, role string) *domain.Participant {
	return &domain.Participant{RoomID: roomID, UserID: userID, Role: role}
}

// --- 测试 Kick 方法 ---

func TestModerationService_Kick_Success(t *testing.T) {
	// Arrange
	moderationService, mockParticipantRepo, enqueuer := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleOwner), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleMember), nil).Once()
	mockParticipantRepo.On("Delete", ctx, roomID, targetID).Return(nil).Once()

	// 校验投递的通知任务类型与载荷
	enqueuer.On("EnqueueContext", ctx, mock.MatchedBy(func(task *asynq.Task) bool {
		if task.Type() != tasks.TypeNotificationDeliver {
			return false
		}
		var payload tasks.NotificationDeliverPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return false
		}
		return payload.UserID == targetID && payload.RoomID == roomID && payload.Kind == domain.NotificationKicked
	}), mock.Anything).Return(&asynq.TaskInfo{}, nil).Once()

	// Act
	err := moderationService.Kick(ctx, roomID, actorID, targetID)

	// Assert
	require.NoError(t, err, "owner 踢出普通成员不应失败")

	// Verify
	mockParticipantRepo.AssertExpectations(t)
	enqueuer.AssertExpectations(t)
}

func TestModerationService_Kick_ByModerator(t *testing.T) {
	// Arrange: moderator 可以处理普通 member
	moderationService, mockParticipantRepo, enqueuer := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleModerator), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleMember), nil).Once()
	mockParticipantRepo.On("Delete", ctx, roomID, targetID).Return(nil).Once()
	enqueuer.On("EnqueueContext", ctx, mock.Anything, mock.Anything).Return(&asynq.TaskInfo{}, nil).Once()

	// Act & Assert
	require.NoError(t, moderationService.Kick(ctx, roomID, actorID, targetID))
	mockParticipantRepo.AssertExpectations(t)
}

func TestModerationService_Kick_SelfRejected(t *testing.T) {
	// Arrange
	moderationService, mockParticipantRepo, _ := moderationFixture(t)
	ctx := context.Background()

	// Act: 对自己执行踢出
	err := moderationService.Kick(ctx, 7, 11, 11)

	// Assert: 直接拒绝，不触碰数据库
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrCannotActOnSelf))
	mockParticipantRepo.AssertNotCalled(t, "FindByRoomAndUser", mock.Anything, mock.Anything, mock.Anything)
	mockParticipantRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestModerationService_Kick_ActorLacksPermission(t *testing.T) {
	// Arrange: 普通 member 不能踢人
	moderationService, mockParticipantRepo, _ := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleMember), nil).Once()

	// Act
	err := moderationService.Kick(ctx, roomID, actorID, targetID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))
	mockParticipantRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestModerationService_Kick_TargetOwnerRejected(t *testing.T) {
	// Arrange: owner 永远不可被操作
	moderationService, mockParticipantRepo, _ := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleModerator), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleOwner), nil).Once()

	// Act
	err := moderationService.Kick(ctx, roomID, actorID, targetID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))
	mockParticipantRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestModerationService_Kick_ModeratorOnModeratorRejected(t *testing.T) {
	// Arrange: moderator 之间不可互相处理
	moderationService, mockParticipantRepo, _ := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleModerator), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleModerator), nil).Once()

	// Act
	err := moderationService.Kick(ctx, roomID, actorID, targetID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))
}

func TestModerationService_Kick_TargetNotFound(t *testing.T) {
	// Arrange
	moderationService, mockParticipantRepo, _ := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleOwner), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(nil, repository.ErrParticipantNotFound).Once()

	// Act
	err := moderationService.Kick(ctx, roomID, actorID, targetID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrParticipantNotFound))
}

func TestModerationService_Kick_TargetLeftBeforeDelete(t *testing.T) {
	// Arrange: 校验和删除之间目标已离开房间
	moderationService, mockParticipantRepo, _ := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleOwner), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleMember), nil).Once()
	mockParticipantRepo.On("Delete", ctx, roomID, targetID).
		Return(repository.ErrParticipantNotFound).Once()

	// Act
	err := moderationService.Kick(ctx, roomID, actorID, targetID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrParticipantNotFound))
}

// --- 测试 Ban 方法 ---

func TestModerationService_Ban_SetsBannedFlag(t *testing.T) {
	// Arrange
	moderationService, mockParticipantRepo, enqueuer := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleOwner), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleMember), nil).Once()
	mockParticipantRepo.On("Save", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.UserID == targetID && p.Banned
	})).Return(nil).Once()

	enqueuer.On("EnqueueContext", ctx, mock.MatchedBy(func(task *asynq.Task) bool {
		var payload tasks.NotificationDeliverPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return false
		}
		return payload.Kind == domain.NotificationBanned
	}), mock.Anything).Return(&asynq.TaskInfo{}, nil).Once()

	// Act
	err := moderationService.Ban(ctx, roomID, actorID, targetID)

	// Assert: 封禁保留成员记录，只设置标记
	require.NoError(t, err)
	mockParticipantRepo.AssertExpectations(t)
	mockParticipantRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	enqueuer.AssertExpectations(t)
}

func TestModerationService_Ban_SaveFailure(t *testing.T) {
	// Arrange
	moderationService, mockParticipantRepo, enqueuer := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleOwner), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleMember), nil).Once()
	mockParticipantRepo.On("Save", ctx, mock.AnythingOfType("*domain.Participant")).
		Return(errors.New("connection refused")).Once()

	// Act
	err := moderationService.Ban(ctx, roomID, actorID, targetID)

	// Assert: 持久化失败时不投递通知
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInternalServer))
	enqueuer.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything, mock.Anything)
}

// --- 任务投递的容错 ---

func TestModerationService_Kick_NilTaskClient(t *testing.T) {
	// Arrange: 未配置任务客户端时跳过通知投递
	mockParticipantRepo := new(mocks.ParticipantRepository)
	moderationService := service.NewModerationService(mockParticipantRepo, nil)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleOwner), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleMember), nil).Once()
	mockParticipantRepo.On("Delete", ctx, roomID, targetID).Return(nil).Once()

	// Act & Assert: 不应 panic，踢出照常生效
	require.NoError(t, moderationService.Kick(ctx, roomID, actorID, targetID))
}

func TestModerationService_Kick_EnqueueFailureIgnored(t *testing.T) {
	// Arrange: 通知投递失败不影响踢出结果
	moderationService, mockParticipantRepo, enqueuer := moderationFixture(t)
	ctx := context.Background()
	roomID, actorID, targetID := uint(7), uint(11), uint(22)

	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, actorID).
		Return(participantWithRole(roomID, actorID, domain.RoleOwner), nil).Once()
	mockParticipantRepo.On("FindByRoomAndUser", ctx, roomID, targetID).
		Return(participantWithRole(roomID, targetID, domain.RoleMember), nil).Once()
	mockParticipantRepo.On("Delete", ctx, roomID, targetID).Return(nil).Once()
	enqueuer.On("EnqueueContext", ctx, mock.Anything, mock.Anything).
		Return(nil, errors.New("redis unavailable")).Once()

	// Act & Assert
	require.NoError(t, moderationService.Kick(ctx, roomID, actorID, targetID))
	enqueuer.AssertExpectations(t)
}
