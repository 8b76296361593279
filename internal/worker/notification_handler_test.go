package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
	"collabcanvas/internal/repository/mocks"
	"collabcanvas/internal/service"
	"collabcanvas/internal/tasks"
	"collabcanvas/internal/worker"
)

// --- 测试 NotificationDeliverHandler ---

func TestNotificationDeliverHandler_ProcessTask_Success(t *testing.T) {
	// Arrange
	mockNotificationRepo := new(mocks.NotificationRepository)
	mockRoomRepo := new(mocks.RoomRepository)
	handler := worker.NewNotificationDeliverHandler(mockNotificationRepo, mockRoomRepo)
	ctx := context.Background()

	task, err := tasks.NewNotificationDeliverTask(11, 7, domain.NotificationKicked)
	require.NoError(t, err, "构造通知任务不应失败")

	// 设置 Mock 预期:
	// 1. 房间名用于拼接通知文案
	mockRoomRepo.On("FindByID", mock.Anything, uint(7)).
		Return(&domain.Room{ID: 7, Name: "Team canvas"}, nil).Once()
	// 2. 通知落库，校验文案包含房间名
	mockNotificationRepo.On("Save", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		assert.Equal(t, uint(11), n.UserID)
		assert.Equal(t, uint(7), n.RoomID)
		assert.Equal(t, domain.NotificationKicked, n.Kind)
		assert.Contains(t, n.Message, `"Team canvas"`, "文案应包含房间名")
		return true
	})).Return(nil).Once()

	// Act
	err = handler.ProcessTask(ctx, task)

	// Assert
	require.NoError(t, err)

	// Verify
	mockNotificationRepo.AssertExpectations(t)
	mockRoomRepo.AssertExpectations(t)
}

func TestNotificationDeliverHandler_ProcessTask_RoomMissingFallback(t *testing.T) {
	// Arrange: 房间已被删除时文案降级为房间编号
	mockNotificationRepo := new(mocks.NotificationRepository)
	mockRoomRepo := new(mocks.RoomRepository)
	handler := worker.NewNotificationDeliverHandler(mockNotificationRepo, mockRoomRepo)

	task, err := tasks.NewNotificationDeliverTask(11, 7, domain.NotificationBanned)
	require.NoError(t, err)

	mockRoomRepo.On("FindByID", mock.Anything, uint(7)).
		Return(nil, repository.ErrRoomNotFound).Once()
	mockNotificationRepo.On("Save", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.Kind == domain.NotificationBanned && assert.Contains(t, n.Message, "room #7")
	})).Return(nil).Once()

	// Act & Assert
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	mockNotificationRepo.AssertExpectations(t)
}

func TestNotificationDeliverHandler_ProcessTask_MalformedPayload(t *testing.T) {
	// Arrange
	mockNotificationRepo := new(mocks.NotificationRepository)
	mockRoomRepo := new(mocks.RoomRepository)
	handler := worker.NewNotificationDeliverHandler(mockNotificationRepo, mockRoomRepo)
	task := asynq.NewTask(tasks.TypeNotificationDeliver, []byte(`{"user_id":`))

	// Act
	err := handler.ProcessTask(context.Background(), task)

	// Assert: 损坏的 payload 不应进入重试
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "损坏的 payload 应跳过重试")
	mockNotificationRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	mockRoomRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestNotificationDeliverHandler_ProcessTask_SaveFailureRetriable(t *testing.T) {
	// Arrange
	mockNotificationRepo := new(mocks.NotificationRepository)
	mockRoomRepo := new(mocks.RoomRepository)
	handler := worker.NewNotificationDeliverHandler(mockNotificationRepo, mockRoomRepo)

	task, err := tasks.NewNotificationDeliverTask(11, 7, domain.NotificationKicked)
	require.NoError(t, err)

	mockRoomRepo.On("FindByID", mock.Anything, uint(7)).
		Return(&domain.Room{ID: 7, Name: "Team canvas"}, nil).Once()
	mockNotificationRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Notification")).
		Return(errors.New("connection refused")).Once()

	// Act
	err = handler.ProcessTask(context.Background(), task)

	// Assert: 数据库故障是可重试错误
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "数据库故障应保留重试机会")
}

// --- 测试 RoomSweepHandler ---

func TestRoomSweepHandler_ProcessTask(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo, new(mocks.ParticipantRepository))
	handler := worker.NewRoomSweepHandler(roomService, 24*time.Hour)

	// 设置 Mock 预期: 截止时间应在 now-24h 附近
	mockRoomRepo.On("DeactivateIdle", mock.Anything, mock.MatchedBy(func(before time.Time) bool {
		expected := time.Now().Add(-24 * time.Hour)
		return before.Sub(expected).Abs() < 5*time.Second
	})).Return(int64(2), nil).Once()

	// Act
	err := handler.ProcessTask(context.Background(), tasks.NewRoomSweepTask())

	// Assert
	require.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomSweepHandler_ProcessTask_RepositoryError(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo, new(mocks.ParticipantRepository))
	handler := worker.NewRoomSweepHandler(roomService, 24*time.Hour)

	mockRoomRepo.On("DeactivateIdle", mock.Anything, mock.Anything).
		Return(int64(0), errors.New("connection refused")).Once()

	// Act
	err := handler.ProcessTask(context.Background(), tasks.NewRoomSweepTask())

	// Assert: 错误上抛给 asynq 以触发重试
	require.Error(t, err)
}
