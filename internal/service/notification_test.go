package service_test

import (
	"context"
	"errors"
	"testing"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
	"collabcanvas/internal/repository/mocks"
	"collabcanvas/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- 测试 ListForUser 方法 ---

func TestNotificationService_ListForUser(t *testing.T) {
	// Arrange
	mockNotificationRepo := new(mocks.NotificationRepository)
	notificationService := service.NewNotificationService(mockNotificationRepo)
	ctx := context.Background()
	userID := uint(11)
	stored := []domain.Notification{
		{ID: 2, UserID: userID, Kind: domain.NotificationBanned},
		{ID: 1, UserID: userID, Kind: domain.NotificationKicked},
	}

	// 设置 Mock 预期: 越界的 limit 被收敛为默认值 50
	mockNotificationRepo.On("ListByUser", ctx, userID, 50).Return(stored, nil).Once()

	// Act
	ns, err := notificationService.ListForUser(ctx, userID, 0)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, stored, ns)

	// Verify
	mockNotificationRepo.AssertExpectations(t)
}

// --- 测试 MarkRead 方法 ---

func TestNotificationService_MarkRead_Success(t *testing.T) {
	// Arrange
	mockNotificationRepo := new(mocks.NotificationRepository)
	notificationService := service.NewNotificationService(mockNotificationRepo)
	ctx := context.Background()

	mockNotificationRepo.On("FindByID", ctx, uint(5)).
		Return(&domain.Notification{ID: 5, UserID: 11}, nil).Once()
	mockNotificationRepo.On("MarkRead", ctx, uint(5)).Return(nil).Once()

	// Act & Assert
	require.NoError(t, notificationService.MarkRead(ctx, 11, 5))
	mockNotificationRepo.AssertExpectations(t)
}

func TestNotificationService_MarkRead_WrongOwner(t *testing.T) {
	// Arrange: 通知属于其他用户
	mockNotificationRepo := new(mocks.NotificationRepository)
	notificationService := service.NewNotificationService(mockNotificationRepo)
	ctx := context.Background()

	mockNotificationRepo.On("FindByID", ctx, uint(5)).
		Return(&domain.Notification{ID: 5, UserID: 99}, nil).Once()

	// Act
	err := notificationService.MarkRead(ctx, 11, 5)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))
	mockNotificationRepo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
}

func TestNotificationService_MarkRead_NotFound(t *testing.T) {
	// Arrange
	mockNotificationRepo := new(mocks.NotificationRepository)
	notificationService := service.NewNotificationService(mockNotificationRepo)
	ctx := context.Background()

	mockNotificationRepo.On("FindByID", ctx, uint(5)).
		Return(nil, repository.ErrNotificationNotFound).Once()

	// Act
	err := notificationService.MarkRead(ctx, 11, 5)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNotificationNotFound))
}
