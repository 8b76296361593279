package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
)

// NotificationService 负责用户通知的查询与已读标记。
type NotificationService struct {
	notificationRepo repository.NotificationRepository
}

// NewNotificationService 创建 NotificationService 实例。
func NewNotificationService(notificationRepo repository.NotificationRepository) *NotificationService {
	if notificationRepo == nil {
		panic("NotificationRepository cannot be nil for NotificationService")
	}
	return &NotificationService{notificationRepo: notificationRepo}
}

// ListForUser 返回用户的通知，按创建时间倒序。
func (s *NotificationService) ListForUser(ctx context.Context, userID uint, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	ns, err := s.notificationRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list notifications")
		return nil, ErrInternalServer
	}
	return ns, nil
}

// MarkRead 将通知标记为已读，只允许通知的属主操作。
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "notification_id": notificationID})

	n, err := s.notificationRepo.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return ErrNotificationNotFound
		}
		logCtx.WithError(err).Error("MarkRead: Repository error")
		return ErrInternalServer
	}
	if n.UserID != userID {
		logCtx.Warn("MarkRead: Notification belongs to another user")
		return ErrUnauthorized
	}

	if err := s.notificationRepo.MarkRead(ctx, notificationID); err != nil {
		logCtx.WithError(err).Error("MarkRead: Failed to update notification")
		return ErrInternalServer
	}
	return nil
}
