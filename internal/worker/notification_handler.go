package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
	"collabcanvas/internal/tasks"
)

// NotificationDeliverHandler 处理踢出/封禁通知的落库任务
type NotificationDeliverHandler struct {
	notificationRepo repository.NotificationRepository
	roomRepo         repository.RoomRepository
}

// NewNotificationDeliverHandler 创建 Handler 实例
func NewNotificationDeliverHandler(notificationRepo repository.NotificationRepository, roomRepo repository.RoomRepository) *NotificationDeliverHandler {
	if notificationRepo == nil {
		panic("NotificationRepository cannot be nil for NotificationDeliverHandler")
	}
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for NotificationDeliverHandler")
	}
	return &NotificationDeliverHandler{
		notificationRepo: notificationRepo,
		roomRepo:         roomRepo,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *NotificationDeliverHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	retryCount, _ := asynq.GetRetryCount(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     retryCount,
	})

	var payload tasks.NotificationDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal notification payload")
		// payload 损坏时重试没有意义
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	// 1. 查询房间名用于拼接通知文案，查询失败降级为房间编号
	roomName := fmt.Sprintf("room #%d", payload.RoomID)
	if room, err := h.roomRepo.FindByID(ctx, payload.RoomID); err == nil {
		roomName = room.Name
	} else if !errors.Is(err, repository.ErrRoomNotFound) {
		logCtx.WithError(err).Warn("Failed to load room for notification message")
	}

	// 2. 落库通知记录
	notification := domain.Notification{
		UserID:  payload.UserID,
		RoomID:  payload.RoomID,
		Kind:    payload.Kind,
		Message: notificationMessage(payload.Kind, roomName),
	}
	if err := h.notificationRepo.Save(ctx, &notification); err != nil {
		logCtx.WithError(err).Error("Failed to save notification")
		return fmt.Errorf("failed to save notification for user %d: %w", payload.UserID, err)
	}

	logCtx.WithFields(logrus.Fields{
		"user_id": payload.UserID,
		"room_id": payload.RoomID,
		"kind":    payload.Kind,
	}).Info("Notification delivered")
	return nil
}

// notificationMessage 根据通知类型生成用户可读文案
func notificationMessage(kind, roomName string) string {
	switch kind {
	case domain.NotificationKicked:
		return fmt.Sprintf("You were removed from %q by a moderator", roomName)
	case domain.NotificationBanned:
		return fmt.Sprintf("You were banned from %q by a moderator", roomName)
	default:
		return fmt.Sprintf("Moderation notice for %q", roomName)
	}
}
