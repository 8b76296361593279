package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collabcanvas/internal/service"
)

// RoomSweepHandler 处理周期性的闲置房间下线任务
type RoomSweepHandler struct {
	roomService *service.RoomService
	idleAfter   time.Duration
}

// NewRoomSweepHandler 创建 Handler 实例
func NewRoomSweepHandler(roomService *service.RoomService, idleAfter time.Duration) *RoomSweepHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomSweepHandler")
	}
	if idleAfter <= 0 {
		idleAfter = 24 * time.Hour
	}
	return &RoomSweepHandler{
		roomService: roomService,
		idleAfter:   idleAfter,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())
	logCtx.Info("Processing room sweep task...")

	count, err := h.roomService.DeactivateIdleRooms(ctx, h.idleAfter)
	if err != nil {
		logCtx.WithError(err).Error("Room sweep failed")
		return fmt.Errorf("failed to deactivate idle rooms: %w", err)
	}

	if count > 0 {
		logCtx.WithField("deactivated", count).Info("Idle rooms deactivated")
	} else {
		logCtx.Debug("Room sweep complete, no idle rooms found")
	}
	return nil
}
