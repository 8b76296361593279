package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collabcanvas/internal/service"
)

// NotificationHandler 封装了用户通知相关的 HTTP 处理逻辑
type NotificationHandler struct {
	notificationService *service.NotificationService
}

// NewNotificationHandler 创建 NotificationHandler 实例
func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// NotificationView 是通知在响应中的表示
type NotificationView struct {
	ID        uint      `json:"id"`
	RoomID    uint      `json:"room_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// List 返回当前用户的通知
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	ns, err := h.notificationService.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Handler.Notifications: Failed to list")
		HandleServiceError(c, err)
		return
	}

	views := make([]NotificationView, 0, len(ns))
	for _, n := range ns {
		views = append(views, NotificationView{
			ID:        n.ID,
			RoomID:    n.RoomID,
			Kind:      n.Kind,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	SuccessResponse(c, http.StatusOK, gin.H{"notifications": views})
}

// MarkRead 将一条通知标记为已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid notification ID format")
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), userID, uint(id64)); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":         userID,
			"notification_id": id64,
		}).Warn("Handler.Notifications: Failed to mark read")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Notification marked as read"})
}
