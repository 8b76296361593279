package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collabcanvas/internal/dto"
	"collabcanvas/internal/hub"
	"collabcanvas/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService       *service.RoomService
	presenceService   *service.PresenceService
	moderationService *service.ModerationService
	hub               *hub.Hub
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(
	roomService *service.RoomService,
	presenceService *service.PresenceService,
	moderationService *service.ModerationService,
	h *hub.Hub,
) *RoomHandler {
	return &RoomHandler{
		roomService:       roomService,
		presenceService:   presenceService,
		moderationService: moderationService,
		hub:               h,
	}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name    string `json:"name" binding:"omitempty,max=100"`
	Private bool   `json:"private"`
}

// CreateRoomResponse 定义创建房间成功的响应结构体
type CreateRoomResponse struct {
	Message  string `json:"message"`
	RoomID   uint   `json:"room_id"`
	Name     string `json:"name"`
	JoinCode string `json:"join_code"`
	Private  bool   `json:"private"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	// 1. 获取认证用户 ID
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	// 2. 绑定请求体 (可为空对象)
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}
	if req.Name == "" {
		req.Name = "Untitled canvas"
	}

	// 3. 调用 Service 层创建房间
	newRoom, err := h.roomService.CreateRoom(c.Request.Context(), userID, req.Name, req.Private)
	if err != nil {
		logCtx.WithError(err).Error("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.WithFields(logrus.Fields{"room_id": newRoom.ID, "join_code": newRoom.JoinCode}).
		Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusOK, CreateRoomResponse{
		Message:  "Room created successfully",
		RoomID:   newRoom.ID,
		Name:     newRoom.Name,
		JoinCode: newRoom.JoinCode,
		Private:  newRoom.Private,
	})
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	JoinCode string `json:"join_code" binding:"required,len=6"`
}

// JoinRoomResponse 定义加入房间成功的响应结构体
type JoinRoomResponse struct {
	Message string `json:"message"`
	RoomID  uint   `json:"room_id"`
	Name    string `json:"name"`
}

// JoinRoom 通过加入码登记房间成员资格。
// 实时会话的加入走 WebSocket 协议，这里只建立成员关系。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	// 1. 获取认证用户 ID
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	// 2. 绑定请求体中的加入码
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: join_code is required")
		return
	}
	logCtx = logCtx.WithField("join_code", req.JoinCode)

	// 3. 解析房间并登记成员 (封禁用户在这里被拒)
	room, err := h.roomService.FindRoomByJoinCode(c.Request.Context(), req.JoinCode)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Failed to resolve room")
		HandleServiceError(c, err)
		return
	}
	if _, err := h.presenceService.EnsureJoined(c.Request.Context(), room.ID, userID); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Membership registration failed")
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.WithField("room_id", room.ID).Info("Handler.JoinRoom: User joined room successfully")
	SuccessResponse(c, http.StatusOK, JoinRoomResponse{
		Message: "Joined room successfully",
		RoomID:  room.ID,
		Name:    room.Name,
	})
}

// RoomSummary 是公开房间列表中的一项，不暴露加入码。
type RoomSummary struct {
	RoomID     uint      `json:"room_id"`
	Name       string    `json:"name"`
	CreatorID  uint      `json:"creator_id"`
	LastActive time.Time `json:"last_active"`
}

// ListRooms 返回最近活跃的公开房间列表
func (h *RoomHandler) ListRooms(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	rooms, err := h.roomService.ListPublicRooms(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Handler.ListRooms: Failed to list rooms")
		HandleServiceError(c, err)
		return
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, RoomSummary{
			RoomID:     room.ID,
			Name:       room.Name,
			CreatorID:  room.CreatorID,
			LastActive: room.LastActive,
		})
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": summaries})
}

// ModerationRequest 定义踢出/封禁请求的结构体
type ModerationRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// Kick 处理踢出成员的请求
func (h *RoomHandler) Kick(c *gin.Context) {
	h.moderate(c, dto.EventKickParticipant)
}

// Ban 处理封禁成员的请求
func (h *RoomHandler) Ban(c *gin.Context) {
	h.moderate(c, dto.EventBanParticipant)
}

// moderate 优先经由 Hub 执行，保证在线目标被同步驱逐；
// 房间没有活跃会话时降级为直接调用服务层。
func (h *RoomHandler) moderate(c *gin.Context, action string) {
	// 1. 获取认证用户 ID
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	// 2. 解析房间 ID 和目标用户
	roomID64, err := strconv.ParseUint(c.Param("roomId"), 10, 32)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid room ID format")
		return
	}
	roomID := uint(roomID64)

	var req ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: user_id is required")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"actor_id":  actorID,
		"target_id": req.UserID,
		"action":    action,
	})

	// 3. 执行
	err = h.hub.Moderate(c.Request.Context(), roomID, action, actorID, req.UserID)
	if errors.Is(err, hub.ErrNoActiveSession) {
		switch action {
		case dto.EventKickParticipant:
			err = h.moderationService.Kick(c.Request.Context(), roomID, actorID, req.UserID)
		case dto.EventBanParticipant:
			err = h.moderationService.Ban(c.Request.Context(), roomID, actorID, req.UserID)
		}
	}
	if err != nil {
		logCtx.WithError(err).Warn("Handler.moderate: Moderation failed")
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.Info("Handler.moderate: Moderation applied")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Moderation applied"})
}
