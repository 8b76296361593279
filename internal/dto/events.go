// Package dto 定义了 WebSocket 协议的消息信封和各事件的数据结构。
package dto

import (
	"encoding/json"
	"time"

	"collabcanvas/internal/domain"
)

// 客户端 -> 服务端 的事件类型。
const (
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventCursorMove      = "cursor-move"
	EventDrawingUpdate   = "drawing-update"
	EventRequestLock     = "request-lock"
	EventReleaseLock     = "release-lock"
	EventClearCanvas     = "clear-canvas"
	EventKickParticipant = "kick-participant"
	EventBanParticipant  = "ban-participant"
)

// 服务端 -> 客户端 的事件类型。
const (
	EventRoomState         = "room-state"
	EventRoster            = "roster"
	EventCanvasCleared     = "canvas-cleared"
	EventLockGranted       = "lock-granted"
	EventLockDenied        = "lock-denied"
	EventLockReleased      = "lock-released"
	EventParticipantKicked = "participant-kicked"
	EventParticipantBanned = "participant-banned"
	EventForceLeave        = "force-leave"
	EventError             = "error"
	// cursor-move 和 drawing-update 在广播时复用客户端的事件类型
)

// Envelope 是所有 WebSocket 消息的统一信封：{"type": "...", "data": {...}}。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent 将事件类型和数据结构封装成可直接写入连接的 JSON 字节。
func NewEvent(eventType string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = bytes
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// --- 客户端事件数据 ---

// JoinRoomPayload 的 Room 字段可以是数字形式的房间 ID，也可以是 6 位邀请码。
type JoinRoomPayload struct {
	Room string `json:"room"`
}

type CursorMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ElementPayload 是绘图元素在协议层的表示。Props 是客户端定义的
// 几何/样式数据，服务端不解析其内容。
type ElementPayload struct {
	ID      string          `json:"id"`
	LayerID string          `json:"layerId,omitempty"`
	Kind    string          `json:"kind"`
	Props   json.RawMessage `json:"props,omitempty"`
}

// DrawingUpdatePayload 的 Persist 标记该更新是否进入持久化写缓冲。
// Persist 为 false 的更新 (例如拖动过程中的中间帧) 只做广播。
type DrawingUpdatePayload struct {
	Element ElementPayload `json:"element"`
	Persist bool           `json:"persist"`
}

type LockPayload struct {
	ObjectID string `json:"objectId"`
}

type ModerationPayload struct {
	UserID uint `json:"userId"`
}

// --- 服务端事件数据 ---

// RoomStatePayload 是加入房间后下发的完整状态快照。
type RoomStatePayload struct {
	RoomID   uint               `json:"roomId"`
	Name     string             `json:"name"`
	Elements []ElementPayload   `json:"elements"` // 已持久化的画布内容 (按元素压缩后)
	Pending  []ElementPayload   `json:"pending"`  // 写缓冲中尚未落库的元素
	Locks    []LockStatePayload `json:"locks"`
	Roster   []RosterEntry      `json:"roster"`
}

type LockStatePayload struct {
	ObjectID   string    `json:"objectId"`
	HolderID   uint      `json:"holderId"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

type RosterEntry struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type RosterPayload struct {
	Participants []RosterEntry `json:"participants"`
}

type CursorBroadcastPayload struct {
	UserID uint    `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type DrawingBroadcastPayload struct {
	UserID  uint           `json:"userId"`
	Element ElementPayload `json:"element"`
}

type CanvasClearedPayload struct {
	UserID uint `json:"userId"` // 触发清空的用户
}

type LockGrantedPayload struct {
	ObjectID string `json:"objectId"`
	UserID   uint   `json:"userId"`
}

type LockDeniedPayload struct {
	ObjectID string `json:"objectId"`
	HolderID uint   `json:"holderId"`
}

type LockReleasedPayload struct {
	ObjectID string `json:"objectId"`
	UserID   uint   `json:"userId"`
}

// ModerationNoticePayload 用于 participant-kicked / participant-banned 广播。
type ModerationNoticePayload struct {
	UserID uint `json:"userId"`
}

type ForceLeavePayload struct {
	RoomID uint   `json:"roomId"`
	Reason string `json:"reason"` // "kicked" 或 "banned"
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- 与 domain 模型的转换 ---

// ElementFromDomain 将持久化记录转换为协议层表示。
func ElementFromDomain(el domain.Element) ElementPayload {
	return ElementPayload{
		ID:      el.ElementID,
		LayerID: el.LayerID,
		Kind:    el.Kind,
		Props:   json.RawMessage(el.Data),
	}
}

// ElementsFromDomain 批量转换，保持顺序。
func ElementsFromDomain(els []domain.Element) []ElementPayload {
	out := make([]ElementPayload, 0, len(els))
	for _, el := range els {
		out = append(out, ElementFromDomain(el))
	}
	return out
}

// ToDomain 将协议层元素转换为待持久化的记录。
func (p ElementPayload) ToDomain(roomID, userID uint) domain.Element {
	return domain.Element{
		RoomID:    roomID,
		ElementID: p.ID,
		LayerID:   p.LayerID,
		Kind:      p.Kind,
		Data:      string(p.Props),
		CreatedBy: userID,
	}
}
