package hub

import (
	"errors"

	"collabcanvas/internal/dto"
	"collabcanvas/internal/service"
)

var (
	// ErrNotInRoom 表示客户端尚未加入任何房间
	ErrNotInRoom = errors.New("hub: client has not joined a room")
	// ErrSessionBusy 表示房间会话的收件队列已满
	ErrSessionBusy = errors.New("hub: room session is busy")
	// ErrNoActiveSession 表示房间当前没有活跃会话
	ErrNoActiveSession = errors.New("hub: no active session for room")
	// ErrShuttingDown 表示 Hub 正在关停
	ErrShuttingDown = errors.New("hub: shutting down")
)

// 下发给客户端的错误码
const (
	codeNotFound           = "not_found"
	codeUnauthorized       = "unauthorized"
	codeBanned             = "banned"
	codeConflict           = "conflict"
	codePersistenceFailure = "persistence_failure"
	codeBadRequest         = "bad_request"
	codeInternal           = "internal"
)

// codeFor 把服务层/Hub 层错误映射为协议错误码。
func codeFor(err error) string {
	switch {
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrRoomInactive),
		errors.Is(err, service.ErrParticipantNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrNotificationNotFound),
		errors.Is(err, service.ErrInvalidJoinCode),
		errors.Is(err, ErrNotInRoom),
		errors.Is(err, ErrNoActiveSession):
		return codeNotFound
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrCannotActOnSelf):
		return codeUnauthorized
	case errors.Is(err, service.ErrBanned):
		return codeBanned
	case errors.Is(err, ErrSessionBusy):
		return codeConflict
	default:
		return codeInternal
	}
}

// errorEvent 构造一个错误事件的 JSON 字节。
func errorEvent(code, message string) []byte {
	msg, _ := dto.NewEvent(dto.EventError, dto.ErrorPayload{Code: code, Message: message})
	return msg
}
