package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomInactive         = errors.New("room is no longer active")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidJoinCode      = errors.New("invalid or expired join code")
	ErrBanned               = errors.New("user is banned from this room")
	ErrUnauthorized         = errors.New("operation not permitted")
	ErrCannotActOnSelf      = errors.New("cannot perform moderation on yourself")
	ErrInternalServer       = errors.New("internal server error")
)
