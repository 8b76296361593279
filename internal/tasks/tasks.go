// Package tasks 定义了后台任务的类型常量和 payload 结构。
package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeNotificationDeliver = "notification:deliver" // 踢出/封禁通知投递
	TypeRoomSweep           = "room:sweep"           // 闲置房间清扫
)

// NotificationDeliverPayload 定义了通知投递任务的数据结构
type NotificationDeliverPayload struct {
	UserID uint   `json:"user_id"`
	RoomID uint   `json:"room_id"`
	Kind   string `json:"kind"` // domain.NotificationKicked / NotificationBanned
}

// NewNotificationDeliverTask 创建一个新的通知投递任务
func NewNotificationDeliverTask(userID, roomID uint, kind string) (*asynq.Task, error) {
	payload := NotificationDeliverPayload{
		UserID: userID,
		RoomID: roomID,
		Kind:   kind,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationDeliver, payloadBytes), nil
}

// NewRoomSweepTask 创建一个新的闲置房间清扫任务。
// 该任务无 payload，由 scheduler 周期性入队。
func NewRoomSweepTask() *asynq.Task {
	return asynq.NewTask(TypeRoomSweep, nil)
}
