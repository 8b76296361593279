package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"collabcanvas/internal/dto"
)

// 光标事件的限流参数：每秒 30 条，允许突发 10 条。
// 超出的更新直接丢弃，光标位置本身就是易逝数据。
const (
	cursorEventsPerSecond = 30
	cursorBurst           = 10
)

// Conn 抽象了 Client 依赖的 WebSocket 连接行为，*websocket.Conn 天然满足。
// 测试中可以用桩实现替代真实连接。
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 每个连接有独立的 ID，同一用户可以有多个并存的连接。
type Client struct {
	id     string
	hub    *Hub
	conn   Conn
	userID uint
	send   chan []byte // 用于向此客户端发送消息的缓冲通道

	cursorLimiter *rate.Limiter
	closeOnce     sync.Once
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn Conn, userID uint) *Client {
	return &Client{
		id:            uuid.NewString(),
		hub:           hub,
		conn:          conn,
		userID:        userID,
		send:          make(chan []byte, 256),
		cursorLimiter: rate.NewLimiter(rate.Limit(cursorEventsPerSecond), cursorBurst),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) ID() string   { return c.id }
func (c *Client) UserID() uint { return c.userID }

// Send 非阻塞地把消息放入发送队列。队列满说明客户端消费过慢，消息被丢弃。
func (c *Client) Send(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
			Warn("Client send channel full, dropping message")
		return false
	}
}

// sendError 向该客户端下发一个错误事件。
func (c *Client) sendError(code, message string) {
	c.Send(errorEvent(code, message))
}

// closeSend 关闭发送通道，触发 WritePump 退出。只由 Hub 在断开时调用。
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump 将消息从 WebSocket 连接泵送到所属的房间会话。
// 它在自己的 goroutine 中运行；每个连接只有这一个读取方，
// 因此同一连接的事件天然保持发送顺序。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).Info("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) // 收到 Pong 后重置读取超时
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break // 退出循环，触发 defer 中的断开处理
		}
		if messageType != websocket.TextMessage {
			logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
				Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.handleMessage(message)
	}
}

// handleMessage 解析一条原始消息并路由到 Hub。
func (c *Client) handleMessage(raw []byte) {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID})

	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logCtx.WithError(err).Debug("Dropping malformed message")
		c.sendError(codeBadRequest, "malformed message")
		return
	}

	switch env.Type {
	case dto.EventJoinRoom:
		var payload dto.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Room == "" {
			c.sendError(codeBadRequest, "invalid join-room payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := c.hub.Join(ctx, c, payload.Room); err != nil {
			logCtx.WithError(err).WithField("room", payload.Room).Warn("Join room failed")
			c.sendError(codeFor(err), err.Error())
		}

	case dto.EventLeaveRoom:
		c.hub.Leave(c)

	case dto.EventCursorMove:
		// 限流在连接侧执行，被丢弃的更新不进入会话队列
		if !c.cursorLimiter.Allow() {
			logCtx.Debug("Cursor update dropped by rate limiter")
			return
		}
		if err := c.hub.Dispatch(c, env); err != nil {
			c.sendError(codeFor(err), err.Error())
		}

	default:
		if err := c.hub.Dispatch(c, env); err != nil {
			c.sendError(codeFor(err), err.Error())
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	// 创建一个定时器，用于定期发送 Ping 消息
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).Info("writePump exited")
		// 不需要在这里触发断开，readPump 退出会处理
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（断开时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
					WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			// 定时器触发，发送 Ping 消息以保持连接活跃并检测断开
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
					WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
