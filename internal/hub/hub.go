// Package hub 实现房间协调器：每个房间一个会话 goroutine 串行处理事件，
// Hub 自身是一个 goroutine，负责会话的创建、绑定和退休。
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/dto"
	"collabcanvas/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

const (
	// 单次阻塞式操作 (加入、踢出等) 的超时
	opTimeout = 5 * time.Second
	// 后台批量写库的超时
	flushTimeout = 15 * time.Second

	hubInboxSize       = 1024
	sessionInboxSize   = 1024
	departureQueueSize = 64

	// 关停时等待单个会话落盘退出的上限
	sessionStopWait = 20 * time.Second
)

type hubMsgKind int

const (
	hubJoin hubMsgKind = iota
	hubLeave
	hubDisconnect
	hubUnbind
	hubRetire
)

type hubMsg struct {
	kind   hubMsgKind
	client *Client
	room   *domain.Room
	sess   *RoomSession
	reply  chan error
}

// Hub 维护房间会话和连接绑定。sessions 和 bindings 只由 Hub 主循环
// 写入 (写入时持有 mu)；其他 goroutine 通过 RLock 读取，
// 主循环自己的读取不需要加锁。
type Hub struct {
	inbox chan hubMsg

	sessions map[uint]*RoomSession
	bindings map[*Client]*RoomSession
	mu       sync.RWMutex

	roomSvc       *service.RoomService
	canvasSvc     *service.CanvasService
	presenceSvc   *service.PresenceService
	moderationSvc *service.ModerationService

	flushInterval time.Duration
	lockTTL       time.Duration

	quit         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(
	roomSvc *service.RoomService,
	canvasSvc *service.CanvasService,
	presenceSvc *service.PresenceService,
	moderationSvc *service.ModerationService,
	flushInterval time.Duration,
	lockTTL time.Duration,
) *Hub {
	// 启动时检查依赖注入是否有效
	if roomSvc == nil {
		panic("RoomService cannot be nil for Hub")
	}
	if canvasSvc == nil {
		panic("CanvasService cannot be nil for Hub")
	}
	if presenceSvc == nil {
		panic("PresenceService cannot be nil for Hub")
	}
	if moderationSvc == nil {
		panic("ModerationService cannot be nil for Hub")
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Hub{
		inbox:         make(chan hubMsg, hubInboxSize),
		sessions:      make(map[uint]*RoomSession),
		bindings:      make(map[*Client]*RoomSession),
		roomSvc:       roomSvc,
		canvasSvc:     canvasSvc,
		presenceSvc:   presenceSvc,
		moderationSvc: moderationSvc,
		flushInterval: flushInterval,
		lockTTL:       lockTTL,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case msg := <-h.inbox:
			h.handle(msg)
		case <-h.quit:
			h.stopSessions()
			close(h.done)
			log.Info("Hub stopped")
			return
		}
	}
}

func (h *Hub) handle(msg hubMsg) {
	switch msg.kind {
	case hubJoin:
		h.handleJoin(msg)
	case hubLeave:
		h.handleLeave(msg.client, false)
	case hubDisconnect:
		h.handleLeave(msg.client, true)
	case hubUnbind:
		h.handleUnbind(msg.client, msg.sess)
	case hubRetire:
		h.handleRetire(msg.sess)
	}
}

// --- 对外 API (任意 goroutine 调用) ---

// Join 把客户端加入 identifier (房间 ID 或加入码) 指向的房间。
// 房间解析的数据库查询在调用方 goroutine 执行，不占用 Hub 主循环；
// 调用方阻塞等待加入结果，同一连接的后续事件因此不会先于加入到达。
func (h *Hub) Join(ctx context.Context, c *Client, identifier string) error {
	room, err := h.roomSvc.ResolveRoom(ctx, identifier)
	if err != nil {
		return err
	}

	reply := make(chan error, 1)
	select {
	case h.inbox <- hubMsg{kind: hubJoin, client: c, room: room, reply: reply}:
	case <-h.quit:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave 把客户端移出其当前房间，连接保持打开。
func (h *Hub) Leave(c *Client) {
	h.post(hubMsg{kind: hubLeave, client: c})
}

// Disconnect 处理连接断开：移出房间并关闭发送通道。
func (h *Hub) Disconnect(c *Client) {
	h.post(hubMsg{kind: hubDisconnect, client: c})
}

// Dispatch 把事件投递到客户端所在的房间会话。
func (h *Hub) Dispatch(c *Client, env dto.Envelope) error {
	h.mu.RLock()
	sess := h.bindings[c]
	h.mu.RUnlock()
	if sess == nil {
		return ErrNotInRoom
	}

	select {
	case sess.inbox <- sessionMsg{kind: msgEvent, client: c, env: env}:
		return nil
	default:
		logrus.WithFields(logrus.Fields{
			"room_id":    sess.room.ID,
			"user_id":    c.userID,
			"event_type": env.Type,
		}).Warn("Room session inbox full, dropping event")
		return ErrSessionBusy
	}
}

// Moderate 从 REST 入口对有活跃会话的房间执行踢出/封禁，
// 保证在线目标被同步驱逐。房间不在线时返回 ErrNoActiveSession，
// 调用方应降级为直接调用服务层。
func (h *Hub) Moderate(ctx context.Context, roomID uint, action string, actorID, targetID uint) error {
	h.mu.RLock()
	sess := h.sessions[roomID]
	h.mu.RUnlock()
	if sess == nil {
		return ErrNoActiveSession
	}

	reply := make(chan error, 1)
	req := &moderationRequest{action: action, actorID: actorID, targetID: targetID, reply: reply}
	select {
	case sess.inbox <- sessionMsg{kind: msgModerate, mod: req}:
	case <-sess.quit:
		return ErrNoActiveSession
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 停止主循环并关停全部房间会话，阻塞到缓冲落盘完成。
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.quit)
	})
	<-h.done
}

// post 把消息投入主循环；Hub 已关停时静默丢弃。
func (h *Hub) post(msg hubMsg) {
	select {
	case h.inbox <- msg:
	case <-h.quit:
	}
}

// --- 会话回调 (会话 goroutine 调用) ---

// requestUnbind 由会话在移除客户端后调用，解除 Hub 侧的绑定。
func (h *Hub) requestUnbind(c *Client, sess *RoomSession) {
	h.post(hubMsg{kind: hubUnbind, client: c, sess: sess})
}

// requestRetire 由空会话调用，申请退出。Hub 复核后才真正关停，
// 申请和处理之间加入的新客户端会否决这次退休。
func (h *Hub) requestRetire(sess *RoomSession) {
	h.post(hubMsg{kind: hubRetire, sess: sess})
}

// --- 主循环内部处理 ---

func (h *Hub) handleJoin(msg hubMsg) {
	c := msg.client
	room := msg.room

	// 已绑定其他房间时先隐式离开
	if old := h.bindings[c]; old != nil {
		h.mu.Lock()
		delete(h.bindings, c)
		h.mu.Unlock()
		h.notifyDeparture(old, c)
	}

	sess := h.sessions[room.ID]
	if sess == nil {
		sess = newRoomSession(room, h)
		h.mu.Lock()
		h.sessions[room.ID] = sess
		h.mu.Unlock()
		go sess.run()
		logrus.WithFields(logrus.Fields{"room_id": room.ID, "room_name": room.Name}).Info("Room session created")
	}

	// 投递加入请求；会话忙时直接拒绝，不建立绑定
	select {
	case sess.inbox <- sessionMsg{kind: msgJoin, join: &joinRequest{client: c, reply: msg.reply}}:
		// 乐观建立绑定，加入失败时会话会回发 unbind
		h.mu.Lock()
		h.bindings[c] = sess
		h.mu.Unlock()
	default:
		msg.reply <- ErrSessionBusy
	}
}

func (h *Hub) handleLeave(c *Client, disconnecting bool) {
	if sess := h.bindings[c]; sess != nil {
		h.mu.Lock()
		delete(h.bindings, c)
		h.mu.Unlock()
		h.notifyDeparture(sess, c)
	}
	if disconnecting {
		c.closeSend()
	}
}

func (h *Hub) handleUnbind(c *Client, sess *RoomSession) {
	// 客户端可能已绑定到新会话，只解除对指定会话的绑定
	if h.bindings[c] != sess {
		return
	}
	h.mu.Lock()
	delete(h.bindings, c)
	h.mu.Unlock()
}

func (h *Hub) handleRetire(sess *RoomSession) {
	if h.sessions[sess.room.ID] != sess {
		return
	}
	// 申请退休后又有客户端加入的，取消这次退休
	for _, bound := range h.bindings {
		if bound == sess {
			return
		}
	}
	h.mu.Lock()
	delete(h.sessions, sess.room.ID)
	h.mu.Unlock()
	close(sess.quit)
	logrus.WithField("room_id", sess.room.ID).Info("Room session retired")
}

// notifyDeparture 把离开通知投递给会话。队列满时转入后台 goroutine
// 阻塞投递，避免卡住 Hub 主循环。
func (h *Hub) notifyDeparture(sess *RoomSession, c *Client) {
	select {
	case sess.departures <- c:
	default:
		go func() {
			select {
			case sess.departures <- c:
			case <-sess.done:
			}
		}()
	}
}

// stopSessions 关停全部会话并等待它们落盘退出。只在主循环退出路径调用。
func (h *Hub) stopSessions() {
	log := logrus.WithField("component", "hub")
	if len(h.sessions) > 0 {
		log.WithField("count", len(h.sessions)).Info("Stopping room sessions...")
	}

	for _, sess := range h.sessions {
		close(sess.quit)
	}
	for roomID, sess := range h.sessions {
		select {
		case <-sess.done:
		case <-time.After(sessionStopWait):
			log.WithField("room_id", roomID).Warn("Timed out waiting for room session to stop")
		}
	}

	h.mu.Lock()
	h.sessions = make(map[uint]*RoomSession)
	h.bindings = make(map[*Client]*RoomSession)
	h.mu.Unlock()
}
