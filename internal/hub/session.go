package hub

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/dto"
	"collabcanvas/internal/service"
)

type msgKind int

const (
	msgEvent msgKind = iota
	msgJoin
	msgFlushDone
	msgModerate
)

// joinRequest 携带等待加入结果的回复通道 (缓冲为 1，回复不会阻塞会话)。
type joinRequest struct {
	client *Client
	reply  chan error
}

// flushResult 是后台写库 goroutine 回投给会话的完成通知。
type flushResult struct {
	batch []domain.Element
	epoch uint64
	err   error
}

// moderationRequest 统一承载 WebSocket 和 REST 两个入口的踢出/封禁请求。
// WS 入口设置 requester (错误回发给请求连接)；REST 入口设置 reply。
type moderationRequest struct {
	action    string
	actorID   uint
	targetID  uint
	requester *Client
	reply     chan error
}

// sessionMsg 是房间会话收件箱中的消息，按 kind 区分有效字段。
type sessionMsg struct {
	kind   msgKind
	client *Client
	env    dto.Envelope
	join   *joinRequest
	flush  *flushResult
	mod    *moderationRequest
}

// RoomSession 是单个房间的协调器。一个 goroutine 串行处理房间的
// 全部事件，锁表、写缓冲和客户端集合因此不需要互斥量；
// 数据库写出是仅有的出逃 IO，由后台 goroutine 执行并把结果投回收件箱。
type RoomSession struct {
	room *domain.Room
	hub  *Hub

	clients map[*Client]bool
	locks   *lockTable
	buffer  *writeBuffer

	inbox      chan sessionMsg
	departures chan *Client
	quit       chan struct{}
	done       chan struct{}

	canvas     *service.CanvasService
	presence   *service.PresenceService
	moderation *service.ModerationService

	flushInterval time.Duration
	flushing      bool

	log *logrus.Entry
}

func newRoomSession(room *domain.Room, h *Hub) *RoomSession {
	return &RoomSession{
		room:          room,
		hub:           h,
		clients:       make(map[*Client]bool),
		locks:         newLockTable(h.lockTTL),
		buffer:        newWriteBuffer(),
		inbox:         make(chan sessionMsg, sessionInboxSize),
		departures:    make(chan *Client, departureQueueSize),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		canvas:        h.canvasSvc,
		presence:      h.presenceSvc,
		moderation:    h.moderationSvc,
		flushInterval: h.flushInterval,
		log:           logrus.WithFields(logrus.Fields{"component": "room_session", "room_id": room.ID}),
	}
}

// run 是会话的主循环，在独立 goroutine 中执行。
func (s *RoomSession) run() {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	s.log.Info("Room session started")

	for {
		select {
		case msg := <-s.inbox:
			s.dispatch(msg)
		case c := <-s.departures:
			s.handleLeave(c)
		case <-ticker.C:
			s.flushAsync()
		case <-s.quit:
			s.teardown()
			close(s.done)
			s.log.Info("Room session stopped")
			return
		}
	}
}

func (s *RoomSession) dispatch(msg sessionMsg) {
	switch msg.kind {
	case msgJoin:
		s.handleJoin(msg.join)
	case msgEvent:
		s.handleEvent(msg.client, msg.env)
	case msgFlushDone:
		s.handleFlushDone(msg.flush)
	case msgModerate:
		s.handleModeration(msg.mod)
	}
}

// --- 加入 / 离开 ---

// handleJoin 完成成员登记、画布加载和状态快照下发。
// 任何一步失败都会回复错误并解除 Hub 侧的预绑定。
func (s *RoomSession) handleJoin(req *joinRequest) {
	c := req.client
	logCtx := s.log.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID})
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// 1. 成员资格检查，封禁在这里被拦截
	if _, err := s.presence.EnsureJoined(ctx, s.room.ID, c.userID); err != nil {
		logCtx.WithError(err).Warn("Join rejected")
		req.reply <- err
		s.hub.requestUnbind(c, s)
		s.maybeRetire()
		return
	}

	// 2. 加载持久化画布
	persisted, err := s.canvas.LoadCanvas(ctx, s.room.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load canvas for joining client")
		req.reply <- err
		s.hub.requestUnbind(c, s)
		s.maybeRetire()
		return
	}

	s.clients[c] = true

	// 3. 下发完整状态快照：持久化内容 + 待写缓冲 + 活跃锁 + 在线名单
	state := s.composeState(ctx, persisted)
	if msg, err := dto.NewEvent(dto.EventRoomState, state); err == nil {
		c.Send(msg)
	} else {
		logCtx.WithError(err).Error("Failed to marshal room state")
	}
	req.reply <- nil

	// 4. 向所有人广播更新后的名单
	s.broadcastRoster(ctx)
	logCtx.Info("Client joined room session")
}

// handleLeave 把客户端移出会话并释放其持有的锁。
// 重复投递 (显式 leave 之后紧跟断开) 是无害的。
func (s *RoomSession) handleLeave(c *Client) {
	if !s.clients[c] {
		return
	}
	delete(s.clients, c)
	s.releaseLocksFor(c)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.presence.Touch(ctx, s.room.ID, c.userID); err != nil {
		s.log.WithError(err).WithField("user_id", c.userID).Warn("Failed to touch last_seen on leave")
	}
	if len(s.clients) > 0 {
		s.broadcastRoster(ctx)
	}

	s.log.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).Info("Client left room session")
	s.maybeRetire()
}

// releaseLocksFor 释放连接持有的全部锁并逐把广播释放事件。
func (s *RoomSession) releaseLocksFor(c *Client) {
	for _, objectID := range s.locks.ReleaseConn(c.id, time.Now()) {
		msg, err := dto.NewEvent(dto.EventLockReleased, dto.LockReleasedPayload{
			ObjectID: objectID,
			UserID:   c.userID,
		})
		if err != nil {
			continue
		}
		s.broadcast(msg, nil)
	}
}

// --- 事件处理 ---

func (s *RoomSession) handleEvent(c *Client, env dto.Envelope) {
	if !s.clients[c] {
		// 客户端已被移出会话，在途消息直接丢弃
		s.log.WithFields(logrus.Fields{"conn_id": c.id, "event_type": env.Type}).
			Debug("Dropping event from detached client")
		return
	}

	switch env.Type {
	case dto.EventCursorMove:
		s.handleCursorMove(c, env.Data)
	case dto.EventDrawingUpdate:
		s.handleDrawingUpdate(c, env.Data)
	case dto.EventRequestLock:
		s.handleRequestLock(c, env.Data)
	case dto.EventReleaseLock:
		s.handleReleaseLock(c, env.Data)
	case dto.EventClearCanvas:
		s.handleClearCanvas(c)
	case dto.EventKickParticipant, dto.EventBanParticipant:
		var payload dto.ModerationPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.UserID == 0 {
			c.sendError(codeBadRequest, "invalid moderation payload")
			return
		}
		s.handleModeration(&moderationRequest{
			action:    env.Type,
			actorID:   c.userID,
			targetID:  payload.UserID,
			requester: c,
		})
	default:
		s.log.WithField("event_type", env.Type).Warn("Unknown event type")
		c.sendError(codeBadRequest, "unknown event type: "+env.Type)
	}
}

func (s *RoomSession) handleCursorMove(c *Client, data json.RawMessage) {
	var payload dto.CursorMovePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(codeBadRequest, "invalid cursor-move payload")
		return
	}
	msg, err := dto.NewEvent(dto.EventCursorMove, dto.CursorBroadcastPayload{
		UserID: c.userID,
		X:      payload.X,
		Y:      payload.Y,
	})
	if err != nil {
		return
	}
	s.broadcast(msg, c)
}

// handleDrawingUpdate 先广播再决定是否持久化。锁是协作约定而非强制，
// 服务端不校验绘制者是否持有元素锁。
func (s *RoomSession) handleDrawingUpdate(c *Client, data json.RawMessage) {
	var payload dto.DrawingUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Element.ID == "" {
		c.sendError(codeBadRequest, "invalid drawing-update payload")
		return
	}

	msg, err := dto.NewEvent(dto.EventDrawingUpdate, dto.DrawingBroadcastPayload{
		UserID:  c.userID,
		Element: payload.Element,
	})
	if err != nil {
		s.log.WithError(err).Error("Failed to marshal drawing broadcast")
		return
	}
	s.broadcast(msg, c)

	if payload.Persist {
		s.buffer.Put(payload.Element.ToDomain(s.room.ID, c.userID))
	}
}

func (s *RoomSession) handleRequestLock(c *Client, data json.RawMessage) {
	var payload dto.LockPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ObjectID == "" {
		c.sendError(codeBadRequest, "invalid request-lock payload")
		return
	}

	granted, lock := s.locks.Acquire(payload.ObjectID, c.userID, c.id, time.Now())
	if !granted {
		// 拒绝只通知请求者
		msg, err := dto.NewEvent(dto.EventLockDenied, dto.LockDeniedPayload{
			ObjectID: payload.ObjectID,
			HolderID: lock.holderID,
		})
		if err == nil {
			c.Send(msg)
		}
		return
	}
	// 授予广播给所有人，包括持有者本人
	msg, err := dto.NewEvent(dto.EventLockGranted, dto.LockGrantedPayload{
		ObjectID: payload.ObjectID,
		UserID:   c.userID,
	})
	if err == nil {
		s.broadcast(msg, nil)
	}
}

func (s *RoomSession) handleReleaseLock(c *Client, data json.RawMessage) {
	var payload dto.LockPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ObjectID == "" {
		c.sendError(codeBadRequest, "invalid release-lock payload")
		return
	}

	switch s.locks.Release(payload.ObjectID, c.userID, time.Now()) {
	case lockReleased:
		msg, err := dto.NewEvent(dto.EventLockReleased, dto.LockReleasedPayload{
			ObjectID: payload.ObjectID,
			UserID:   c.userID,
		})
		if err == nil {
			s.broadcast(msg, nil)
		}
	case lockNotHolder:
		c.sendError(codeUnauthorized, "lock held by another user")
	case lockNotHeld:
		s.log.WithField("object_id", payload.ObjectID).Debug("Release for unheld lock ignored")
	}
}

// handleClearCanvas 清空持久化画布，成功后作废写缓冲并重置锁表。
// 纪元推进保证清空前排出的在途批次不会再合并回来。
func (s *RoomSession) handleClearCanvas(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.canvas.ClearCanvas(ctx, s.room.ID); err != nil {
		s.log.WithError(err).WithField("user_id", c.userID).Error("Clear canvas failed")
		c.sendError(codePersistenceFailure, "failed to clear canvas")
		return
	}

	s.buffer.Clear()
	s.locks.Reset()

	msg, err := dto.NewEvent(dto.EventCanvasCleared, dto.CanvasClearedPayload{UserID: c.userID})
	if err == nil {
		s.broadcast(msg, nil)
	}
	s.log.WithField("user_id", c.userID).Info("Canvas cleared by client")
}

// --- 踢出 / 封禁 ---

// handleModeration 执行权限校验和持久化，成功后广播名单变更并驱逐目标连接。
func (s *RoomSession) handleModeration(req *moderationRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var err error
	switch req.action {
	case dto.EventKickParticipant:
		err = s.moderation.Kick(ctx, s.room.ID, req.actorID, req.targetID)
	case dto.EventBanParticipant:
		err = s.moderation.Ban(ctx, s.room.ID, req.actorID, req.targetID)
	default:
		err = service.ErrInternalServer
	}
	if err != nil {
		s.replyModeration(req, err)
		return
	}

	eventType, reason := dto.EventParticipantKicked, "kicked"
	if req.action == dto.EventBanParticipant {
		eventType, reason = dto.EventParticipantBanned, "banned"
	}

	// 先广播，让目标连接也能收到变更通知，再驱逐
	if msg, marshalErr := dto.NewEvent(eventType, dto.ModerationNoticePayload{UserID: req.targetID}); marshalErr == nil {
		s.broadcast(msg, nil)
	}
	s.expelUser(ctx, req.targetID, reason)
	s.replyModeration(req, nil)

	s.log.WithFields(logrus.Fields{
		"actor_id":  req.actorID,
		"target_id": req.targetID,
		"action":    req.action,
	}).Info("Moderation applied")
}

func (s *RoomSession) replyModeration(req *moderationRequest, err error) {
	if req.reply != nil {
		req.reply <- err
		return
	}
	if err != nil && req.requester != nil {
		req.requester.sendError(codeFor(err), err.Error())
	}
}

// expelUser 把目标用户的所有连接移出会话：发送 force-leave、释放锁、
// 解除 Hub 绑定。连接本身保留，客户端可以去加入其他房间。
func (s *RoomSession) expelUser(ctx context.Context, targetID uint, reason string) {
	removed := false
	for c := range s.clients {
		if c.userID != targetID {
			continue
		}
		if msg, err := dto.NewEvent(dto.EventForceLeave, dto.ForceLeavePayload{
			RoomID: s.room.ID,
			Reason: reason,
		}); err == nil {
			c.Send(msg)
		}
		delete(s.clients, c)
		s.releaseLocksFor(c)
		s.hub.requestUnbind(c, s)
		removed = true
	}
	if removed {
		s.broadcastRoster(ctx)
		s.maybeRetire()
	}
}

// --- 写缓冲刷盘 ---

// flushAsync 把缓冲快照交给后台 goroutine 写库，结果经收件箱投回。
// 同一时刻最多一个在途写出，保证批次到达数据库的顺序。
func (s *RoomSession) flushAsync() {
	if s.flushing || s.buffer.Len() == 0 {
		return
	}
	batch, epoch := s.buffer.Drain()
	s.flushing = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		err := s.canvas.AppendBatch(ctx, s.room.ID, batch)
		s.inbox <- sessionMsg{kind: msgFlushDone, flush: &flushResult{batch: batch, epoch: epoch, err: err}}
	}()
}

// handleFlushDone 处理写出结果。失败批次按至少一次语义合并回缓冲，
// 纪元落后 (期间画布被清空) 的批次直接作废。
func (s *RoomSession) handleFlushDone(res *flushResult) {
	s.flushing = false
	if res.err == nil {
		return
	}
	if !s.buffer.Requeue(res.batch, res.epoch) {
		s.log.WithField("count", len(res.batch)).Info("Discarding failed flush batch from before canvas clear")
		return
	}
	s.log.WithError(res.err).WithField("count", len(res.batch)).Warn("Flush failed, batch requeued for retry")
}

// teardown 在会话退出前等待在途写出完成，并同步写出剩余缓冲。
func (s *RoomSession) teardown() {
	if s.flushing {
		deadline := time.After(flushTimeout + time.Second)
	waitFlush:
		for {
			select {
			case msg := <-s.inbox:
				if msg.kind == msgFlushDone {
					s.handleFlushDone(msg.flush)
					break waitFlush
				}
				// 关停期间的其他在途消息直接丢弃
			case <-deadline:
				s.log.Warn("Timed out waiting for in-flight flush during teardown")
				break waitFlush
			}
		}
	}

	if s.buffer.Len() == 0 {
		return
	}
	batch, _ := s.buffer.Drain()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.canvas.AppendBatch(ctx, s.room.ID, batch); err != nil {
		s.log.WithError(err).WithField("count", len(batch)).Error("Failed to persist remaining buffer during teardown")
	}
}

// --- 状态快照与广播 ---

// composeState 组装发给新加入者的房间状态。名单组装失败时降级为空名单，
// 不阻塞加入。
func (s *RoomSession) composeState(ctx context.Context, persisted []domain.Element) dto.RoomStatePayload {
	roster, err := s.presence.Roster(ctx, s.room.ID, s.onlineUserIDs())
	if err != nil {
		s.log.WithError(err).Warn("Failed to assemble roster for room state")
		roster = []service.RosterMember{}
	}

	active := s.locks.Active(time.Now())
	locks := make([]dto.LockStatePayload, 0, len(active))
	for _, l := range active {
		locks = append(locks, dto.LockStatePayload{
			ObjectID:   l.ObjectID,
			HolderID:   l.HolderID,
			AcquiredAt: l.AcquiredAt,
		})
	}

	return dto.RoomStatePayload{
		RoomID:   s.room.ID,
		Name:     s.room.Name,
		Elements: dto.ElementsFromDomain(persisted),
		Pending:  dto.ElementsFromDomain(s.buffer.Pending()),
		Locks:    locks,
		Roster:   rosterEntries(roster),
	}
}

func (s *RoomSession) broadcastRoster(ctx context.Context) {
	roster, err := s.presence.Roster(ctx, s.room.ID, s.onlineUserIDs())
	if err != nil {
		s.log.WithError(err).Warn("Failed to assemble roster for broadcast")
		return
	}
	msg, err := dto.NewEvent(dto.EventRoster, dto.RosterPayload{Participants: rosterEntries(roster)})
	if err != nil {
		return
	}
	s.broadcast(msg, nil)
}

// onlineUserIDs 返回会话内去重后的在线用户 ID，升序排列保证名单稳定。
func (s *RoomSession) onlineUserIDs() []uint {
	seen := make(map[uint]bool, len(s.clients))
	ids := make([]uint, 0, len(s.clients))
	for c := range s.clients {
		if seen[c.userID] {
			continue
		}
		seen[c.userID] = true
		ids = append(ids, c.userID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// broadcast 把消息发给会话内除 exclude 外的所有客户端。
func (s *RoomSession) broadcast(message []byte, exclude *Client) {
	for c := range s.clients {
		if c == exclude {
			continue
		}
		c.Send(message)
	}
}

func (s *RoomSession) maybeRetire() {
	if len(s.clients) == 0 {
		s.hub.requestRetire(s)
	}
}

func rosterEntries(members []service.RosterMember) []dto.RosterEntry {
	entries := make([]dto.RosterEntry, 0, len(members))
	for _, m := range members {
		entries = append(entries, dto.RosterEntry{
			UserID:   m.UserID,
			Username: m.Username,
			Role:     m.Role,
		})
	}
	return entries
}
