package hub

import (
	"sort"
	"time"
)

const defaultLockTTL = 30 * time.Second

// lockOutcome 是释放操作的结果。
type lockOutcome int

const (
	lockReleased lockOutcome = iota
	lockNotHeld
	lockNotHolder
)

// elementLock 记录一把锁的持有者和获取时间。
// holderConn 记录持有连接，断开时按连接批量释放。
type elementLock struct {
	holderID   uint
	holderConn string
	acquiredAt time.Time
}

// LockInfo 是对外暴露的锁视图，用于组装房间状态快照。
type LockInfo struct {
	ObjectID   string
	HolderID   uint
	AcquiredAt time.Time
}

// lockTable 维护房间内的元素锁。过期采用惰性判定：
// 每次操作时对照 ttl 检查，不跑后台清理。
// 所有方法只在房间会话 goroutine 中调用，不需要加锁。
type lockTable struct {
	locks map[string]elementLock
	ttl   time.Duration
}

func newLockTable(ttl time.Duration) *lockTable {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &lockTable{
		locks: make(map[string]elementLock),
		ttl:   ttl,
	}
}

// Acquire 尝试获取元素锁。持有者重复获取会刷新获取时间并更新持有连接。
// 拒绝时返回当前持有的锁信息。
func (t *lockTable) Acquire(objectID string, userID uint, connID string, now time.Time) (bool, elementLock) {
	existing, ok := t.locks[objectID]
	if ok && !t.expired(existing, now) && existing.holderID != userID {
		return false, existing
	}
	granted := elementLock{
		holderID:   userID,
		holderConn: connID,
		acquiredAt: now,
	}
	t.locks[objectID] = granted
	return true, granted
}

// Release 释放元素锁。未持有、已过期或持有者不符时不做任何修改
// (过期锁会被顺带清掉)。
func (t *lockTable) Release(objectID string, userID uint, now time.Time) lockOutcome {
	existing, ok := t.locks[objectID]
	if !ok {
		return lockNotHeld
	}
	if t.expired(existing, now) {
		delete(t.locks, objectID)
		return lockNotHeld
	}
	if existing.holderID != userID {
		return lockNotHolder
	}
	delete(t.locks, objectID)
	return lockReleased
}

// ReleaseConn 释放某连接持有的全部锁，返回被释放的元素 ID (已排序)。
// 已过期的锁一并清除但不计入返回值，避免广播多余的释放事件。
func (t *lockTable) ReleaseConn(connID string, now time.Time) []string {
	var released []string
	for objectID, l := range t.locks {
		if l.holderConn != connID {
			continue
		}
		expired := t.expired(l, now)
		delete(t.locks, objectID)
		if !expired {
			released = append(released, objectID)
		}
	}
	sort.Strings(released)
	return released
}

// Active 返回当前有效的锁 (按元素 ID 排序)，过期的锁顺带清除。
func (t *lockTable) Active(now time.Time) []LockInfo {
	out := make([]LockInfo, 0, len(t.locks))
	for objectID, l := range t.locks {
		if t.expired(l, now) {
			delete(t.locks, objectID)
			continue
		}
		out = append(out, LockInfo{
			ObjectID:   objectID,
			HolderID:   l.holderID,
			AcquiredAt: l.acquiredAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out
}

// Reset 清空全部锁，画布清空时调用。
func (t *lockTable) Reset() {
	t.locks = make(map[string]elementLock)
}

func (t *lockTable) expired(l elementLock, now time.Time) bool {
	return now.Sub(l.acquiredAt) > t.ttl
}
