package repository

import (
	"context"
	"time"

	"collabcanvas/internal/domain"
)

// CanvasCacheRepository 定义了画布内容的缓存操作，通常由 Redis 实现。
// 缓存的是压缩后的元素列表，作为数据库全量读取的前置层。
type CanvasCacheRepository interface {
	// GetElements 尝试从缓存中获取房间的画布元素。
	// 如果缓存未命中，应返回 ErrNotFound。
	GetElements(ctx context.Context, roomID uint) ([]domain.Element, error)

	// SetElements 将画布元素写入缓存。
	// ttl 为 0 表示不过期。
	SetElements(ctx context.Context, roomID uint, elements []domain.Element, ttl time.Duration) error

	// Invalidate 使房间的画布缓存失效 (写入或清空后调用)。
	Invalidate(ctx context.Context, roomID uint) error
}
