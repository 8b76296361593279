package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
)

// RedisCanvasCache 是 CanvasCacheRepository 接口的 Redis 实现。
// 整份画布 (压缩后的元素列表) 序列化为单个 JSON 字符串存储。
type RedisCanvasCache struct {
	client *redis.Client // 依赖 Redis 客户端
	// 可选：定义 Redis key 的前缀，方便管理
	keyPrefix string
}

// NewRedisCanvasCache 创建 RedisCanvasCache 实例
func NewRedisCanvasCache(client *redis.Client, keyPrefix string) *RedisCanvasCache {
	if client == nil {
		panic("redis client cannot be nil for RedisCanvasCache")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:" // 默认前缀 "cc:" (collabcanvas)
	}
	return &RedisCanvasCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisCanvasCache) roomElementsKey(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:elements", r.keyPrefix, roomID)
}

// --- CanvasCacheRepository Interface Implementation ---

// GetElements 尝试从缓存读取房间的画布元素。
// 缓存未命中 (redis.Nil) 映射为 repository.ErrNotFound。
func (r *RedisCanvasCache) GetElements(ctx context.Context, roomID uint) ([]domain.Element, error) {
	key := r.roomElementsKey(roomID)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: failed to get canvas cache for room %d from %s: %w", roomID, key, err)
	}

	var elements []domain.Element
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		// 缓存内容损坏时当作未命中处理，由上层回源重建
		return nil, fmt.Errorf("redis: failed to unmarshal canvas cache for room %d: %w", roomID, err)
	}
	return elements, nil
}

// SetElements 将画布元素写入缓存。
func (r *RedisCanvasCache) SetElements(ctx context.Context, roomID uint, elements []domain.Element, ttl time.Duration) error {
	key := r.roomElementsKey(roomID)
	raw, err := json.Marshal(elements)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal canvas cache for room %d: %w", roomID, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set canvas cache for room %d at %s: %w", roomID, key, err)
	}
	return nil
}

// Invalidate 删除房间的画布缓存。
func (r *RedisCanvasCache) Invalidate(ctx context.Context, roomID uint) error {
	key := r.roomElementsKey(roomID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate canvas cache for room %d at %s: %w", roomID, key, err)
	}
	return nil
}
