package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"collabcanvas/internal/domain"
	"collabcanvas/internal/repository"
)

// CanvasService 负责画布内容的读写：缓存优先读取、批量落库和清空。
// 元素在数据库中是追加日志，读取时按 element_id 压缩为最新版本。
type CanvasService struct {
	elementRepo repository.ElementRepository
	cacheRepo   repository.CanvasCacheRepository
	roomRepo    repository.RoomRepository
	cacheTTL    time.Duration
}

// NewCanvasService 创建 CanvasService 实例。
func NewCanvasService(
	elementRepo repository.ElementRepository,
	cacheRepo repository.CanvasCacheRepository,
	roomRepo repository.RoomRepository,
	cacheTTL time.Duration,
) *CanvasService {
	if elementRepo == nil {
		panic("ElementRepository cannot be nil for CanvasService")
	}
	if cacheRepo == nil {
		panic("CanvasCacheRepository cannot be nil for CanvasService")
	}
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for CanvasService")
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CanvasService{
		elementRepo: elementRepo,
		cacheRepo:   cacheRepo,
		roomRepo:    roomRepo,
		cacheTTL:    cacheTTL,
	}
}

// LoadCanvas 返回房间压缩后的画布内容。
// 读取顺序：Redis 缓存 -> MySQL 追加日志 (压缩后异步回填缓存)。
func (s *CanvasService) LoadCanvas(ctx context.Context, roomID uint) ([]domain.Element, error) {
	logCtx := logrus.WithField("room_id", roomID)

	// 1. 尝试缓存
	cached, err := s.cacheRepo.GetElements(ctx, roomID)
	if err == nil {
		logCtx.WithField("count", len(cached)).Debug("Canvas cache hit")
		return cached, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		// 缓存故障不阻塞读取，回源数据库
		logCtx.WithError(err).Warn("Canvas cache read failed, falling back to database")
	}

	// 2. 回源数据库并压缩
	raw, err := s.elementRepo.FindByRoom(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load canvas elements from database")
		return nil, ErrInternalServer
	}
	compacted := compactElements(raw)

	// 3. 异步回填缓存，失败只记日志
	go func(elements []domain.Element) {
		warmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cacheRepo.SetElements(warmCtx, roomID, elements, s.cacheTTL); err != nil {
			logCtx.WithError(err).Warn("Failed to warm canvas cache")
		}
	}(compacted)

	return compacted, nil
}

// AppendBatch 将一批元素追加到房间的持久化日志。
// 成功后使缓存失效并刷新房间活跃时间，两者失败都不影响返回值。
func (s *CanvasService) AppendBatch(ctx context.Context, roomID uint, batch []domain.Element) error {
	if len(batch) == 0 {
		return nil
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "count": len(batch)})

	if err := s.elementRepo.SaveBatch(ctx, batch); err != nil {
		logCtx.WithError(err).Error("Failed to persist element batch")
		return err
	}

	if err := s.cacheRepo.Invalidate(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to invalidate canvas cache after append")
	}
	if err := s.roomRepo.TouchLastActive(ctx, roomID, time.Now()); err != nil {
		logCtx.WithError(err).Warn("Failed to touch room last_active after append")
	}

	logCtx.Debug("Element batch persisted")
	return nil
}

// ClearCanvas 删除房间的全部持久化元素并使缓存失效。
func (s *CanvasService) ClearCanvas(ctx context.Context, roomID uint) error {
	logCtx := logrus.WithField("room_id", roomID)

	if err := s.elementRepo.DeleteByRoom(ctx, roomID); err != nil {
		logCtx.WithError(err).Error("Failed to delete canvas elements")
		return err
	}
	// 缓存失效失败会让后来者短暂看到已删除的内容，按错误处理
	if err := s.cacheRepo.Invalidate(ctx, roomID); err != nil {
		logCtx.WithError(err).Error("Failed to invalidate canvas cache after clear")
		return err
	}

	logCtx.Info("Canvas cleared")
	return nil
}

// compactElements 按 element_id 压缩追加日志：同一元素保留最新数据，
// 位置保持其首次出现的顺序。
func compactElements(raw []domain.Element) []domain.Element {
	compacted := make([]domain.Element, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, el := range raw {
		if pos, seen := index[el.ElementID]; seen {
			compacted[pos] = el
			continue
		}
		index[el.ElementID] = len(compacted)
		compacted = append(compacted, el)
	}
	return compacted
}
