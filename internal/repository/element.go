package repository

import (
	"context"

	"collabcanvas/internal/domain"
)

// ElementRepository 定义了画布元素追加日志的存储操作。
type ElementRepository interface {
	// SaveBatch 将一批元素按顺序追加到日志。
	// 批次要么整体成功要么整体失败，便于调用方重试。
	SaveBatch(ctx context.Context, elements []domain.Element) error

	// FindByRoom 按追加顺序 (主键升序) 返回房间的全部元素记录。
	// 压缩 (同一 element_id 取最新) 由上层完成。
	FindByRoom(ctx context.Context, roomID uint) ([]domain.Element, error)

	// DeleteByRoom 删除房间的全部元素记录 (清空画布时调用)。
	DeleteByRoom(ctx context.Context, roomID uint) error
}
