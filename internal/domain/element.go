package domain

import "time"

// Element 表示画布上一个已持久化的绘图元素 (一条追加记录)。
// 同一个 ElementID 可能对应多条记录：后写入的记录覆盖先写入的记录，
// 读取画布时按 ElementID 压缩，只保留每个元素的最新版本。
type Element struct {
	ID     uint `gorm:"primaryKey"`                                 // 记录唯一标识符，同时决定追加顺序
	RoomID uint `gorm:"index:idx_room_element,priority:1;not null"` // 元素所属的房间 ID
	// ElementID 是客户端生成的元素身份标识，用于覆盖与去重
	ElementID string    `gorm:"size:64;index:idx_room_element,priority:2;not null"`
	LayerID   string    `gorm:"size:64"`          // 元素所在图层，可为空
	Kind      string    `gorm:"size:50;not null"` // 元素类型，例如 "stroke", "shape", "text"
	Data      string    `gorm:"type:text"`        // 元素的几何/样式数据，服务端视为不透明的 JSON 字符串
	CreatedBy uint      `gorm:"index;not null"`   // 最后写入该元素的用户 ID
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
