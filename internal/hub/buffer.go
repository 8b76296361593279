package hub

import "collabcanvas/internal/domain"

// writeBuffer 按元素聚合待持久化的绘图更新。同一元素的新数据覆盖旧数据
// (last-write-wins)，位置保持首次写入的顺序。epoch 在画布清空时递增，
// 用于识别清空前排出的在途批次，阻止其合并回来。
type writeBuffer struct {
	order   []string
	entries map[string]domain.Element
	epoch   uint64
}

func newWriteBuffer() *writeBuffer {
	return &writeBuffer{
		entries: make(map[string]domain.Element),
	}
}

// Put 写入或覆盖一个元素。
func (b *writeBuffer) Put(el domain.Element) {
	if _, ok := b.entries[el.ElementID]; !ok {
		b.order = append(b.order, el.ElementID)
	}
	b.entries[el.ElementID] = el
}

// Len 返回当前待写元素数。
func (b *writeBuffer) Len() int {
	return len(b.entries)
}

// Epoch 返回当前纪元。
func (b *writeBuffer) Epoch() uint64 {
	return b.epoch
}

// Pending 返回待写元素的有序副本，不改变缓冲内容。
func (b *writeBuffer) Pending() []domain.Element {
	out := make([]domain.Element, 0, len(b.entries))
	for _, id := range b.order {
		out = append(out, b.entries[id])
	}
	return out
}

// Drain 取出全部待写元素并清空缓冲，返回批次和其所属纪元。
// 纪元本身不变，只有 Clear 会推进它。
func (b *writeBuffer) Drain() ([]domain.Element, uint64) {
	batch := b.Pending()
	b.order = nil
	b.entries = make(map[string]domain.Element)
	return batch, b.epoch
}

// Requeue 把写入失败的批次合并回缓冲。批次纪元落后于当前纪元时
// 说明画布已被清空，批次作废，返回 false。
// 合并时缓冲中已有的同名元素保留 (它比失败批次里的版本更新)，
// 批次独有的元素按原顺序排到现有元素之前，保持大致的先后次序。
func (b *writeBuffer) Requeue(batch []domain.Element, epoch uint64) bool {
	if epoch != b.epoch {
		return false
	}
	merged := make([]string, 0, len(batch)+len(b.order))
	for _, el := range batch {
		if _, ok := b.entries[el.ElementID]; ok {
			continue
		}
		b.entries[el.ElementID] = el
		merged = append(merged, el.ElementID)
	}
	b.order = append(merged, b.order...)
	return true
}

// Clear 丢弃全部待写元素并推进纪元。
func (b *writeBuffer) Clear() {
	b.order = nil
	b.entries = make(map[string]domain.Element)
	b.epoch++
}
