package implementations

import (
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// Значения ключа "half" в метаданных полублока
const (
	SlabBottom = "bottom"
	SlabTop    = "top"
)

// SlabBehavior реализует полублок. Половина задаётся метаданными "half".
type SlabBehavior struct{}

// ID возвращает идентификатор блока
func (b *SlabBehavior) ID() block.BlockID {
	return block.SlabBlockID
}

// Name возвращает имя блока
func (b *SlabBehavior) Name() string {
	return "Slab"
}

// NeedsTick возвращает false
func (b *SlabBehavior) NeedsTick() bool {
	return false
}

// CreateMetadata по умолчанию нижний полублок
func (b *SlabBehavior) CreateMetadata() block.Metadata {
	return block.Metadata{
		"half":     SlabBottom,
		"material": "stone",
	}
}

// Shape возвращает нижнюю или верхнюю половину клетки
func (b *SlabBehavior) Shape(meta block.Metadata) []vec.Box {
	if half, _ := meta["half"].(string); half == SlabTop {
		return []vec.Box{vec.NewBox(0, 0.5, 0, 1, 1, 1)}
	}
	return []vec.Box{vec.NewBox(0, 0, 0, 1, 0.5, 1)}
}

// CanWrapAsPart полублок всегда может делить клетку
func (b *SlabBehavior) CanWrapAsPart(meta block.Metadata) bool {
	return true
}
