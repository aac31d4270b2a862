package implementations

import (
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// AirBehavior реализует поведение пустого блока (воздуха)
type AirBehavior struct{}

// ID возвращает идентификатор блока
func (b *AirBehavior) ID() block.BlockID {
	return block.AirBlockID
}

// Name возвращает имя блока
func (b *AirBehavior) Name() string {
	return "Air"
}

// NeedsTick возвращает false, воздух статичен
func (b *AirBehavior) NeedsTick() bool {
	return false
}

// CreateMetadata создает пустые метаданные
func (b *AirBehavior) CreateMetadata() block.Metadata {
	return block.Metadata{}
}

// Shape воздух не занимает объёма
func (b *AirBehavior) Shape(meta block.Metadata) []vec.Box {
	return nil
}
