package implementations

import (
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// StoneBehavior реализует поведение блока камня.
// Камень занимает клетку целиком и не превращается в часть.
type StoneBehavior struct{}

// ID возвращает идентификатор блока
func (b *StoneBehavior) ID() block.BlockID {
	return block.StoneBlockID
}

// Name возвращает имя блока
func (b *StoneBehavior) Name() string {
	return "Stone"
}

// NeedsTick возвращает false, камень статичен
func (b *StoneBehavior) NeedsTick() bool {
	return false
}

// CreateMetadata создает начальные метаданные для блока
func (b *StoneBehavior) CreateMetadata() block.Metadata {
	return block.Metadata{
		"hardness": 10,
	}
}

// Shape камень занимает всю клетку
func (b *StoneBehavior) Shape(meta block.Metadata) []vec.Box {
	return []vec.Box{vec.FullCell}
}
