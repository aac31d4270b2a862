package implementations

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// LanternBehavior: фонарь на тонком столбике. Светится и отдаёт сигнал через все грани.
type LanternBehavior struct{}

// ID возвращает идентификатор блока
func (b *LanternBehavior) ID() block.BlockID {
	return block.LanternBlockID
}

// Name возвращает имя блока
func (b *LanternBehavior) Name() string {
	return "Lantern"
}

// NeedsTick возвращает false
func (b *LanternBehavior) NeedsTick() bool {
	return false
}

// CreateMetadata создает начальные метаданные для блока
func (b *LanternBehavior) CreateMetadata() block.Metadata {
	return block.Metadata{
		"lit": true,
	}
}

// Shape столбик по центру клетки от пола до 3/4 высоты
func (b *LanternBehavior) Shape(meta block.Metadata) []vec.Box {
	return []vec.Box{vec.NewBox(0.375, 0, 0.375, 0.625, 0.75, 0.625)}
}

// CanWrapAsPart фонарь можно совмещать с панелями
func (b *LanternBehavior) CanWrapAsPart(meta block.Metadata) bool {
	return true
}

// Capability отдаёт сигнал горящего фонаря
func (b *LanternBehavior) Capability(kind capability.Kind, face vec.Face, meta block.Metadata) (any, bool) {
	if kind != capability.Signal {
		return nil, false
	}
	lit, _ := meta["lit"].(bool)
	level := 0
	if lit {
		level = 15
	}
	return staticSignal(level), true
}

type staticSignal int

func (s staticSignal) Level() int { return int(s) }
