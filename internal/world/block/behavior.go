package block

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
)

type Metadata map[string]interface{}

// BlockBehavior определяет поведение обычного блока, целиком владеющего клеткой
type BlockBehavior interface {
	ID() BlockID
	Name() string
	NeedsTick() bool
	CreateMetadata() Metadata
	// Shape возвращает занятый объём в локальных координатах клетки.
	// Пустой срез: блок без объёма (воздух).
	Shape(meta Metadata) []vec.Box
}

// Wrappable реализуют блоки, которые можно обернуть в часть многосоставной клетки
type Wrappable interface {
	CanWrapAsPart(meta Metadata) bool
}

// PartHost позволяет блоку запретить своей клетке становиться многосоставной
type PartHost interface {
	AcceptsParts(meta Metadata) bool
}

// CapabilityProvider: собственный ответчик клетки на запросы сервисов
type CapabilityProvider interface {
	Capability(kind capability.Kind, face vec.Face, meta Metadata) (any, bool)
}
