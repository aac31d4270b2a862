package multipart

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// PartKind: зарегистрированное имя типа части
type PartKind string

// Part: независимый объект, занимающий часть объёма клетки.
// Реализации должны быть указателями: контейнер сравнивает части по ссылке.
// Идентификатор части выдаёт контейнер.
type Part interface {
	Kind() PartKind
	Slot() PartSlot
	// Boxes возвращает занятый объём. Пустой срез: проходная часть без объёма.
	Boxes() []vec.Box
	HasCapability(kind capability.Kind, face vec.Face) bool
	Capability(kind capability.Kind, face vec.Face) any
	WriteState() State
	ReadState(state State) error
}

// Tickable: часть, обновляемая каждый тик мира
type Tickable interface {
	Tick(c *Container)
}

// LoadAware получает события загрузки и выгрузки клетки
type LoadAware interface {
	OnLoaded(c *Container)
	OnUnloaded(c *Container)
}

// RenderBounded задаёт границы отрисовки, отличные от объёма
type RenderBounded interface {
	RenderBounds() (vec.Box, bool)
}

// Revertible: часть, способная снова стать обычным блоком
type Revertible interface {
	RevertToBlock() (block.Block, bool)
}

// Orientable ориентирует часть по грани и точке попадания перед установкой
type Orientable interface {
	Orient(face vec.Face, hit vec.Vec3Float)
}

// ChangeAware получает контейнер при добавлении (nil при удалении),
// чтобы сообщать о своих изменениях через MarkChanged
type ChangeAware interface {
	BindContainer(c *Container)
}

// boundsOf возвращает объединение объёма части или false для проходной части
func boundsOf(p Part) (vec.Box, bool) {
	if rb, ok := p.(RenderBounded); ok {
		return rb.RenderBounds()
	}
	boxes := p.Boxes()
	if len(boxes) == 0 {
		return vec.Box{}, false
	}
	out := boxes[0]
	for _, b := range boxes[1:] {
		out = out.Union(b)
	}
	return out, true
}
