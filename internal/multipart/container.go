package multipart

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/google/uuid"
)

// Host: клетка мира, владеющая контейнером
type Host interface {
	// ContainerChanged вызывается после удаления части, чтобы клетка
	// могла вернуться к пустому или одиночному представлению
	ContainerChanged(c *Container)
}

// Listener получает изменения набора частей. Вызывается в потоке симуляции.
type Listener interface {
	PartAdded(c *Container, id PartID, p Part)
	PartRemoved(c *Container, id PartID, p Part)
	PartChanged(c *Container, id PartID, p Part)
}

// Container: многосоставная клетка: части, занятость слотов и идентификаторы.
// Изменяющие методы вызываются только из потока симуляции.
type Container struct {
	pos              vec.Vec3
	host             Host
	table            *identityTable
	listeners        []Listener
	canTurnIntoBlock bool
}

// NewContainer создаёт пустой контейнер для клетки pos
func NewContainer(pos vec.Vec3, host Host, canTurnIntoBlock bool) *Container {
	return &Container{
		pos:              pos,
		host:             host,
		table:            newIdentityTable(),
		canTurnIntoBlock: canTurnIntoBlock,
	}
}

// Pos возвращает позицию клетки
func (c *Container) Pos() vec.Vec3 {
	return c.pos
}

// Len возвращает количество частей
func (c *Container) Len() int {
	return c.table.count
}

// CanTurnIntoBlock сообщает, может ли контейнер вернуться к обычному блоку
func (c *Container) CanTurnIntoBlock() bool {
	return c.canTurnIntoBlock
}

// AddListener подписывает слушателя на изменения частей
func (c *Container) AddListener(l Listener) {
	if l != nil {
		c.listeners = append(c.listeners, l)
	}
}

// Parts возвращает копию списка частей в порядке приоритета слотов.
// Копию можно обходить, удаляя части по ходу.
func (c *Container) Parts() []Part {
	out := make([]Part, 0, c.table.count)
	c.table.each(func(rec *partRecord) bool {
		out = append(out, rec.part)
		return true
	})
	return out
}

// Contains проверяет, установлена ли часть в контейнере
func (c *Container) Contains(p Part) bool {
	_, ok := c.table.handleOf(p)
	return ok
}

// PartInSlot возвращает часть в слоте
func (c *Container) PartInSlot(s PartSlot) (Part, bool) {
	h, ok := c.table.inSlot(s)
	if !ok {
		return nil, false
	}
	return c.table.records[h].part, true
}

// PartID возвращает идентификатор установленной части
func (c *Container) PartID(p Part) (PartID, bool) {
	h, ok := c.table.handleOf(p)
	if !ok {
		return uuid.Nil, false
	}
	return c.table.records[h].id, true
}

// PartFromID возвращает часть по идентификатору
func (c *Container) PartFromID(id PartID) (Part, bool) {
	h, ok := c.table.lookupID(id)
	if !ok {
		return nil, false
	}
	return c.table.records[h].part, true
}

// CanAddPart: слот свободен и объём не пересекается с установленными частями
func (c *Container) CanAddPart(p Part) bool {
	if p == nil || !p.Slot().Valid() {
		return false
	}
	if c.Contains(p) {
		return false
	}
	if _, occupied := c.table.inSlot(p.Slot()); occupied {
		return false
	}
	return !c.OcclusionTest(p)
}

// AddPart добавляет часть с новым идентификатором
func (c *Container) AddPart(p Part) (PartID, bool) {
	id := NewPartID()
	for c.table.known(id) {
		id = NewPartID()
	}
	if !c.AddPartWithID(id, p) {
		return uuid.Nil, false
	}
	return id, true
}

// AddPartWithID добавляет часть, сохраняя переданный идентификатор.
// Отказывает, если идентификатор уже использовался в этом контейнере.
func (c *Container) AddPartWithID(id PartID, p Part) bool {
	if id == uuid.Nil || c.table.known(id) {
		return false
	}
	if !c.CanAddPart(p) {
		return false
	}

	c.table.insert(id, p)
	if ca, ok := p.(ChangeAware); ok {
		ca.BindContainer(c)
	}
	for _, l := range c.listeners {
		l.PartAdded(c, id, p)
	}
	return true
}

// CanReplacePart: удаление old и последующее добавление next прошло бы успешно
func (c *Container) CanReplacePart(old, next Part) bool {
	if next == nil || !next.Slot().Valid() || !c.Contains(old) || c.Contains(next) {
		return false
	}
	if h, occupied := c.table.inSlot(next.Slot()); occupied && c.table.records[h].part != old {
		return false
	}
	return !c.OcclusionTest(next, old)
}

// ReplacePart заменяет часть без промежуточного пустого состояния.
// Новая часть получает новый идентификатор, клетка не конвертируется.
func (c *Container) ReplacePart(old, next Part) (PartID, error) {
	if !c.Contains(old) {
		return uuid.Nil, ErrPartNotFound
	}
	if !c.CanReplacePart(old, next) {
		if next != nil && next.Slot().Valid() {
			if h, occupied := c.table.inSlot(next.Slot()); occupied && c.table.records[h].part != old {
				return uuid.Nil, ErrSlotOccupied
			}
		}
		return uuid.Nil, ErrOccluded
	}

	h, _ := c.table.handleOf(old)
	c.detach(h)

	id := NewPartID()
	for c.table.known(id) {
		id = NewPartID()
	}
	if !c.AddPartWithID(id, next) {
		return uuid.Nil, fmt.Errorf("%w: замена в %s не прошла после проверки", ErrInvariant, c.pos)
	}
	return id, nil
}

// RemovePart удаляет часть и сообщает клетке об изменении
func (c *Container) RemovePart(p Part) error {
	h, ok := c.table.handleOf(p)
	if !ok {
		return ErrPartNotFound
	}
	c.detach(h)
	if c.host != nil {
		c.host.ContainerChanged(c)
	}
	return nil
}

// detach удаляет запись и оповещает слушателей, не трогая клетку
func (c *Container) detach(h handle) {
	rec := c.table.remove(h)
	if ca, ok := rec.part.(ChangeAware); ok {
		ca.BindContainer(nil)
	}
	for _, l := range c.listeners {
		l.PartRemoved(c, rec.id, rec.part)
	}
}

// dissolve удаляет все части перед тем, как клетка откажется от контейнера
func (c *Container) dissolve() {
	for _, p := range c.Parts() {
		if h, ok := c.table.handleOf(p); ok {
			c.detach(h)
		}
	}
}

// MarkChanged сообщает слушателям, что состояние части изменилось
func (c *Container) MarkChanged(p Part) {
	h, ok := c.table.handleOf(p)
	if !ok {
		return
	}
	id := c.table.records[h].id
	for _, l := range c.listeners {
		l.PartChanged(c, id, p)
	}
}

// NeedsTick: есть ли среди частей обновляемые
func (c *Container) NeedsTick() bool {
	needs := false
	c.table.each(func(rec *partRecord) bool {
		_, needs = rec.part.(Tickable)
		return !needs
	})
	return needs
}

// Tick обновляет части. Части, удалённые во время тика, пропускаются.
func (c *Container) Tick() {
	for _, p := range c.Parts() {
		if !c.Contains(p) {
			continue
		}
		if t, ok := p.(Tickable); ok {
			t.Tick(c)
		}
	}
}

// OnLoaded передаёт событие загрузки клетки частям
func (c *Container) OnLoaded() {
	for _, p := range c.Parts() {
		if la, ok := p.(LoadAware); ok {
			la.OnLoaded(c)
		}
	}
}

// OnUnloaded передаёт событие выгрузки клетки частям
func (c *Container) OnUnloaded() {
	for _, p := range c.Parts() {
		if la, ok := p.(LoadAware); ok {
			la.OnUnloaded(c)
		}
	}
}

// RenderBounds объединяет границы частей в мировых координатах.
// Без частей с объёмом возвращает всю клетку.
func (c *Container) RenderBounds() vec.Box {
	var bounds vec.Box
	found := false
	c.table.each(func(rec *partRecord) bool {
		b, ok := boundsOf(rec.part)
		if !ok {
			return true
		}
		if !found {
			bounds, found = b, true
		} else {
			bounds = bounds.Union(b)
		}
		return true
	})
	if !found {
		bounds = vec.FullCell
	}
	return bounds.Offset(c.pos)
}
