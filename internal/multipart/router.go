package multipart

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// touchesFace: выходит ли часть на грань номинальным слотом или своим объёмом
func touchesFace(p Part, f vec.Face) bool {
	if SlotTouchesFace(p.Slot(), f) {
		return true
	}
	for _, b := range p.Boxes() {
		if !b.Empty() && b.TouchesFace(f) {
			return true
		}
	}
	return false
}

// Responder возвращает первую по приоритету слота часть, которая выходит на грань
// и объявляет сервис. Без ответа запрос уходит собственному ответчику клетки.
func (c *Container) Responder(kind capability.Kind, face vec.Face) (Part, bool) {
	var found Part
	c.table.each(func(rec *partRecord) bool {
		if touchesFace(rec.part, face) && rec.part.HasCapability(kind, face) {
			found = rec.part
			return false
		}
		return true
	})
	return found, found != nil
}

// QueryCapability маршрутизирует запрос сервиса по грани
func (c *Container) QueryCapability(kind capability.Kind, face vec.Face) (any, bool) {
	p, ok := c.Responder(kind, face)
	if !ok {
		return nil, false
	}
	v := p.Capability(kind, face)
	return v, v != nil
}

// QuerySlotCapability спрашивает только часть в указанном слоте
func (c *Container) QuerySlotCapability(kind capability.Kind, slot PartSlot, face vec.Face) (any, bool) {
	h, ok := c.table.inSlot(slot)
	if !ok {
		return nil, false
	}
	p := c.table.records[h].part
	if !p.HasCapability(kind, face) {
		return nil, false
	}
	v := p.Capability(kind, face)
	return v, v != nil
}

// Capability возвращает сервис грани, приведённый к типу T
func Capability[T any](c *Container, kind capability.Kind, face vec.Face) (T, bool) {
	var zero T
	v, ok := c.QueryCapability(kind, face)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// SlotCapability возвращает сервис части в слоте, приведённый к типу T
func SlotCapability[T any](c *Container, kind capability.Kind, slot PartSlot, face vec.Face) (T, bool) {
	var zero T
	v, ok := c.QuerySlotCapability(kind, slot, face)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
