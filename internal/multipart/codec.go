package multipart

import "fmt"

// PartRecord: сохранённая часть: слот, идентификатор, тип и собственное состояние
type PartRecord struct {
	Slot  PartSlot `json:"slot"`
	ID    PartID   `json:"id"`
	Kind  PartKind `json:"kind"`
	State State    `json:"state,omitempty"`
}

// ContainerRecord: сохранённое содержимое многосоставной клетки
type ContainerRecord struct {
	CanTurnIntoBlock bool         `json:"can_turn_into_block"`
	Parts            []PartRecord `json:"parts"`
}

// PartDescription: описание части для полного снимка клетки
type PartDescription = PartRecord

// Describe возвращает описания частей в порядке приоритета слотов.
// Состояние снимается в момент вызова.
func (c *Container) Describe() []PartDescription {
	out := make([]PartDescription, 0, c.table.count)
	c.table.each(func(rec *partRecord) bool {
		out = append(out, PartDescription{
			Slot:  rec.slot,
			ID:    rec.id,
			Kind:  rec.part.Kind(),
			State: rec.part.WriteState(),
		})
		return true
	})
	return out
}

// ApplyDescription наполняет пустой контейнер частями из описаний
func (c *Container) ApplyDescription(descs []PartDescription) error {
	if c.table.count != 0 {
		return fmt.Errorf("%w: описание применяется к непустому контейнеру %s", ErrInvariant, c.pos)
	}

	for _, d := range descs {
		p, err := NewPart(d.Kind)
		if err != nil {
			return err
		}
		if err := p.ReadState(d.State); err != nil {
			return fmt.Errorf("ошибка чтения состояния части %s (%s): %w", d.ID, d.Kind, err)
		}
		if p.Slot() != d.Slot {
			return fmt.Errorf("%w: часть %s ожидалась в слоте %s, получен %s", ErrInvariant, d.ID, d.Slot, p.Slot())
		}
		if !c.AddPartWithID(d.ID, p) {
			return fmt.Errorf("%w: часть %s (%s) не помещается в %s", ErrOccluded, d.ID, d.Kind, c.pos)
		}
	}
	return nil
}

// WriteRecord сохраняет контейнер
func (c *Container) WriteRecord() ContainerRecord {
	return ContainerRecord{
		CanTurnIntoBlock: c.canTurnIntoBlock,
		Parts:            c.Describe(),
	}
}

// ReadRecord восстанавливает части пустого контейнера из записи
func (c *Container) ReadRecord(rec ContainerRecord) error {
	c.canTurnIntoBlock = rec.CanTurnIntoBlock
	return c.ApplyDescription(rec.Parts)
}
