package block

import "github.com/annel0/mmo-multipart/internal/vec"

// Block представляет собой обычный блок, занимающий клетку в одиночку
type Block struct {
	ID      BlockID  `json:"id"`                // Идентификатор типа блока
	Payload Metadata `json:"payload,omitempty"` // Метаданные блока (состояние)
}

// NewBlock создаёт новый блок с указанным ID и инициализированными метаданными
func NewBlock(id BlockID) Block {
	behavior, exists := Get(id)
	if !exists {
		return Block{
			ID:      id,
			Payload: make(Metadata),
		}
	}

	return Block{
		ID:      id,
		Payload: behavior.CreateMetadata(),
	}
}

// NewBlockWithMetadata создаёт блок, дополняя метаданные по умолчанию переданными
func NewBlockWithMetadata(id BlockID, meta Metadata) Block {
	b := NewBlock(id)
	for k, v := range meta {
		b.Payload[k] = v
	}
	return b
}

// Behavior возвращает поведение для блока
func (b Block) Behavior() (BlockBehavior, bool) {
	return Get(b.ID)
}

// IsAir возвращает true для пустой клетки
func (b Block) IsAir() bool {
	return b.ID == AirBlockID
}

// Shape возвращает занятый блоком объём
func (b Block) Shape() []vec.Box {
	behavior, exists := b.Behavior()
	if !exists {
		return []vec.Box{vec.FullCell}
	}
	return behavior.Shape(b.Payload)
}

// CanWrapAsPart проверяет, может ли блок стать частью многосоставной клетки
func (b Block) CanWrapAsPart() bool {
	behavior, exists := b.Behavior()
	if !exists {
		return false
	}
	w, ok := behavior.(Wrappable)
	return ok && w.CanWrapAsPart(b.Payload)
}

// AcceptsParts проверяет, разрешает ли блок делить свою клетку с частями
func (b Block) AcceptsParts() bool {
	behavior, exists := b.Behavior()
	if !exists {
		return false
	}
	if h, ok := behavior.(PartHost); ok {
		return h.AcceptsParts(b.Payload)
	}
	return true
}

// Clone создаёт копию блока
func (b Block) Clone() Block {
	newPayload := make(Metadata, len(b.Payload))
	for k, v := range b.Payload {
		newPayload[k] = v
	}

	return Block{
		ID:      b.ID,
		Payload: newPayload,
	}
}
