package multipart

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// BlockKind: тип части-обёртки над обычным блоком
const BlockKind PartKind = "block"

func init() {
	RegisterKind(BlockKind, func() Part { return &BlockPart{} }, KindOptions{})
}

// BlockPart: обычный блок, обёрнутый в часть при превращении клетки
// в многосоставную. Занимает слот whole, объём берётся из формы блока.
type BlockPart struct {
	block block.Block
}

func wrapBlock(b block.Block) *BlockPart {
	return &BlockPart{block: b.Clone()}
}

// Block возвращает копию обёрнутого блока
func (p *BlockPart) Block() block.Block {
	return p.block.Clone()
}

func (p *BlockPart) Kind() PartKind   { return BlockKind }
func (p *BlockPart) Slot() PartSlot   { return SlotWhole }
func (p *BlockPart) Boxes() []vec.Box { return p.block.Shape() }

func (p *BlockPart) provider() (block.CapabilityProvider, bool) {
	behavior, ok := p.block.Behavior()
	if !ok {
		return nil, false
	}
	cp, ok := behavior.(block.CapabilityProvider)
	return cp, ok
}

// HasCapability спрашивает поведение блока
func (p *BlockPart) HasCapability(kind capability.Kind, face vec.Face) bool {
	cp, ok := p.provider()
	if !ok {
		return false
	}
	_, ok = cp.Capability(kind, face, p.block.Payload)
	return ok
}

// Capability возвращает сервис блока или nil
func (p *BlockPart) Capability(kind capability.Kind, face vec.Face) any {
	cp, ok := p.provider()
	if !ok {
		return nil
	}
	v, ok := cp.Capability(kind, face, p.block.Payload)
	if !ok {
		return nil
	}
	return v
}

// WriteState сохраняет ID и метаданные блока
func (p *BlockPart) WriteState() State {
	payload := make(map[string]interface{}, len(p.block.Payload))
	for k, v := range p.block.Payload {
		payload[k] = v
	}
	return State{
		"id":      int(p.block.ID),
		"payload": payload,
	}
}

// ReadState восстанавливает блок
func (p *BlockPart) ReadState(state State) error {
	id, ok := state.Int("id")
	if !ok {
		return fmt.Errorf("в состоянии блока нет id")
	}
	b := block.NewBlock(block.BlockID(id))
	if payload, ok := state["payload"].(map[string]interface{}); ok {
		for k, v := range payload {
			b.Payload[k] = v
		}
	}
	p.block = b
	return nil
}

// RevertToBlock: обёрнутый блок всегда может вернуться
func (p *BlockPart) RevertToBlock() (block.Block, bool) {
	return p.block.Clone(), true
}
