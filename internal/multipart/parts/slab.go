package parts

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
	"github.com/annel0/mmo-multipart/internal/world/block/implementations"
)

// SlabKind: полублок как часть клетки
const SlabKind multipart.PartKind = "slab"

// Slab занимает верхнюю или нижнюю половину клетки.
// Оставшись в клетке один, превращается обратно в блок-полублок.
type Slab struct {
	top      bool
	material string
}

// NewSlab создаёт полублок
func NewSlab(top bool, material string) *Slab {
	return &Slab{top: top, material: material}
}

func (s *Slab) Kind() multipart.PartKind { return SlabKind }

func (s *Slab) Slot() multipart.PartSlot {
	if s.top {
		return multipart.SlotPanelUp
	}
	return multipart.SlotPanelDown
}

// Top: полублок в верхней половине
func (s *Slab) Top() bool { return s.top }

func (s *Slab) Boxes() []vec.Box {
	if s.top {
		return []vec.Box{vec.NewBox(0, 0.5, 0, 1, 1, 1)}
	}
	return []vec.Box{vec.NewBox(0, 0, 0, 1, 0.5, 1)}
}

func (s *Slab) HasCapability(kind capability.Kind, face vec.Face) bool { return false }
func (s *Slab) Capability(kind capability.Kind, face vec.Face) any     { return nil }

// Orient: клик по верхней грани или по верхней половине боковой даёт верхний полублок.
// hit задан в локальных координатах клетки.
func (s *Slab) Orient(face vec.Face, hit vec.Vec3Float) {
	switch face {
	case vec.FaceUp:
		s.top = true
	case vec.FaceDown:
		s.top = false
	default:
		s.top = hit.Y >= 0.5
	}
}

// RevertToBlock возвращает блок-полублок той же половины
func (s *Slab) RevertToBlock() (block.Block, bool) {
	half := implementations.SlabBottom
	if s.top {
		half = implementations.SlabTop
	}
	meta := block.Metadata{"half": half}
	if s.material != "" {
		meta["material"] = s.material
	}
	return block.NewBlockWithMetadata(block.SlabBlockID, meta), true
}

func (s *Slab) WriteState() multipart.State {
	return multipart.State{
		"top":      s.top,
		"material": s.material,
	}
}

func (s *Slab) ReadState(state multipart.State) error {
	if top, ok := state.Bool("top"); ok {
		s.top = top
	}
	if m, ok := state.String("material"); ok {
		s.material = m
	}
	return nil
}
