// Package parts содержит типы частей, которые игрок может установить в клетку.
package parts

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// CoverKind: сплошная панель на грани клетки
const CoverKind multipart.PartKind = "cover"

// Cover: тонкая сплошная панель, прижатая к одной грани
type Cover struct {
	face     vec.Face
	material string
}

// NewCover создаёт панель на грани
func NewCover(face vec.Face, material string) *Cover {
	return &Cover{face: face, material: material}
}

func (c *Cover) Kind() multipart.PartKind { return CoverKind }
func (c *Cover) Slot() multipart.PartSlot { return multipart.PanelSlot(c.face) }

// Face возвращает грань панели
func (c *Cover) Face() vec.Face { return c.face }

func (c *Cover) Boxes() []vec.Box {
	return []vec.Box{multipart.PanelBox(c.face, multipart.PanelThickness)}
}

func (c *Cover) HasCapability(kind capability.Kind, face vec.Face) bool { return false }
func (c *Cover) Capability(kind capability.Kind, face vec.Face) any     { return nil }

// Orient прижимает панель к грани, по которой кликнули
func (c *Cover) Orient(face vec.Face, hit vec.Vec3Float) {
	c.face = face
}

func (c *Cover) WriteState() multipart.State {
	return multipart.State{
		"face":     c.face.String(),
		"material": c.material,
	}
}

func (c *Cover) ReadState(state multipart.State) error {
	if name, ok := state.String("face"); ok {
		f, err := vec.ParseFace(name)
		if err != nil {
			return err
		}
		c.face = f
	}
	if m, ok := state.String("material"); ok {
		c.material = m
	}
	return nil
}
