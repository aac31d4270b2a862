package multipart

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
	_ "github.com/annel0/mmo-multipart/internal/world/block/implementations"
)

const testKind PartKind = "test-box"

func init() {
	RegisterKind(testKind, func() Part { return &testPart{} }, KindOptions{Placeable: true})
	RegisterKind("test-exclusive", func() Part {
		return &testPart{kind: "test-exclusive", slot: SlotCenter, boxes: []vec.Box{NominalBox(SlotCenter)}}
	}, KindOptions{Placeable: true, Exclusive: true})
	RegisterKind("test-hidden", func() Part { return &testPart{kind: "test-hidden"} }, KindOptions{})
}

// testPart: часть с произвольным слотом, объёмом и сервисами
type testPart struct {
	kind   PartKind
	slot   PartSlot
	boxes  []vec.Box
	caps   map[capability.Kind]bool
	value  int
	revert *block.Block
	ticks  int
	onTick func(p *testPart, c *Container)
	loaded bool
}

func newTestPart(slot PartSlot, boxes ...vec.Box) *testPart {
	return &testPart{kind: testKind, slot: slot, boxes: boxes}
}

func (p *testPart) Kind() PartKind {
	if p.kind == "" {
		return testKind
	}
	return p.kind
}
func (p *testPart) Slot() PartSlot   { return p.slot }
func (p *testPart) Boxes() []vec.Box { return p.boxes }

func (p *testPart) HasCapability(kind capability.Kind, face vec.Face) bool {
	return p.caps[kind]
}

func (p *testPart) Capability(kind capability.Kind, face vec.Face) any {
	if !p.caps[kind] {
		return nil
	}
	return p
}

func (p *testPart) Level() int { return p.value }

func (p *testPart) Tick(c *Container) {
	p.ticks++
	if p.onTick != nil {
		p.onTick(p, c)
	}
}

func (p *testPart) OnLoaded(c *Container)   { p.loaded = true }
func (p *testPart) OnUnloaded(c *Container) { p.loaded = false }

func (p *testPart) RevertToBlock() (block.Block, bool) {
	if p.revert == nil {
		return block.Block{}, false
	}
	return *p.revert, true
}

func (p *testPart) WriteState() State {
	boxes := make([]interface{}, 0, len(p.boxes))
	for _, b := range p.boxes {
		boxes = append(boxes, []interface{}{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z})
	}
	return State{
		"slot":  p.slot.String(),
		"value": p.value,
		"boxes": boxes,
	}
}

func (p *testPart) ReadState(state State) error {
	if name, ok := state.String("slot"); ok {
		s, err := ParseSlot(name)
		if err != nil {
			return err
		}
		p.slot = s
	}
	if v, ok := state.Int("value"); ok {
		p.value = v
	}
	if raw, ok := state["boxes"].([]interface{}); ok {
		p.boxes = nil
		for _, r := range raw {
			c, ok := r.([]interface{})
			if !ok || len(c) != 6 {
				return fmt.Errorf("плохой бокс %v", r)
			}
			f := make([]float64, 6)
			for i := range c {
				f[i], _ = c[i].(float64)
			}
			p.boxes = append(p.boxes, vec.NewBox(f[0], f[1], f[2], f[3], f[4], f[5]))
		}
	}
	return nil
}

// mapCells: клетки мира в памяти
type mapCells map[vec.Vec3]Cell

func (m mapCells) Cell(pos vec.Vec3) Cell {
	if c, ok := m[pos]; ok {
		return c
	}
	return EmptyCell()
}

func (m mapCells) SetCell(pos vec.Vec3, cell Cell) {
	if cell.Kind == CellEmpty {
		delete(m, pos)
		return
	}
	m[pos] = cell
}

type event struct {
	op   string
	id   PartID
	kind PartKind
}

// recorder записывает события контейнера
type recorder struct {
	events []event
}

func (r *recorder) PartAdded(c *Container, id PartID, p Part) {
	r.events = append(r.events, event{"add", id, p.Kind()})
}
func (r *recorder) PartRemoved(c *Container, id PartID, p Part) {
	r.events = append(r.events, event{"remove", id, p.Kind()})
}
func (r *recorder) PartChanged(c *Container, id PartID, p Part) {
	r.events = append(r.events, event{"update", id, p.Kind()})
}

func (r *recorder) ops() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.op
	}
	return out
}

const testHostBlockID block.BlockID = 900

// lockedBehavior: блок, который можно обернуть, но который не пускает части в свою клетку
type lockedBehavior struct{}

func (b *lockedBehavior) ID() block.BlockID              { return testHostBlockID }
func (b *lockedBehavior) Name() string                   { return "Locked" }
func (b *lockedBehavior) NeedsTick() bool                { return false }
func (b *lockedBehavior) CreateMetadata() block.Metadata { return block.Metadata{} }
func (b *lockedBehavior) Shape(meta block.Metadata) []vec.Box {
	return []vec.Box{vec.NewBox(0, 0, 0, 1, 0.25, 1)}
}
func (b *lockedBehavior) CanWrapAsPart(meta block.Metadata) bool { return true }
func (b *lockedBehavior) AcceptsParts(meta block.Metadata) bool  { return false }

func init() {
	block.Register(testHostBlockID, &lockedBehavior{})
}
