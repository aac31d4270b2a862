package parts

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// PortKind: сигнальный вывод на грани клетки
const PortKind multipart.PartKind = "port"

// MaxSignal: максимальный уровень сигнала
const MaxSignal = 15

// Port не занимает объёма и отдаёт через свою грань сигнал,
// пропорциональный заряду провода в центре той же клетки
type Port struct {
	face  vec.Face
	level int
}

// NewPort создаёт вывод на грани
func NewPort(face vec.Face) *Port {
	return &Port{face: face}
}

func (p *Port) Kind() multipart.PartKind { return PortKind }
func (p *Port) Slot() multipart.PartSlot { return multipart.PanelSlot(p.face) }

// Boxes пустой: вывод проходной и ни с чем не пересекается
func (p *Port) Boxes() []vec.Box { return nil }

// RenderBounds: тонкая пластина на грани
func (p *Port) RenderBounds() (vec.Box, bool) {
	return multipart.PanelBox(p.face, 0.0625), true
}

func (p *Port) HasCapability(kind capability.Kind, face vec.Face) bool {
	return kind == capability.Signal && face == p.face
}

func (p *Port) Capability(kind capability.Kind, face vec.Face) any {
	if !p.HasCapability(kind, face) {
		return nil
	}
	return capability.SignalSource(p)
}

// Level возвращает текущий уровень сигнала
func (p *Port) Level() int { return p.level }

// Orient ставит вывод на грань, по которой кликнули
func (p *Port) Orient(face vec.Face, hit vec.Vec3Float) {
	p.face = face
}

// Tick опрашивает провод соседнего слота и обновляет уровень
func (p *Port) Tick(c *multipart.Container) {
	if level := p.sample(c); level != p.level {
		p.level = level
		c.MarkChanged(p)
	}
}

// OnLoaded восстанавливает уровень без оповещения: клиенты получат его со снимком
func (p *Port) OnLoaded(c *multipart.Container) {
	p.level = p.sample(c)
}

func (p *Port) OnUnloaded(c *multipart.Container) {}

func (p *Port) sample(c *multipart.Container) int {
	storage, ok := multipart.SlotCapability[capability.EnergyStorage](c, capability.Energy, multipart.SlotCenter, p.face)
	if !ok || storage.Stored() == 0 || storage.Capacity() == 0 {
		return 0
	}
	level := storage.Stored() * MaxSignal / storage.Capacity()
	if level == 0 {
		level = 1
	}
	return level
}

func (p *Port) WriteState() multipart.State {
	return multipart.State{
		"face":  p.face.String(),
		"level": p.level,
	}
}

func (p *Port) ReadState(state multipart.State) error {
	if name, ok := state.String("face"); ok {
		f, err := vec.ParseFace(name)
		if err != nil {
			return err
		}
		p.face = f
	}
	if level, ok := state.Int("level"); ok {
		p.level = level
	}
	return nil
}
