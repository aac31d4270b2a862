package parts

import (
	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

const (
	// ConduitKind: энергетический провод в центре клетки
	ConduitKind multipart.PartKind = "conduit"

	// ConduitCapacity: ёмкость буфера провода
	ConduitCapacity = 1000
	// ConduitLoss: потери буфера за тик
	ConduitLoss = 1

	coreMin = 0.375
	coreMax = 0.625
)

// Conduit: центральное ядро с отводами к подключённым граням.
// Через подключённые грани отдаёт сервис Energy.
type Conduit struct {
	connections [vec.FaceCount]bool
	stored      int
	container   *multipart.Container
}

// NewConduit создаёт провод, подключённый к граням faces
func NewConduit(faces ...vec.Face) *Conduit {
	c := &Conduit{}
	for _, f := range faces {
		if f.Valid() {
			c.connections[f] = true
		}
	}
	return c
}

func (c *Conduit) Kind() multipart.PartKind { return ConduitKind }
func (c *Conduit) Slot() multipart.PartSlot { return multipart.SlotCenter }

// Connected сообщает, подключён ли провод к грани
func (c *Conduit) Connected(f vec.Face) bool {
	return f.Valid() && c.connections[f]
}

func (c *Conduit) Boxes() []vec.Box {
	boxes := []vec.Box{vec.NewBox(coreMin, coreMin, coreMin, coreMax, coreMax, coreMax)}
	for _, f := range vec.AllFaces {
		if c.connections[f] {
			boxes = append(boxes, armBox(f))
		}
	}
	return boxes
}

// armBox: отвод от ядра до грани клетки
func armBox(f vec.Face) vec.Box {
	switch f {
	case vec.FaceDown:
		return vec.NewBox(coreMin, 0, coreMin, coreMax, coreMin, coreMax)
	case vec.FaceUp:
		return vec.NewBox(coreMin, coreMax, coreMin, coreMax, 1, coreMax)
	case vec.FaceNorth:
		return vec.NewBox(coreMin, coreMin, 0, coreMax, coreMax, coreMin)
	case vec.FaceSouth:
		return vec.NewBox(coreMin, coreMin, coreMax, coreMax, coreMax, 1)
	case vec.FaceWest:
		return vec.NewBox(0, coreMin, coreMin, coreMin, coreMax, coreMax)
	case vec.FaceEast:
		return vec.NewBox(coreMax, coreMin, coreMin, 1, coreMax, coreMax)
	}
	return vec.Box{}
}

func (c *Conduit) HasCapability(kind capability.Kind, face vec.Face) bool {
	return kind == capability.Energy && c.Connected(face)
}

func (c *Conduit) Capability(kind capability.Kind, face vec.Face) any {
	if !c.HasCapability(kind, face) {
		return nil
	}
	return capability.EnergyStorage(c)
}

// BindContainer запоминает контейнер для оповещений об изменениях
func (c *Conduit) BindContainer(container *multipart.Container) {
	c.container = container
}

// Orient подключает провод по оси грани
func (c *Conduit) Orient(face vec.Face, hit vec.Vec3Float) {
	c.connections[face] = true
	c.connections[face.Opposite()] = true
}

// Tick теряет часть накопленной энергии
func (c *Conduit) Tick(container *multipart.Container) {
	if c.stored == 0 {
		return
	}
	c.stored -= ConduitLoss
	if c.stored < 0 {
		c.stored = 0
	}
	container.MarkChanged(c)
}

func (c *Conduit) Stored() int   { return c.stored }
func (c *Conduit) Capacity() int { return ConduitCapacity }

// Receive принимает энергию в пределах свободной ёмкости
func (c *Conduit) Receive(amount int) int {
	if amount <= 0 {
		return 0
	}
	accepted := ConduitCapacity - c.stored
	if amount < accepted {
		accepted = amount
	}
	if accepted > 0 {
		c.stored += accepted
		c.changed()
	}
	return accepted
}

// Extract отдаёт энергию из буфера
func (c *Conduit) Extract(amount int) int {
	if amount <= 0 {
		return 0
	}
	given := c.stored
	if amount < given {
		given = amount
	}
	if given > 0 {
		c.stored -= given
		c.changed()
	}
	return given
}

func (c *Conduit) changed() {
	if c.container != nil {
		c.container.MarkChanged(c)
	}
}

func (c *Conduit) WriteState() multipart.State {
	faces := make([]interface{}, 0, vec.FaceCount)
	for _, f := range vec.AllFaces {
		if c.connections[f] {
			faces = append(faces, f.String())
		}
	}
	return multipart.State{
		"stored":      c.stored,
		"connections": faces,
	}
}

func (c *Conduit) ReadState(state multipart.State) error {
	if stored, ok := state.Int("stored"); ok {
		c.stored = stored
	}
	if faces, ok := state["connections"].([]interface{}); ok {
		c.connections = [vec.FaceCount]bool{}
		for _, raw := range faces {
			name, _ := raw.(string)
			f, err := vec.ParseFace(name)
			if err != nil {
				return err
			}
			c.connections[f] = true
		}
	}
	return nil
}
