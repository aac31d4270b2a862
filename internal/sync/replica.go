package sync

import (
	"errors"
	"fmt"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// ErrDesync: реплика не может применить изменение, нужен полный снимок клетки
var ErrDesync = errors.New("sync: реплика разошлась с сервером")

// Replica: клиентская копия многосоставных клеток.
// Применение сообщений идемпотентно по идентификатору части.
type Replica struct {
	cells      map[vec.Vec3]*multipart.Container
	tombstones map[multipart.PartID]struct{}
	logger     *logging.Logger
}

// NewReplica создаёт пустую реплику
func NewReplica() *Replica {
	return &Replica{
		cells:      make(map[vec.Vec3]*multipart.Container),
		tombstones: make(map[multipart.PartID]struct{}),
		logger:     logging.GetSyncLogger(),
	}
}

// Container возвращает копию клетки или nil, если клетка не многосоставная
func (r *Replica) Container(pos vec.Vec3) *multipart.Container {
	return r.cells[pos]
}

// Len возвращает число многосоставных клеток
func (r *Replica) Len() int {
	return len(r.cells)
}

// Removed сообщает, удалена ли часть с этим идентификатором
func (r *Replica) Removed(id multipart.PartID) bool {
	_, ok := r.tombstones[id]
	return ok
}

// Apply применяет серверное сообщение
func (r *Replica) Apply(m Message) error {
	switch msg := m.(type) {
	case *Snapshot:
		return r.ApplySnapshot(msg)
	case *Delta:
		return r.ApplyDelta(msg)
	case *Unobserve:
		r.DropChunk(msg.Chunk)
		return nil
	}
	return fmt.Errorf("реплика не принимает %s", m.Kind())
}

// ApplySnapshot заменяет клетку целиком. Части, которых нет в снимке, считаются удалёнными.
func (r *Replica) ApplySnapshot(s *Snapshot) error {
	old := r.cells[s.Pos]
	delete(r.cells, s.Pos)

	present := make(map[multipart.PartID]struct{}, len(s.Parts))
	for _, d := range s.Parts {
		present[d.ID] = struct{}{}
		delete(r.tombstones, d.ID)
	}
	if old != nil {
		for _, p := range old.Parts() {
			if id, ok := old.PartID(p); ok {
				if _, keep := present[id]; !keep {
					r.tombstones[id] = struct{}{}
				}
			}
		}
	}

	if len(s.Parts) == 0 {
		return nil
	}

	c := multipart.NewContainer(s.Pos, nil, true)
	if err := c.ApplyDescription(s.Parts); err != nil {
		return fmt.Errorf("%w: снимок %s не применяется: %v", ErrDesync, s.Pos, err)
	}
	r.cells[s.Pos] = c
	return nil
}

// ApplyDelta применяет изменения клетки. Повторное добавление обновляет часть,
// изменения удалённых частей игнорируются, изменение неизвестной части даёт ErrDesync.
func (r *Replica) ApplyDelta(d *Delta) error {
	c := r.cells[d.Pos]
	if c == nil {
		c = multipart.NewContainer(d.Pos, nil, true)
	}
	defer func() {
		if c.Len() == 0 {
			delete(r.cells, d.Pos)
		} else {
			r.cells[d.Pos] = c
		}
	}()

	for _, ch := range d.Changes {
		if err := r.applyChange(c, ch); err != nil {
			return fmt.Errorf("клетка %s: %w", d.Pos, err)
		}
	}
	return nil
}

func (r *Replica) applyChange(c *multipart.Container, ch PartDelta) error {
	if _, dead := r.tombstones[ch.ID]; dead {
		return nil
	}

	p, known := c.PartFromID(ch.ID)
	switch ch.Op {
	case OpRemove:
		r.tombstones[ch.ID] = struct{}{}
		if known {
			return c.RemovePart(p)
		}
		return nil
	case OpUpdate:
		if !known {
			return fmt.Errorf("%w: изменение неизвестной части %s", ErrDesync, ch.ID)
		}
		return r.readState(p, ch)
	case OpAdd:
		if known {
			return r.readState(p, ch)
		}
		part, err := decodePart(ch)
		if err != nil {
			return err
		}
		if !c.AddPartWithID(ch.ID, part) {
			return fmt.Errorf("%w: часть %s (%s) не помещается", ErrDesync, ch.ID, ch.Kind)
		}
		return nil
	}
	return fmt.Errorf("%w: неизвестная операция %s", ErrDesync, ch.Op)
}

// readState обновляет известную часть. Состояние сначала читается в новую
// часть того же типа: смена слота означает расхождение, и часть не трогается.
func (r *Replica) readState(p multipart.Part, ch PartDelta) error {
	if p.Kind() != ch.Kind {
		return fmt.Errorf("%w: часть %s сменила тип %s -> %s", ErrDesync, ch.ID, p.Kind(), ch.Kind)
	}
	if ch.Slot != p.Slot() {
		return fmt.Errorf("%w: часть %s в слоте %s, изменение для %s", ErrDesync, ch.ID, p.Slot(), ch.Slot)
	}
	if _, err := decodePart(ch); err != nil {
		return err
	}
	if err := p.ReadState(ch.State); err != nil {
		return fmt.Errorf("%w: состояние части %s: %v", ErrDesync, ch.ID, err)
	}
	return nil
}

// decodePart собирает часть из изменения и сверяет её слот с заявленным
func decodePart(ch PartDelta) (multipart.Part, error) {
	part, err := multipart.NewPart(ch.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDesync, err)
	}
	if err := part.ReadState(ch.State); err != nil {
		return nil, fmt.Errorf("%w: состояние части %s: %v", ErrDesync, ch.ID, err)
	}
	if part.Slot() != ch.Slot {
		return nil, fmt.Errorf("%w: часть %s заявлена в слоте %s, состояние даёт %s", ErrDesync, ch.ID, ch.Slot, part.Slot())
	}
	return part, nil
}

// DropChunk забывает клетки чанка, вышедшего из области наблюдения
func (r *Replica) DropChunk(coords vec.Vec2) {
	for pos := range r.cells {
		if pos.ToChunkCoords() == coords {
			delete(r.cells, pos)
		}
	}
	r.logger.Trace("Реплика забыла чанк %v", coords)
}
