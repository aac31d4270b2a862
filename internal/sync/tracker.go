package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/observability"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// Source: мир, из которого трекер снимает полные описания клеток
type Source interface {
	Container(pos vec.Vec3) *multipart.Container
	ContainersInChunk(coords vec.Vec2) []*multipart.Container
}

// Tracker накапливает изменения частей и рассылает их наблюдателям чанков.
// Слушатель вызывается в потоке симуляции, Flush: там же после тика.
type Tracker struct {
	mu          sync.Mutex
	codec       *Codec
	out         Channel
	source      Source
	pending     map[vec.Vec3]*cellDelta
	order       []vec.Vec3
	subscribers map[string]*subscriberInfo
	logger      *logging.Logger
}

// cellDelta: изменения одной клетки, слитые по идентификатору части
type cellDelta struct {
	order   []multipart.PartID
	changes map[multipart.PartID]*PartDelta
}

// subscriberInfo: наблюдатель: круг чанков и то, что ему ещё надо прислать целиком
type subscriberInfo struct {
	peer      string
	center    vec.Vec2 // чанк в центре области
	radius    int      // радиус в чанках
	snapshots map[vec.Vec2]struct{}
	resyncs   map[vec.Vec3]struct{}
	dropped   map[vec.Vec2]struct{} // чанки, покинувшие область
}

// NewTracker создаёт трекер, отправляющий кадры через out
func NewTracker(codec *Codec, out Channel) *Tracker {
	return &Tracker{
		codec:       codec,
		out:         out,
		pending:     make(map[vec.Vec3]*cellDelta),
		subscribers: make(map[string]*subscriberInfo),
		logger:      logging.GetSyncLogger(),
	}
}

// SetSource указывает мир для полных снимков
func (t *Tracker) SetSource(src Source) {
	t.mu.Lock()
	t.source = src
	t.mu.Unlock()
}

// PartAdded реализует multipart.Listener
func (t *Tracker) PartAdded(c *multipart.Container, id multipart.PartID, p multipart.Part) {
	t.record(c.Pos(), PartDelta{ID: id, Op: OpAdd, Slot: p.Slot(), Kind: p.Kind(), State: p.WriteState().Clone()})
}

// PartRemoved реализует multipart.Listener
func (t *Tracker) PartRemoved(c *multipart.Container, id multipart.PartID, p multipart.Part) {
	t.record(c.Pos(), PartDelta{ID: id, Op: OpRemove, Slot: p.Slot()})
}

// PartChanged реализует multipart.Listener
func (t *Tracker) PartChanged(c *multipart.Container, id multipart.PartID, p multipart.Part) {
	t.record(c.Pos(), PartDelta{ID: id, Op: OpUpdate, Slot: p.Slot(), Kind: p.Kind(), State: p.WriteState().Clone()})
}

// record сливает изменение с уже накопленными для той же части
func (t *Tracker) record(pos vec.Vec3, d PartDelta) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cd, ok := t.pending[pos]
	if !ok {
		cd = &cellDelta{changes: make(map[multipart.PartID]*PartDelta)}
		t.pending[pos] = cd
		t.order = append(t.order, pos)
	}

	prev, ok := cd.changes[d.ID]
	if !ok {
		cd.changes[d.ID] = &d
		cd.order = append(cd.order, d.ID)
		return
	}

	switch {
	case prev.Op == OpAdd && d.Op == OpRemove:
		// клиенты эту часть не видели
		delete(cd.changes, d.ID)
	case prev.Op == OpAdd:
		prev.State = d.State
	case d.Op == OpRemove:
		*prev = d
	default:
		prev.State = d.State
	}
}

// Observe задаёт область наблюдения peer. Чанки, вошедшие в область,
// получат полные снимки при следующем Flush, покинувшие: Unobserve.
func (t *Tracker) Observe(peer string, center vec.Vec2, radius int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, exists := t.subscribers[peer]
	if !exists {
		sub = &subscriberInfo{
			peer:      peer,
			snapshots: make(map[vec.Vec2]struct{}),
			resyncs:   make(map[vec.Vec3]struct{}),
			dropped:   make(map[vec.Vec2]struct{}),
		}
		t.subscribers[peer] = sub
	}

	if exists {
		for _, chunk := range chunksAround(sub.center, sub.radius) {
			if !chunk.WithinRadius(center, radius) {
				sub.dropped[chunk] = struct{}{}
			}
		}
	}

	for _, chunk := range chunksAround(center, radius) {
		if exists && chunk.WithinRadius(sub.center, sub.radius) {
			continue
		}
		sub.snapshots[chunk] = struct{}{}
	}
	for chunk := range sub.snapshots {
		if !chunk.WithinRadius(center, radius) {
			delete(sub.snapshots, chunk)
		}
	}

	sub.center = center
	sub.radius = radius
	t.logger.Debug("Клиент %s наблюдает чанки: центр=%v, радиус=%d", peer, center, radius)
}

// chunksAround перечисляет чанки круга
func chunksAround(center vec.Vec2, radius int) []vec.Vec2 {
	var out []vec.Vec2
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			chunk := vec.Vec2{X: center.X + dx, Y: center.Y + dz}
			if chunk.WithinRadius(center, radius) {
				out = append(out, chunk)
			}
		}
	}
	return out
}

// Forget убирает наблюдателя
func (t *Tracker) Forget(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, peer)
	t.logger.Debug("Клиент %s больше не наблюдает чанки", peer)
}

// RequestResync ставит полный снимок клетки в очередь для peer
func (t *Tracker) RequestResync(peer string, pos vec.Vec3) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subscribers[peer]
	if !ok {
		return fmt.Errorf("resync от %s: клиент не наблюдает чанки", peer)
	}
	sub.resyncs[pos] = struct{}{}
	observability.SyncResyncs.Inc()
	t.logger.Info("🔁 Клиент %s запросил снимок клетки %s", peer, pos)
	return nil
}

// outgoing: кадр, который надо отправить после снятия блокировки
type outgoing struct {
	peer string
	msg  Message
}

// Flush отправляет накопленные изменения: сначала снимки новых
// наблюдателей и запросов resync, затем дельты.
func (t *Tracker) Flush(ctx context.Context) error {
	queue := t.collect()
	if len(queue) == 0 {
		return nil
	}

	var errs []error
	frames := make(map[Message][]byte)
	for _, o := range queue {
		frame, ok := frames[o.msg]
		if !ok {
			var err error
			if frame, err = t.codec.Encode(o.msg); err != nil {
				errs = append(errs, fmt.Errorf("кодирование %s для %s: %w", o.msg.Kind(), o.msg.CellPos(), err))
				t.logger.Error("Ошибка кодирования %s %s: %v", o.msg.Kind(), o.msg.CellPos(), err)
				continue
			}
			frames[o.msg] = frame
		}

		if err := t.out.Send(ctx, o.peer, frame); err != nil {
			errs = append(errs, fmt.Errorf("отправка %s клиенту %s: %w", o.msg.Kind(), o.peer, err))
			t.logger.Warn("Не удалось отправить %s клиенту %s: %v", o.msg.Kind(), o.peer, err)
			continue
		}
		observability.SyncFramesSent.WithLabelValues(o.msg.Kind().String()).Inc()
		observability.SyncBytesSent.Add(float64(len(frame)))
	}
	return errors.Join(errs...)
}

// collect забирает накопленное и решает, кому что отправить
func (t *Tracker) collect() []outgoing {
	t.mu.Lock()
	defer t.mu.Unlock()

	deltas := make([]*Delta, 0, len(t.order))
	for _, pos := range t.order {
		cd := t.pending[pos]
		d := &Delta{Pos: pos}
		for _, id := range cd.order {
			if ch, ok := cd.changes[id]; ok {
				d.Changes = append(d.Changes, *ch)
			}
		}
		if len(d.Changes) > 0 {
			deltas = append(deltas, d)
		}
	}
	t.pending = make(map[vec.Vec3]*cellDelta)
	t.order = t.order[:0]

	peers := make([]string, 0, len(t.subscribers))
	for peer := range t.subscribers {
		peers = append(peers, peer)
	}
	sort.Strings(peers)

	var queue []outgoing
	for _, peer := range peers {
		sub := t.subscribers[peer]
		queue = append(queue, t.dropsFor(sub)...)
		full := t.snapshotsFor(sub)
		queue = append(queue, full...)

		for _, d := range deltas {
			chunk := d.Pos.ToChunkCoords()
			if !chunk.WithinRadius(sub.center, sub.radius) {
				continue
			}
			if coveredBy(full, d.Pos) {
				continue
			}
			queue = append(queue, outgoing{peer: peer, msg: d})
		}
	}
	return queue
}

// dropsFor сообщает о чанках, покинувших область. Уходят раньше снимков,
// чтобы вернувшийся чанк собирался заново.
func (t *Tracker) dropsFor(sub *subscriberInfo) []outgoing {
	if len(sub.dropped) == 0 {
		return nil
	}
	chunks := make([]vec.Vec2, 0, len(sub.dropped))
	for chunk := range sub.dropped {
		chunks = append(chunks, chunk)
	}
	sortChunks(chunks)

	out := make([]outgoing, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, outgoing{peer: sub.peer, msg: &Unobserve{Chunk: chunk}})
	}
	sub.dropped = make(map[vec.Vec2]struct{})
	return out
}

// snapshotsFor снимает клетки новых чанков и запрошенные клетки наблюдателя
func (t *Tracker) snapshotsFor(sub *subscriberInfo) []outgoing {
	if len(sub.snapshots) == 0 && len(sub.resyncs) == 0 {
		return nil
	}
	if t.source == nil {
		t.logger.Warn("Снимки для %s отложены: мир не подключён", sub.peer)
		return nil
	}

	var out []outgoing
	chunks := make([]vec.Vec2, 0, len(sub.snapshots))
	for chunk := range sub.snapshots {
		chunks = append(chunks, chunk)
	}
	sortChunks(chunks)
	for _, chunk := range chunks {
		for _, c := range t.source.ContainersInChunk(chunk) {
			out = append(out, outgoing{peer: sub.peer, msg: &Snapshot{Pos: c.Pos(), Parts: c.Describe()}})
		}
	}

	positions := make([]vec.Vec3, 0, len(sub.resyncs))
	for pos := range sub.resyncs {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return lessPos(positions[i], positions[j]) })
	for _, pos := range positions {
		if coveredBy(out, pos) {
			continue
		}
		snap := &Snapshot{Pos: pos}
		if c := t.source.Container(pos); c != nil {
			snap.Parts = c.Describe()
		}
		out = append(out, outgoing{peer: sub.peer, msg: snap})
	}

	sub.snapshots = make(map[vec.Vec2]struct{})
	sub.resyncs = make(map[vec.Vec3]struct{})
	return out
}

func coveredBy(full []outgoing, pos vec.Vec3) bool {
	for _, o := range full {
		if o.msg.CellPos() == pos {
			return true
		}
	}
	return false
}

func sortChunks(chunks []vec.Vec2) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].X != chunks[j].X {
			return chunks[i].X < chunks[j].X
		}
		return chunks[i].Y < chunks[j].Y
	})
}

func lessPos(a, b vec.Vec3) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// PendingChanges возвращает количество изменений, ожидающих отправки
func (t *Tracker) PendingChanges() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, cd := range t.pending {
		count += len(cd.changes)
	}
	return count
}

// Subscribers возвращает количество наблюдателей
func (t *Tracker) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}
