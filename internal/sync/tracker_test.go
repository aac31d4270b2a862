package sync

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/multipart/parts"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
)

var cellPos = vec.Vec3{X: 1, Y: 2, Z: 3}

type authority struct {
	world   *world.World
	tracker *Tracker
	out     *MemoryChannel
	codec   *Codec
}

func newAuthority(t *testing.T) *authority {
	t.Helper()
	codec := newCodec(t, DefaultCompressAbove)
	out := NewMemoryChannel()
	tr := NewTracker(codec, out)
	w := world.NewWorld(nil, tr)
	tr.SetSource(w)
	return &authority{world: w, tracker: tr, out: out, codec: codec}
}

func (a *authority) place(t *testing.T, pos vec.Vec3, face vec.Face, kind multipart.PartKind) multipart.PartID {
	t.Helper()
	id, err := a.world.Place(context.Background(), multipart.PlaceRequest{Pos: pos, Face: face, Kind: kind})
	require.NoError(t, err)
	return id
}

func (a *authority) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, a.tracker.Flush(context.Background()))
}

// received декодирует всё, что накопилось для peer
func (a *authority) received(t *testing.T, peer string) []Message {
	t.Helper()
	var out []Message
	for _, frame := range a.out.Drain(peer) {
		msg, err := a.codec.Decode(frame)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func TestObserveSendsSnapshotInsteadOfDelta(t *testing.T) {
	a := newAuthority(t)
	a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)

	a.tracker.Observe("p1", vec.Vec2{}, 1)
	a.flush(t)

	msgs := a.received(t, "p1")
	require.Len(t, msgs, 1)
	snap, ok := msgs[0].(*Snapshot)
	require.True(t, ok)
	assert.Equal(t, cellPos, snap.Pos)
	require.Len(t, snap.Parts, 1)
	assert.Equal(t, parts.CoverKind, snap.Parts[0].Kind)

	// после снимка приходят только дельты
	a.place(t, cellPos, vec.FaceUp, parts.ConduitKind)
	a.flush(t)
	msgs = a.received(t, "p1")
	require.Len(t, msgs, 1)
	delta := msgs[0].(*Delta)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, OpAdd, delta.Changes[0].Op)
	assert.Equal(t, parts.ConduitKind, delta.Changes[0].Kind)
	assert.Equal(t, multipart.SlotCenter, delta.Changes[0].Slot)
}

func TestChangesCoalescePerPart(t *testing.T) {
	a := newAuthority(t)
	a.tracker.Observe("p1", vec.Vec2{}, 1)
	a.flush(t)
	assert.Empty(t, a.received(t, "p1"))

	id := a.place(t, cellPos, vec.FaceUp, parts.ConduitKind)
	p, ok := a.world.Container(cellPos).PartFromID(id)
	require.True(t, ok)
	conduit := p.(*parts.Conduit)
	conduit.Receive(300)
	conduit.Extract(100)
	assert.Equal(t, 1, a.tracker.PendingChanges())

	a.flush(t)
	msgs := a.received(t, "p1")
	require.Len(t, msgs, 1)
	delta := msgs[0].(*Delta)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, OpAdd, delta.Changes[0].Op)
	stored, _ := delta.Changes[0].State.Int("stored")
	assert.Equal(t, 200, stored, "состояние снято в момент последнего изменения")

	// два изменения подряд дают одно update
	conduit.Receive(50)
	conduit.Receive(50)
	a.flush(t)
	msgs = a.received(t, "p1")
	require.Len(t, msgs, 1)
	delta = msgs[0].(*Delta)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, OpUpdate, delta.Changes[0].Op)
	stored, _ = delta.Changes[0].State.Int("stored")
	assert.Equal(t, 300, stored)
}

func TestAddThenRemoveSendsNothing(t *testing.T) {
	a := newAuthority(t)
	a.tracker.Observe("p1", vec.Vec2{}, 1)
	a.flush(t)

	id := a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)
	require.NoError(t, a.world.RemovePart(cellPos, id))
	assert.Equal(t, multipart.CellEmpty, a.world.Cell(cellPos).Kind)

	a.flush(t)
	assert.Empty(t, a.received(t, "p1"))
}

func TestUpdateThenRemoveSendsRemove(t *testing.T) {
	a := newAuthority(t)
	a.tracker.Observe("p1", vec.Vec2{}, 1)
	id := a.place(t, cellPos, vec.FaceUp, parts.ConduitKind)
	a.flush(t)
	a.received(t, "p1")

	p, _ := a.world.Container(cellPos).PartFromID(id)
	p.(*parts.Conduit).Receive(10)
	require.NoError(t, a.world.RemovePart(cellPos, id))
	a.flush(t)

	msgs := a.received(t, "p1")
	require.Len(t, msgs, 1)
	delta := msgs[0].(*Delta)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, id, delta.Changes[0].ID)
	assert.Equal(t, OpRemove, delta.Changes[0].Op)
}

func TestDeltasOnlyReachObserversInRadius(t *testing.T) {
	a := newAuthority(t)
	a.tracker.Observe("near", vec.Vec2{}, 1)
	a.tracker.Observe("far", vec.Vec2{X: 10, Y: 10}, 2)
	a.flush(t)
	assert.Equal(t, 2, a.tracker.Subscribers())

	a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)
	a.flush(t)
	assert.Len(t, a.received(t, "near"), 1)
	assert.Empty(t, a.received(t, "far"))

	// дальний наблюдатель подошёл и получает снимок
	a.tracker.Observe("far", vec.Vec2{X: 1, Y: 0}, 1)
	a.flush(t)
	msgs := a.received(t, "far")
	require.Len(t, msgs, 1)
	assert.IsType(t, &Snapshot{}, msgs[0])

	// повторный Observe с той же областью не шлёт снимки заново
	a.tracker.Observe("far", vec.Vec2{X: 1, Y: 0}, 1)
	a.flush(t)
	assert.Empty(t, a.received(t, "far"))

	a.tracker.Forget("far")
	a.place(t, cellPos, vec.FaceSouth, parts.CoverKind)
	a.flush(t)
	assert.Empty(t, a.received(t, "far"))
	assert.Len(t, a.received(t, "near"), 1)
}

func TestLeavingChunksAreUnobserved(t *testing.T) {
	a := newAuthority(t)
	replica := NewReplica()
	pump := func() {
		a.flush(t)
		for _, msg := range a.received(t, "p1") {
			require.NoError(t, replica.Apply(msg))
		}
	}

	a.tracker.Observe("p1", vec.Vec2{}, 1)
	id := a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)
	pump()
	require.NotNil(t, replica.Container(cellPos))

	// клиент ушёл: чанки старой области забываются
	a.tracker.Observe("p1", vec.Vec2{X: 10, Y: 10}, 1)
	a.flush(t)
	msgs := a.received(t, "p1")
	require.NotEmpty(t, msgs)
	for _, msg := range msgs {
		drop, ok := msg.(*Unobserve)
		require.True(t, ok, "ожидался Unobserve, получено %s", msg.Kind())
		assert.False(t, drop.Chunk.WithinRadius(vec.Vec2{X: 10, Y: 10}, 1))
		require.NoError(t, replica.Apply(msg))
	}
	assert.Nil(t, replica.Container(cellPos))

	// пока клиента нет, клетка опустела
	require.NoError(t, a.world.RemovePart(cellPos, id))
	pump()

	a.tracker.Observe("p1", vec.Vec2{}, 1)
	pump()
	assert.Nil(t, a.world.Container(cellPos))
	assert.Nil(t, replica.Container(cellPos))
	assert.Zero(t, replica.Len())
}

func TestReturningChunkIsDroppedBeforeSnapshot(t *testing.T) {
	a := newAuthority(t)
	a.tracker.Observe("p1", vec.Vec2{}, 0)
	a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)
	a.flush(t)
	a.received(t, "p1")

	// ушёл и вернулся до рассылки
	a.tracker.Observe("p1", vec.Vec2{X: 5}, 0)
	a.tracker.Observe("p1", vec.Vec2{}, 0)
	a.flush(t)

	msgs := a.received(t, "p1")
	kinds := make([]MsgKind, 0, len(msgs))
	for _, msg := range msgs {
		kinds = append(kinds, msg.Kind())
	}
	assert.Equal(t, []MsgKind{MsgUnobserve, MsgUnobserve, MsgSnapshot}, kinds)
	assert.Equal(t, vec.Vec2{}, msgs[0].(*Unobserve).Chunk)
	assert.Equal(t, vec.Vec2{X: 5}, msgs[1].(*Unobserve).Chunk)
}

func TestResyncSendsCurrentCell(t *testing.T) {
	a := newAuthority(t)
	assert.Error(t, a.tracker.RequestResync("ghost", cellPos))

	a.tracker.Observe("p1", vec.Vec2{}, 1)
	a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)
	a.place(t, cellPos, vec.FaceUp, parts.ConduitKind)
	a.flush(t)
	a.received(t, "p1")

	require.NoError(t, a.tracker.RequestResync("p1", cellPos))
	empty := vec.Vec3{X: 5, Y: 5, Z: 5}
	require.NoError(t, a.tracker.RequestResync("p1", empty))
	a.flush(t)

	msgs := a.received(t, "p1")
	require.Len(t, msgs, 2)
	first := msgs[0].(*Snapshot)
	assert.Equal(t, cellPos, first.Pos)
	assert.Len(t, first.Parts, 2)
	second := msgs[1].(*Snapshot)
	assert.Equal(t, empty, second.Pos)
	assert.Empty(t, second.Parts)
}

func TestReplicaConvergesWithAuthority(t *testing.T) {
	a := newAuthority(t)
	a.tracker.Observe("p1", vec.Vec2{}, 2)
	replica := NewReplica()
	pump := func() {
		a.flush(t)
		for _, msg := range a.received(t, "p1") {
			require.NoError(t, replica.Apply(msg))
		}
	}

	other := vec.Vec3{X: 20, Y: 1, Z: -4}
	a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)
	conduitID := a.place(t, cellPos, vec.FaceUp, parts.ConduitKind)
	a.place(t, other, vec.FaceDown, parts.SlabKind)
	pump()

	p, _ := a.world.Container(cellPos).PartFromID(conduitID)
	p.(*parts.Conduit).Receive(500)
	a.world.Tick()
	a.world.Tick()
	require.NoError(t, a.world.BreakBlock(other))
	pump()

	assert.Nil(t, replica.Container(other))
	assertSameCell(t, a.world.Container(cellPos), replica.Container(cellPos))

	rp, ok := replica.Container(cellPos).PartFromID(conduitID)
	require.True(t, ok)
	assert.Equal(t, 498, rp.(*parts.Conduit).Stored())
}

func TestReplicaConvergesUnderReordering(t *testing.T) {
	a := newAuthority(t)
	a.tracker.Observe("p1", vec.Vec2{}, 1)
	other := vec.Vec3{X: 4, Y: 2, Z: 9}
	north := a.place(t, cellPos, vec.FaceNorth, parts.CoverKind)
	a.flush(t)

	replica := NewReplica()
	for _, msg := range a.received(t, "p1") {
		require.IsType(t, &Snapshot{}, msg)
		require.NoError(t, replica.Apply(msg))
	}

	var deltas []*Delta
	collect := func() {
		a.flush(t)
		for _, msg := range a.received(t, "p1") {
			deltas = append(deltas, msg.(*Delta))
		}
	}

	south := a.place(t, cellPos, vec.FaceSouth, parts.CoverKind)
	conduitID := a.place(t, cellPos, vec.FaceUp, parts.ConduitKind)
	a.place(t, other, vec.FaceEast, parts.CoverKind)
	collect()

	p, _ := a.world.Container(cellPos).PartFromID(conduitID)
	conduit := p.(*parts.Conduit)
	conduit.Receive(300)
	require.NoError(t, a.world.RemovePart(cellPos, north))
	a.place(t, cellPos, vec.FaceWest, parts.CoverKind)
	a.place(t, other, vec.FaceDown, parts.ConduitKind)
	collect()

	conduit.Receive(100)
	require.NoError(t, a.world.RemovePart(cellPos, south))
	collect()

	// по одному изменению на сообщение, порядок внутри части сохраняется
	queues := make(map[multipart.PartID][]*Delta)
	var ids []multipart.PartID
	for _, d := range deltas {
		for _, ch := range d.Changes {
			if _, ok := queues[ch.ID]; !ok {
				ids = append(ids, ch.ID)
			}
			queues[ch.ID] = append(queues[ch.ID], &Delta{Pos: d.Pos, Changes: []PartDelta{ch}})
		}
	}
	require.Greater(t, len(ids), 3)

	rng := rand.New(rand.NewSource(42))
	for len(ids) > 0 {
		i := rng.Intn(len(ids))
		id := ids[i]
		require.NoError(t, replica.ApplyDelta(queues[id][0]))
		queues[id] = queues[id][1:]
		if len(queues[id]) == 0 {
			ids = append(ids[:i], ids[i+1:]...)
		}
	}

	for _, pos := range []vec.Vec3{cellPos, other} {
		want := a.world.Container(pos)
		got := replica.Container(pos)
		assertSameCell(t, want, got)
		for _, wp := range want.Parts() {
			id, _ := want.PartID(wp)
			gp, ok := got.PartFromID(id)
			require.True(t, ok)
			assert.Equal(t, wp.WriteState(), gp.WriteState(), "состояние части %s", id)
		}
	}
	assert.True(t, replica.Removed(north))
	assert.True(t, replica.Removed(south))
}

func assertSameCell(t *testing.T, want, got *multipart.Container) {
	t.Helper()
	require.NotNil(t, want)
	require.NotNil(t, got)
	wd, gd := want.Describe(), got.Describe()
	require.Len(t, gd, len(wd))
	for i := range wd {
		assert.Equal(t, wd[i].ID, gd[i].ID)
		assert.Equal(t, wd[i].Slot, gd[i].Slot)
		assert.Equal(t, wd[i].Kind, gd[i].Kind)
	}
}
