package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-multipart/internal/cache"
	"github.com/annel0/mmo-multipart/internal/eventbus"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/multipart/parts"
	mpsync "github.com/annel0/mmo-multipart/internal/sync"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
)

var cellPos = vec.Vec3{X: 1, Y: 2, Z: 3}

// memStore: хранилище чанков в памяти
type memStore struct {
	mu     sync.Mutex
	chunks map[vec.Vec2][]world.CellRecord
}

func (s *memStore) LoadChunkCells(coords vec.Vec2) ([]world.CellRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[coords], nil
}

func (s *memStore) SaveChunkCells(coords vec.Vec2, records []world.CellRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[coords] = records
	return nil
}

type harness struct {
	auth      *Authority
	world     *world.World
	out       *mpsync.MemoryChannel
	codec     *mpsync.Codec
	snapshots *cache.CellSnapshots
	events    chan *eventbus.Envelope
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	out := mpsync.NewMemoryChannel()
	sm, err := mpsync.NewManager(mpsync.Config{NodeID: "test", CompressAbove: mpsync.DefaultCompressAbove, Out: out})
	require.NoError(t, err)
	t.Cleanup(sm.Stop)

	snaps := cache.NewCellSnapshots(nil, nil, time.Minute)
	w := world.NewWorld(&memStore{chunks: make(map[vec.Vec2][]world.CellRecord)}, sm.Tracker(), snaps)

	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { _ = bus.Close() })
	events := make(chan *eventbus.Envelope, 64)
	_, err = bus.Subscribe(context.Background(), eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		events <- ev
	})
	require.NoError(t, err)

	cfg.NodeID = "test"
	a := NewAuthority(cfg, w, sm, snaps, bus)
	t.Cleanup(a.Stop)
	return &harness{auth: a, world: w, out: out, codec: sm.Codec(), snapshots: snaps, events: events}
}

func (h *harness) send(t *testing.T, peer string, m mpsync.Message) {
	t.Helper()
	frame, err := h.codec.Encode(m)
	require.NoError(t, err)
	h.auth.OnFrame(peer, frame)
}

func (h *harness) received(t *testing.T, peer string) []mpsync.Message {
	t.Helper()
	var out []mpsync.Message
	for _, frame := range h.out.Drain(peer) {
		msg, err := h.codec.Decode(frame)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

// waitEvent ждёт событие аудита нужного типа
func (h *harness) waitEvent(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-h.events:
			if env.EventType != eventType {
				continue
			}
			var ev AuditEvent
			require.NoError(t, json.Unmarshal(env.Payload, &ev))
			return ev
		case <-deadline:
			t.Fatalf("событие %s не пришло", eventType)
		}
	}
}

func TestPlaceRequestReplicatesAndSnapshots(t *testing.T) {
	h := newHarness(t, Config{ViewRadius: 1})
	ctx := context.Background()

	h.auth.OnConnect("p1")
	h.auth.Step(ctx)
	h.waitEvent(t, EventPeerConnected)
	h.received(t, "p1")

	h.send(t, "p1", &mpsync.Place{Pos: cellPos, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	h.auth.Step(ctx)

	c := h.world.Container(cellPos)
	require.NotNil(t, c)
	assert.Equal(t, 1, c.Len())

	var delta *mpsync.Delta
	for _, m := range h.received(t, "p1") {
		if d, ok := m.(*mpsync.Delta); ok && d.Pos == cellPos {
			delta = d
		}
	}
	require.NotNil(t, delta, "клиент должен получить дельту")
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, mpsync.OpAdd, delta.Changes[0].Op)

	data, err := h.snapshots.Get(ctx, cellPos)
	require.NoError(t, err)
	var view cache.CellView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, multipart.CellMulti.String(), view.Kind)
	require.Len(t, view.Parts, 1)

	ev := h.waitEvent(t, EventPartPlaced)
	assert.Equal(t, "p1", ev.Peer)
	require.NotNil(t, ev.Pos)
	assert.Equal(t, cellPos, *ev.Pos)
	assert.Equal(t, parts.CoverKind, ev.Kind)

	stats := h.auth.GameStats()
	assert.Equal(t, 1, stats.Peers)
	assert.Equal(t, 1, stats.Containers)
	assert.Equal(t, h.world.CurrentTick(), stats.Tick)
}

func TestRejectedPlacementIsAudited(t *testing.T) {
	h := newHarness(t, Config{ViewRadius: 1})
	ctx := context.Background()

	h.send(t, "p1", &mpsync.Place{Pos: cellPos, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	h.send(t, "p1", &mpsync.Place{Pos: cellPos, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	h.auth.Step(ctx)

	ev := h.waitEvent(t, EventPlacementRejected)
	assert.Equal(t, "p1", ev.Peer)
	assert.NotEmpty(t, ev.Error)
	assert.Equal(t, 1, h.world.Container(cellPos).Len())

	// снятие несуществующей части тоже отклоняется
	h.send(t, "p1", &mpsync.Remove{Pos: cellPos, ID: multipart.PartID{}})
	h.auth.Step(ctx)
	h.waitEvent(t, EventPlacementRejected)
	assert.Equal(t, 1, h.world.Container(cellPos).Len())
}

func TestRemoveAndResync(t *testing.T) {
	h := newHarness(t, Config{ViewRadius: 1})
	ctx := context.Background()

	h.send(t, "p1", &mpsync.Place{Pos: cellPos, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	h.auth.Step(ctx)
	h.received(t, "p1")

	h.send(t, "p1", &mpsync.Resync{Pos: cellPos})
	h.auth.Step(ctx)
	var snap *mpsync.Snapshot
	for _, m := range h.received(t, "p1") {
		if s, ok := m.(*mpsync.Snapshot); ok && s.Pos == cellPos {
			snap = s
		}
	}
	require.NotNil(t, snap)
	require.Len(t, snap.Parts, 1)

	h.send(t, "p1", &mpsync.Remove{Pos: cellPos, ID: snap.Parts[0].ID})
	h.auth.Step(ctx)
	assert.Nil(t, h.world.Container(cellPos))
	h.waitEvent(t, EventPartRemoved)

	data, err := h.snapshots.Get(ctx, cellPos)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"empty"`)
}

func TestViewFollowsActivityAndIdleChunksUnload(t *testing.T) {
	h := newHarness(t, Config{ViewRadius: 1, UnloadIdle: true})
	ctx := context.Background()

	far := vec.Vec3{X: 16 * 40, Y: 2, Z: 16 * 40}
	h.send(t, "p1", &mpsync.Place{Pos: cellPos, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	h.send(t, "p1", &mpsync.Place{Pos: far, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	h.auth.Step(ctx)

	require.NotNil(t, h.world.Container(far))
	assert.True(t, h.world.IsLoaded(cellPos.ToChunkCoords()))

	// область клиента ушла к far, старый чанк никто не наблюдает
	h.auth.Save()
	assert.False(t, h.world.IsLoaded(cellPos.ToChunkCoords()))
	assert.True(t, h.world.IsLoaded(far.ToChunkCoords()))

	// после повторной загрузки часть на месте
	h.send(t, "p1", &mpsync.Resync{Pos: cellPos})
	h.auth.Step(ctx)
	require.NotNil(t, h.world.Container(cellPos))
	assert.Equal(t, 1, h.world.Container(cellPos).Len())
}

func TestDisconnectForgetsPeer(t *testing.T) {
	h := newHarness(t, Config{ViewRadius: 1})
	ctx := context.Background()

	h.auth.OnConnect("p1")
	h.auth.Step(ctx)
	h.auth.OnDisconnect("p1")
	h.auth.Step(ctx)
	h.waitEvent(t, EventPeerDisconnected)

	h.received(t, "p1")
	h.send(t, "p2", &mpsync.Place{Pos: cellPos, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	h.auth.Step(ctx)
	assert.Empty(t, h.received(t, "p1"))
	assert.Equal(t, 1, h.auth.GameStats().Peers)
}

func TestInboundOverflowDrops(t *testing.T) {
	h := newHarness(t, Config{InboundQueue: 2})

	h.auth.OnConnect("p1")
	h.auth.OnConnect("p2")
	h.auth.OnConnect("p3")
	assert.Equal(t, uint64(1), h.auth.Dropped())
	assert.Equal(t, 2, h.auth.GameStats().InboundQueue)

	// кадр сервера от клиента отбрасывается при разборе
	frame, err := h.codec.Encode(&mpsync.Delta{Pos: cellPos})
	require.NoError(t, err)
	h.auth.OnFrame("p1", frame)
	assert.Equal(t, 2, h.auth.GameStats().InboundQueue)
}

func TestRunStopsAndSaves(t *testing.T) {
	h := newHarness(t, Config{TickRate: 100, AutosaveInterval: 10 * time.Millisecond})

	h.auth.Start(context.Background())
	h.send(t, "p1", &mpsync.Place{Pos: cellPos, Face: vec.FaceNorth, PartKind: parts.CoverKind})
	require.Eventually(t, func() bool {
		return h.auth.GameStats().Containers == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.auth.Stop()

	assert.Greater(t, h.auth.GameStats().Tick, uint64(0))
}
