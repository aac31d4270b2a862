package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/multipart/parts"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
	"github.com/annel0/mmo-multipart/internal/world/block"
	_ "github.com/annel0/mmo-multipart/internal/world/block/implementations"
)

func setupTestStorage(t *testing.T) *WorldStorage {
	tempDir, err := os.MkdirTemp("", "world-storage-test")
	require.NoError(t, err)

	storage, err := NewWorldStorage(tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}

	t.Cleanup(func() {
		storage.Close()
		os.RemoveAll(tempDir)
	})
	return storage
}

func TestSaveAndLoadChunkCells(t *testing.T) {
	storage := setupTestStorage(t)
	coords := vec.Vec2{X: 2, Y: -1}

	slab := block.NewBlock(block.SlabBlockID)
	cont := multipart.NewContainer(vec.Vec3{X: 33, Y: 5, Z: -7}, nil, true)
	_, ok := cont.AddPart(parts.NewCover(vec.FaceNorth, "oak"))
	require.True(t, ok)
	contRec := cont.WriteRecord()

	records := []world.CellRecord{
		{Pos: vec.Vec3{X: 32, Y: 5, Z: -16}, Kind: multipart.CellSingle.String(), Block: &slab},
		{Pos: vec.Vec3{X: 33, Y: 5, Z: -7}, Kind: multipart.CellMulti.String(), Container: &contRec},
	}
	require.NoError(t, storage.SaveChunkCells(coords, records))

	loaded, err := storage.LoadChunkCells(coords)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byPos := map[vec.Vec3]world.CellRecord{}
	for _, r := range loaded {
		byPos[r.Pos] = r
	}
	assert.Equal(t, block.SlabBlockID, byPos[records[0].Pos].Block.ID)
	require.NotNil(t, byPos[records[1].Pos].Container)
	assert.Equal(t, contRec.Parts[0].ID, byPos[records[1].Pos].Container.Parts[0].ID)
	assert.Equal(t, multipart.SlotPanelNorth, byPos[records[1].Pos].Container.Parts[0].Slot)

	// соседний чанк не задет
	other, err := storage.LoadChunkCells(vec.Vec2{X: 2, Y: 0})
	require.NoError(t, err)
	assert.Empty(t, other)

	// повторное сохранение убирает исчезнувшие клетки
	require.NoError(t, storage.SaveChunkCells(coords, records[:1]))
	loaded, err = storage.LoadChunkCells(coords)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	_, found, err := storage.LoadCell(records[1].Pos)
	require.NoError(t, err)
	assert.False(t, found)
	rec, found, err := storage.LoadCell(records[0].Pos)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "single", rec.Kind)
}

func TestSaveRejectsForeignCell(t *testing.T) {
	storage := setupTestStorage(t)
	b := block.NewBlock(block.StoneBlockID)
	err := storage.SaveChunkCells(vec.Vec2{}, []world.CellRecord{{Pos: vec.Vec3{X: 16}, Kind: "single", Block: &b}})
	assert.Error(t, err)
}

func TestWorldPersistsThroughBadger(t *testing.T) {
	storage := setupTestStorage(t)
	w := world.NewWorld(storage)
	pos := vec.Vec3{X: 3, Y: 10, Z: 4}
	coords := pos.ToChunkCoords()

	require.NoError(t, w.SetBlock(pos, block.NewBlock(block.LanternBlockID)))
	id, err := w.Place(context.Background(), multipart.PlaceRequest{Pos: pos, Face: vec.FaceUp, Kind: parts.CoverKind})
	require.NoError(t, err)
	require.NoError(t, w.UnloadChunk(coords))

	w2 := world.NewWorld(storage)
	require.NoError(t, w2.LoadChunk(coords))
	c := w2.Container(pos)
	require.NotNil(t, c)
	p, ok := c.PartFromID(id)
	require.True(t, ok)
	assert.Equal(t, parts.CoverKind, p.Kind())
	assert.Equal(t, 2, c.Len())
}

func TestClosedStorage(t *testing.T) {
	storage := setupTestStorage(t)
	require.NoError(t, storage.Close())
	_, err := storage.LoadChunkCells(vec.Vec2{})
	assert.Error(t, err)
}
