package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/multipart/parts"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

func setupSQLStore(t *testing.T) *SQLCellStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "cells.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	store, err := NewSQLCellStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStoreSaveAndLoad(t *testing.T) {
	store := setupSQLStore(t)
	coords := vec.Vec2{X: -1, Y: 3}

	slab := block.NewBlock(block.SlabBlockID)
	pos := vec.Vec3{X: -5, Y: 64, Z: 50}
	cont := multipart.NewContainer(pos, nil, true)
	_, ok := cont.AddPart(parts.NewCover(vec.FaceEast, "oak"))
	require.True(t, ok)
	contRec := cont.WriteRecord()

	records := []world.CellRecord{
		{Pos: vec.Vec3{X: -16, Y: 1, Z: 48}, Kind: multipart.CellSingle.String(), Block: &slab},
		{Pos: pos, Kind: multipart.CellMulti.String(), Container: &contRec},
	}
	require.NoError(t, store.SaveChunkCells(coords, records))

	loaded, err := store.LoadChunkCells(coords)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, records[0].Pos, loaded[0].Pos)
	require.NotNil(t, loaded[1].Container)
	assert.Equal(t, contRec.Parts[0].ID, loaded[1].Container.Parts[0].ID)

	empty, err := store.LoadChunkCells(vec.Vec2{X: 7, Y: 7})
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.SaveChunkCells(coords, records[1:]))
	_, found, err := store.LoadCell(records[0].Pos)
	require.NoError(t, err)
	assert.False(t, found)

	rec, found, err := store.LoadCell(pos)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "multi", rec.Kind)

	b := block.NewBlock(block.StoneBlockID)
	assert.Error(t, store.SaveChunkCells(vec.Vec2{}, []world.CellRecord{{Pos: vec.Vec3{X: 16}, Kind: "single", Block: &b}}))
}

func TestWorldPersistsThroughSQL(t *testing.T) {
	store := setupSQLStore(t)
	w := world.NewWorld(store)
	pos := vec.Vec3{X: 3, Y: 10, Z: 4}

	id, err := w.Place(context.Background(), multipart.PlaceRequest{Pos: pos, Face: vec.FaceWest, Kind: parts.CoverKind})
	require.NoError(t, err)
	require.NoError(t, w.UnloadChunk(pos.ToChunkCoords()))

	w2 := world.NewWorld(store)
	require.NoError(t, w2.LoadChunk(pos.ToChunkCoords()))
	c := w2.Container(pos)
	require.NotNil(t, c)
	_, ok := c.PartFromID(id)
	assert.True(t, ok)
}

func TestMariaDSN(t *testing.T) {
	dsn := MariaConfig{Host: "db", Port: 3306, Database: "world", Username: "game", Password: "secret"}.DSN()

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "world", parsed.DBName)
	assert.Equal(t, "game", parsed.User)
	assert.True(t, parsed.ParseTime)
}
