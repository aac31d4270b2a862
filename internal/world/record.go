package world

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// CellRecord: сохраняемое состояние непустой клетки
type CellRecord struct {
	Pos       vec.Vec3                   `json:"pos"`
	Kind      string                     `json:"kind"`
	Block     *block.Block               `json:"block,omitempty"`
	Container *multipart.ContainerRecord `json:"container,omitempty"`
}

// CellStore: постоянное хранилище клеток по чанкам
type CellStore interface {
	LoadChunkCells(coords vec.Vec2) ([]CellRecord, error)
	SaveChunkCells(coords vec.Vec2, records []CellRecord) error
}

// RecordOf снимает сохраняемое состояние клетки
func RecordOf(pos vec.Vec3, cell multipart.Cell) (CellRecord, bool) {
	rec := CellRecord{Pos: pos, Kind: cell.Kind.String()}
	switch cell.Kind {
	case multipart.CellSingle:
		b := cell.Block.Clone()
		rec.Block = &b
	case multipart.CellMulti:
		if cell.Container == nil {
			return rec, false
		}
		cr := cell.Container.WriteRecord()
		rec.Container = &cr
	default:
		return rec, false
	}
	return rec, true
}

func (r CellRecord) validate(coords vec.Vec2) error {
	if r.Pos.ToChunkCoords() != coords {
		return fmt.Errorf("запись клетки %s вне чанка %v", r.Pos, coords)
	}
	switch r.Kind {
	case multipart.CellSingle.String():
		if r.Block == nil {
			return fmt.Errorf("запись клетки %s без блока", r.Pos)
		}
	case multipart.CellMulti.String():
		if r.Container == nil {
			return fmt.Errorf("%w: запись клетки %s без контейнера", multipart.ErrInvariant, r.Pos)
		}
	default:
		return fmt.Errorf("неизвестный вид клетки %q в %s", r.Kind, r.Pos)
	}
	return nil
}
