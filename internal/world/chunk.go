package world

import (
	"sync"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// ChunkSize: размер чанка по X и Z
const ChunkSize = 16

// Chunk представляет столб клеток 16x16 по X/Z. Хранятся только непустые клетки.
type Chunk struct {
	Coords vec.Vec2 // Координаты чанка в мире

	cells   map[vec.Vec3]multipart.Cell // Локальные координаты -> клетка
	Changes map[vec.Vec3]struct{}       // Изменённые клетки с последнего сохранения

	ChangeCounter int          // Счетчик изменений
	Mu            sync.RWMutex // Мьютекс для безопасного доступа
}

// NewChunk создаёт новый чанк с указанными координатами
func NewChunk(coords vec.Vec2) *Chunk {
	return &Chunk{
		Coords:  coords,
		cells:   make(map[vec.Vec3]multipart.Cell),
		Changes: make(map[vec.Vec3]struct{}),
	}
}

// Cell возвращает клетку по локальным координатам
func (c *Chunk) Cell(local vec.Vec3) multipart.Cell {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	if cell, ok := c.cells[local]; ok {
		return cell
	}
	return multipart.EmptyCell()
}

// SetCell устанавливает клетку и возвращает предыдущую
func (c *Chunk) SetCell(local vec.Vec3, cell multipart.Cell) multipart.Cell {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	prev, ok := c.cells[local]
	if !ok {
		prev = multipart.EmptyCell()
	}

	if cell.Kind == multipart.CellEmpty {
		delete(c.cells, local)
	} else {
		c.cells[local] = cell
	}
	c.Changes[local] = struct{}{}
	c.ChangeCounter++
	return prev
}

// Containers возвращает многосоставные клетки чанка
func (c *Chunk) Containers() []*multipart.Container {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	out := make([]*multipart.Container, 0)
	for _, cell := range c.cells {
		if cell.Kind == multipart.CellMulti && cell.Container != nil {
			out = append(out, cell.Container)
		}
	}
	return out
}

// Each обходит непустые клетки чанка под блокировкой чтения
func (c *Chunk) Each(fn func(local vec.Vec3, cell multipart.Cell)) {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	for local, cell := range c.cells {
		fn(local, cell)
	}
}

// Len возвращает число непустых клеток
func (c *Chunk) Len() int {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return len(c.cells)
}

// HasChanges возвращает true, если в чанке есть изменения
func (c *Chunk) HasChanges() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	return c.ChangeCounter > 0
}

// ClearChanges очищает список изменений
func (c *Chunk) ClearChanges() {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	c.Changes = make(map[vec.Vec3]struct{})
	c.ChangeCounter = 0
}

// WorldPos переводит локальные координаты клетки в мировые
func (c *Chunk) WorldPos(local vec.Vec3) vec.Vec3 {
	return vec.Vec3{
		X: c.Coords.X*ChunkSize + local.X,
		Y: local.Y,
		Z: c.Coords.Y*ChunkSize + local.Z,
	}
}
