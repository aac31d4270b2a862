package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/mmo-multipart/internal/capability"
	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/observability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// ErrMultiCell: операция над обычным блоком в многосоставной клетке
var ErrMultiCell = errors.New("клетка многосоставная")

// World хранит загруженные чанки и служит хозяином многосоставных клеток.
// Изменения выполняются из потока симуляции, чтение доступно из любых горутин.
type World struct {
	chunks      map[vec.Vec2]*Chunk
	mu          sync.RWMutex
	store       CellStore
	conv        *multipart.ConversionService
	placement   *multipart.Placement
	currentTick uint64
	logger      *logging.Logger
}

// NewWorld создаёт мир. store может быть nil, тогда чанки не сохраняются.
// Слушатели подписываются на все многосоставные клетки.
func NewWorld(store CellStore, listeners ...multipart.Listener) *World {
	w := &World{
		chunks: make(map[vec.Vec2]*Chunk),
		store:  store,
		logger: logging.GetComponentLogger("world"),
	}
	w.conv = multipart.NewConversionService(w, listeners...)
	w.placement = multipart.NewPlacement(w, w.conv)
	return w
}

// Conversion возвращает сервис конверсии клеток
func (w *World) Conversion() *multipart.ConversionService {
	return w.conv
}

// chunk возвращает чанк клетки, при create создаёт пустой
func (w *World) chunk(coords vec.Vec2, create bool) *Chunk {
	w.mu.RLock()
	ch, ok := w.chunks[coords]
	w.mu.RUnlock()
	if ok || !create {
		return ch
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok = w.chunks[coords]; ok {
		return ch
	}
	ch = NewChunk(coords)
	w.chunks[coords] = ch
	return ch
}

// Cell возвращает клетку. Клетки незагруженных чанков пусты.
func (w *World) Cell(pos vec.Vec3) multipart.Cell {
	ch := w.chunk(pos.ToChunkCoords(), false)
	if ch == nil {
		return multipart.EmptyCell()
	}
	return ch.Cell(pos.LocalInChunk())
}

// SetCell заменяет клетку
func (w *World) SetCell(pos vec.Vec3, cell multipart.Cell) {
	ch := w.chunk(pos.ToChunkCoords(), true)
	prev := ch.SetCell(pos.LocalInChunk(), cell)

	switch {
	case prev.Kind != multipart.CellMulti && cell.Kind == multipart.CellMulti:
		observability.ActiveContainers.Inc()
	case prev.Kind == multipart.CellMulti && cell.Kind != multipart.CellMulti:
		observability.ActiveContainers.Dec()
	}
}

// SetBlock ставит обычный блок в пустую или одиночную клетку
func (w *World) SetBlock(pos vec.Vec3, b block.Block) error {
	if err := w.ensureLoaded(pos); err != nil {
		return err
	}
	if w.Cell(pos).Kind == multipart.CellMulti {
		return fmt.Errorf("%w: %s", ErrMultiCell, pos)
	}
	if !b.IsAir() && !block.IsValidBlockID(b.ID) {
		return fmt.Errorf("неизвестный блок %d", b.ID)
	}
	w.SetCell(pos, multipart.SingleCell(b))
	return nil
}

// BreakBlock очищает клетку вместе со всеми частями
func (w *World) BreakBlock(pos vec.Vec3) error {
	if err := w.ensureLoaded(pos); err != nil {
		return err
	}
	if w.Cell(pos).Kind == multipart.CellMulti {
		return w.conv.Destroy(pos)
	}
	w.SetCell(pos, multipart.EmptyCell())
	return nil
}

// Place устанавливает часть в клетку
func (w *World) Place(ctx context.Context, req multipart.PlaceRequest) (multipart.PartID, error) {
	if err := w.ensureLoaded(req.Pos); err != nil {
		return multipart.PartID{}, err
	}
	return w.placement.Place(ctx, req)
}

// RemovePart удаляет часть по идентификатору
func (w *World) RemovePart(pos vec.Vec3, id multipart.PartID) error {
	if err := w.ensureLoaded(pos); err != nil {
		return err
	}
	c, err := w.conv.ContainerAt(pos)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s не многосоставная", multipart.ErrPartNotFound, pos)
	}
	p, ok := c.PartFromID(id)
	if !ok {
		return fmt.Errorf("%w: %s в %s", multipart.ErrPartNotFound, id, pos)
	}
	return c.RemovePart(p)
}

// Transplant переносит части клетки в новый контейнер, сохраняя их идентификаторы
func (w *World) Transplant(pos vec.Vec3, canTurnIntoBlock bool, accept func(multipart.Part) bool) (*multipart.Container, error) {
	if err := w.ensureLoaded(pos); err != nil {
		return nil, err
	}
	return w.conv.Transplant(pos, canTurnIntoBlock, accept)
}

// Container возвращает контейнер клетки или nil
func (w *World) Container(pos vec.Vec3) *multipart.Container {
	cell := w.Cell(pos)
	if cell.Kind != multipart.CellMulti {
		return nil
	}
	return cell.Container
}

// Capability отвечает на запрос сервиса к грани клетки. Многосоставная клетка
// маршрутизирует запрос по частям, обычный блок отвечает своим поведением.
func (w *World) Capability(pos vec.Vec3, kind capability.Kind, face vec.Face) (any, bool) {
	cell := w.Cell(pos)
	switch cell.Kind {
	case multipart.CellMulti:
		if cell.Container == nil {
			return nil, false
		}
		return cell.Container.QueryCapability(kind, face)
	case multipart.CellSingle:
		behavior, ok := cell.Block.Behavior()
		if !ok {
			return nil, false
		}
		cp, ok := behavior.(block.CapabilityProvider)
		if !ok {
			return nil, false
		}
		return cp.Capability(kind, face, cell.Block.Payload)
	}
	return nil, false
}

// RenderBounds возвращает границы отрисовки клетки в мировых координатах
func (w *World) RenderBounds(pos vec.Vec3) (vec.Box, bool) {
	cell := w.Cell(pos)
	switch cell.Kind {
	case multipart.CellMulti:
		return cell.Container.RenderBounds(), true
	case multipart.CellSingle:
		shape := cell.Block.Shape()
		if len(shape) == 0 {
			return vec.Box{}, false
		}
		out := shape[0]
		for _, b := range shape[1:] {
			out = out.Union(b)
		}
		return out.Offset(pos), true
	}
	return vec.Box{}, false
}

// Tick обновляет многосоставные клетки загруженных чанков
func (w *World) Tick() {
	w.mu.Lock()
	w.currentTick++
	chunks := make([]*Chunk, 0, len(w.chunks))
	for _, ch := range w.chunks {
		chunks = append(chunks, ch)
	}
	w.mu.Unlock()

	// клетки снимаются заранее: тик может менять представление клеток
	var containers []*multipart.Container
	for _, ch := range chunks {
		for _, c := range ch.Containers() {
			if c.NeedsTick() {
				containers = append(containers, c)
			}
		}
	}
	for _, c := range containers {
		if w.Container(c.Pos()) != c {
			continue
		}
		c.Tick()
	}
}

// CurrentTick возвращает номер текущего тика
func (w *World) CurrentTick() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentTick
}

// ContainersInChunk возвращает многосоставные клетки чанка
func (w *World) ContainersInChunk(coords vec.Vec2) []*multipart.Container {
	ch := w.chunk(coords, false)
	if ch == nil {
		return nil
	}
	return ch.Containers()
}

// LoadedChunks возвращает координаты загруженных чанков
func (w *World) LoadedChunks() []vec.Vec2 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]vec.Vec2, 0, len(w.chunks))
	for coords := range w.chunks {
		out = append(out, coords)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

// IsLoaded проверяет, загружен ли чанк
func (w *World) IsLoaded(coords vec.Vec2) bool {
	return w.chunk(coords, false) != nil
}

// LoadChunk загружает клетки чанка из хранилища и сообщает частям о загрузке.
// Чанк считается загруженным только после успешного восстановления всех клеток:
// иначе следующее сохранение перезаписало бы хранилище неполным чанком.
func (w *World) LoadChunk(coords vec.Vec2) error {
	if w.IsLoaded(coords) {
		return nil
	}
	if w.store == nil {
		w.chunk(coords, true)
		return nil
	}

	records, err := w.store.LoadChunkCells(coords)
	if err != nil {
		return fmt.Errorf("ошибка загрузки чанка %v: %w", coords, err)
	}
	for _, rec := range records {
		if err := rec.validate(coords); err != nil {
			return fmt.Errorf("ошибка загрузки чанка %v: %w", coords, err)
		}
	}

	ch := w.chunk(coords, true)
	var restored []*multipart.Container
	for _, rec := range records {
		if rec.Kind == multipart.CellSingle.String() {
			w.SetCell(rec.Pos, multipart.SingleCell(*rec.Block))
			continue
		}
		c, err := w.conv.Restore(rec.Pos, *rec.Container)
		if err != nil {
			w.discard(coords)
			w.logger.Error("Чанк %v не загружен: клетка %s не восстановилась: %v", coords, rec.Pos, err)
			return fmt.Errorf("ошибка загрузки чанка %v: %w", coords, err)
		}
		restored = append(restored, c)
	}
	ch.ClearChanges()

	for _, c := range restored {
		c.OnLoaded()
	}
	w.logger.Debug("📦 Чанк %v загружен: %d клеток, %d многосоставных", coords, len(records), len(restored))
	return nil
}

// discard убирает недозагруженный чанк без сохранения
func (w *World) discard(coords vec.Vec2) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.chunks[coords]
	if !ok {
		return
	}
	ch.Each(func(_ vec.Vec3, cell multipart.Cell) {
		if cell.Kind == multipart.CellMulti {
			observability.ActiveContainers.Dec()
		}
	})
	delete(w.chunks, coords)
}

// ensureLoaded подгружает чанк клетки перед изменением
func (w *World) ensureLoaded(pos vec.Vec3) error {
	return w.LoadChunk(pos.ToChunkCoords())
}

// SaveChunk сохраняет изменённый чанк
func (w *World) SaveChunk(coords vec.Vec2) error {
	ch := w.chunk(coords, false)
	if ch == nil || w.store == nil || !ch.HasChanges() {
		return nil
	}

	records := make([]CellRecord, 0, ch.Len())
	ch.Each(func(local vec.Vec3, cell multipart.Cell) {
		if rec, ok := RecordOf(ch.WorldPos(local), cell); ok {
			records = append(records, rec)
		}
	})
	sort.Slice(records, func(i, j int) bool { return lessPos(records[i].Pos, records[j].Pos) })

	if err := w.store.SaveChunkCells(coords, records); err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v: %w", coords, err)
	}
	ch.ClearChanges()
	return nil
}

// SaveAll сохраняет все изменённые чанки
func (w *World) SaveAll() error {
	var errs []error
	for _, coords := range w.LoadedChunks() {
		if err := w.SaveChunk(coords); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnloadChunk сохраняет чанк, сообщает частям о выгрузке и убирает его из памяти
func (w *World) UnloadChunk(coords vec.Vec2) error {
	ch := w.chunk(coords, false)
	if ch == nil {
		return nil
	}
	if err := w.SaveChunk(coords); err != nil {
		return err
	}

	containers := ch.Containers()
	for _, c := range containers {
		c.OnUnloaded()
	}
	observability.ActiveContainers.Sub(float64(len(containers)))

	w.mu.Lock()
	delete(w.chunks, coords)
	w.mu.Unlock()
	return nil
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
