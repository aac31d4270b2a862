package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/observability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
	"github.com/annel0/mmo-multipart/internal/world/block"
)

// CellView: снимок клетки для чтения снаружи (REST)
type CellView struct {
	Pos   vec.Vec3                    `json:"pos"`
	Kind  string                      `json:"kind"`
	Block *block.Block                `json:"block,omitempty"`
	Parts []multipart.PartDescription `json:"parts,omitempty"`
}

// ViewOfRecord строит снимок из сохранённой записи
func ViewOfRecord(rec world.CellRecord) CellView {
	view := CellView{Pos: rec.Pos, Kind: rec.Kind, Block: rec.Block}
	if rec.Container != nil {
		view.Parts = rec.Container.Parts
	}
	return view
}

// ViewOfCell строит снимок живой клетки. Вызывается из потока симуляции.
func ViewOfCell(pos vec.Vec3, cell multipart.Cell) CellView {
	rec, ok := world.RecordOf(pos, cell)
	if !ok {
		return CellView{Pos: pos, Kind: multipart.CellEmpty.String()}
	}
	return ViewOfRecord(rec)
}

// CellSource: клетки мира, читаемые из потока симуляции
type CellSource interface {
	Cell(pos vec.Vec3) multipart.Cell
}

// CellSnapshots держит JSON-снимки многосоставных клеток для чтения вне потока симуляции.
// Слушает контейнеры, помечая изменённые клетки; Capture снимает их состояние
// и раскладывает по локальному кешу и, если задан, общему remote.
type CellSnapshots struct {
	local  *MemoryCache
	remote CacheRepo
	cold   ColdStorage
	ttl    time.Duration

	mu    sync.Mutex
	dirty map[vec.Vec3]struct{}

	logger *logging.Logger
}

// NewCellSnapshots создаёт кеш снимков. remote и cold могут быть nil.
func NewCellSnapshots(remote CacheRepo, cold ColdStorage, ttl time.Duration) *CellSnapshots {
	return &CellSnapshots{
		local:  NewMemoryCache(ttl),
		remote: remote,
		cold:   cold,
		ttl:    ttl,
		dirty:  make(map[vec.Vec3]struct{}),
		logger: logging.GetComponentLogger("cache"),
	}
}

// PartAdded реализует multipart.Listener
func (s *CellSnapshots) PartAdded(c *multipart.Container, _ multipart.PartID, _ multipart.Part) {
	s.Touch(c.Pos())
}

// PartRemoved реализует multipart.Listener
func (s *CellSnapshots) PartRemoved(c *multipart.Container, _ multipart.PartID, _ multipart.Part) {
	s.Touch(c.Pos())
}

// PartChanged реализует multipart.Listener
func (s *CellSnapshots) PartChanged(c *multipart.Container, _ multipart.PartID, _ multipart.Part) {
	s.Touch(c.Pos())
}

// Touch помечает клетку для следующего Capture
func (s *CellSnapshots) Touch(pos vec.Vec3) {
	s.mu.Lock()
	s.dirty[pos] = struct{}{}
	s.mu.Unlock()
}

// Dirty возвращает число помеченных клеток
func (s *CellSnapshots) Dirty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Capture снимает помеченные клетки. Вызывается из потока симуляции после тика.
func (s *CellSnapshots) Capture(ctx context.Context, src CellSource) error {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	positions := make([]vec.Vec3, 0, len(s.dirty))
	for pos := range s.dirty {
		positions = append(positions, pos)
	}
	s.dirty = make(map[vec.Vec3]struct{})
	s.mu.Unlock()

	sort.Slice(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})

	items := make(map[string][]byte, len(positions))
	for _, pos := range positions {
		data, err := json.Marshal(ViewOfCell(pos, src.Cell(pos)))
		if err != nil {
			return fmt.Errorf("снимок клетки %s: %w", pos, err)
		}
		items[CellKey(pos)] = data
	}

	if err := s.local.BatchSet(ctx, items, s.ttl); err != nil {
		return err
	}
	if s.remote != nil {
		if err := s.remote.BatchSet(ctx, items, s.ttl); err != nil {
			return fmt.Errorf("общий кеш снимков: %w", err)
		}
	}
	s.logger.Trace("Снято %d клеток", len(items))
	return nil
}

// Get возвращает JSON-снимок клетки: локальный кеш, затем общий, затем cold.
// ErrCacheMiss означает, что клетка нигде не известна.
func (s *CellSnapshots) Get(ctx context.Context, pos vec.Vec3) ([]byte, error) {
	key := CellKey(pos)
	if data, err := s.local.Get(ctx, key); err == nil {
		observability.SnapshotCacheLookups.WithLabelValues("local").Inc()
		return data, nil
	}

	var (
		data []byte
		err  error
		tier string
	)
	switch {
	case s.remote != nil:
		data, err = s.remote.Get(ctx, key)
		tier = "remote"
	case s.cold != nil:
		data, err = s.cold.Load(ctx, key)
		tier = "cold"
	default:
		err = ErrCacheMiss
	}
	if err != nil {
		observability.SnapshotCacheLookups.WithLabelValues("miss").Inc()
		return nil, err
	}

	observability.SnapshotCacheLookups.WithLabelValues(tier).Inc()
	_ = s.local.Set(ctx, key, data, s.ttl)
	return data, nil
}

// HandleInvalidation сбрасывает локальную копию ключа, изменённого другим узлом
func (s *CellSnapshots) HandleInvalidation(key string) error {
	if _, err := ParseCellKey(key); err != nil {
		return err
	}
	return s.local.Invalidate(context.Background(), key)
}

// Purge удаляет истёкшие локальные записи
func (s *CellSnapshots) Purge() int {
	return s.local.Purge()
}

// GetMetrics возвращает метрики локального уровня
func (s *CellSnapshots) GetMetrics() *CacheMetrics {
	return s.local.GetMetrics()
}

// RecordLoader: постоянное хранилище клеток
type RecordLoader interface {
	LoadCell(pos vec.Vec3) (world.CellRecord, bool, error)
}

// RecordColdStorage отдаёт снимки сохранённых клеток при промахе кеша
type RecordColdStorage struct {
	loader RecordLoader
}

// NewRecordColdStorage создаёт ColdStorage поверх хранилища клеток
func NewRecordColdStorage(loader RecordLoader) *RecordColdStorage {
	return &RecordColdStorage{loader: loader}
}

// Load возвращает JSON-снимок сохранённой клетки или ErrCacheMiss
func (r *RecordColdStorage) Load(_ context.Context, key string) ([]byte, error) {
	pos, err := ParseCellKey(key)
	if err != nil {
		return nil, err
	}
	rec, ok, err := r.loader.LoadCell(pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCacheMiss
	}
	return json.Marshal(ViewOfRecord(rec))
}
