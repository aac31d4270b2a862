package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
	"github.com/dgraph-io/badger/v3"
)

// WorldStorage хранит клетки мира в BadgerDB.
// Каждая непустая клетка: отдельный ключ cell:<cx>:<cz>:<x>:<y>:<z>,
// так что чанк читается одним проходом по префиксу.
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewWorldStorage создает новое хранилище мира
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	return ws.db.Close()
}

func chunkPrefix(coords vec.Vec2) []byte {
	return []byte(fmt.Sprintf("cell:%d:%d:", coords.X, coords.Y))
}

func cellKey(pos vec.Vec3) []byte {
	coords := pos.ToChunkCoords()
	return []byte(fmt.Sprintf("cell:%d:%d:%d:%d:%d", coords.X, coords.Y, pos.X, pos.Y, pos.Z))
}

// SaveChunkCells заменяет сохранённые клетки чанка
func (ws *WorldStorage) SaveChunkCells(coords vec.Vec2, records []world.CellRecord) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := ws.db.Update(func(txn *badger.Txn) error {
		// Удаляем клетки, которых больше нет в чанке
		if err := deletePrefix(txn, chunkPrefix(coords)); err != nil {
			return err
		}

		for _, rec := range records {
			if rec.Pos.ToChunkCoords() != coords {
				return fmt.Errorf("клетка %s не принадлежит чанку %v", rec.Pos, coords)
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("ошибка сериализации клетки %s: %w", rec.Pos, err)
			}
			if err := txn.Set(cellKey(rec.Pos), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	logging.GetStorageLogger().Debug("💾 Чанк %v сохранён: %d клеток", coords, len(records))
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// LoadChunkCells читает клетки чанка. Отсутствующий чанк: пустой список.
func (ws *WorldStorage) LoadChunkCells(coords vec.Vec2) ([]world.CellRecord, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var records []world.CellRecord
	prefix := chunkPrefix(coords)
	err := ws.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec world.CellRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("ошибка десериализации клетки %s: %w", item.Key(), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	return records, nil
}

// LoadCell читает одну клетку
func (ws *WorldStorage) LoadCell(pos vec.Vec3) (world.CellRecord, bool, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return world.CellRecord{}, false, fmt.Errorf("хранилище не готово")
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cellKey(pos))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return world.CellRecord{}, false, nil
	}
	if err != nil {
		return world.CellRecord{}, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var rec world.CellRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return world.CellRecord{}, false, fmt.Errorf("ошибка десериализации клетки %s: %w", pos, err)
	}
	return rec, true, nil
}
