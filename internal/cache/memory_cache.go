package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache: локальный кеш в памяти процесса с необязательным TTL
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]memoryItem
	defaultTTL time.Duration

	hits   int64
	misses int64
	now    func() time.Time
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache создаёт кеш. defaultTTL используется, когда Set получает ttl = 0;
// нулевой defaultTTL означает хранение без истечения.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		items:      make(map[string]memoryItem),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get возвращает копию значения или ErrCacheMiss
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok || item.expired(m.now()) {
		atomic.AddInt64(&m.misses, 1)
		return nil, ErrCacheMiss
	}
	atomic.AddInt64(&m.hits, 1)
	return append([]byte(nil), item.value...), nil
}

// Set сохраняет копию значения
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.items[key] = m.item(value, ttl)
	m.mu.Unlock()
	return nil
}

// BatchSet сохраняет несколько значений под одной блокировкой
func (m *MemoryCache) BatchSet(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	for key, value := range items {
		m.items[key] = m.item(value, ttl)
	}
	m.mu.Unlock()
	return nil
}

// Invalidate удаляет ключ
func (m *MemoryCache) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Purge удаляет истёкшие записи и возвращает их число
func (m *MemoryCache) Purge() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, item := range m.items {
		if item.expired(now) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

// Close очищает кеш
func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()
	return nil
}

// GetMetrics возвращает метрики кеша
func (m *MemoryCache) GetMetrics() *CacheMetrics {
	hits := atomic.LoadInt64(&m.hits)
	misses := atomic.LoadInt64(&m.misses)

	m.mu.RLock()
	keys := len(m.items)
	m.mu.RUnlock()

	metrics := &CacheMetrics{
		TotalRequests: hits + misses,
		CacheHits:     hits,
		CacheMisses:   misses,
		TotalKeys:     int64(keys),
		LastUpdate:    m.now(),
	}
	if total := hits + misses; total > 0 {
		metrics.HitRatio = float64(hits) / float64(total)
	}
	return metrics
}

func (m *MemoryCache) item(value []byte, ttl time.Duration) memoryItem {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	return item
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expires.IsZero() && !now.Before(i.expires)
}
