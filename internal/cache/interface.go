package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/mmo-multipart/internal/vec"
)

// CacheRepo: хранилище снимков клеток "ключ → JSON".
// Реализации: MemoryCache (локальный уровень) и RedisCache (общий между узлами).
//
// Использование:
//
//	repo := NewMemoryCache(0)
//	err := repo.Set(ctx, CellKey(pos), data, 0)
//	data, err = repo.Get(ctx, CellKey(pos))
type CacheRepo interface {
	// Get возвращает значение или ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение. TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate удаляет ключ и, если есть invalidator, уведомляет другие узлы
	Invalidate(ctx context.Context, key string) error

	// BatchSet сохраняет несколько значений за один запрос
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	Close() error

	GetMetrics() *CacheMetrics
}

// ColdStorage: источник данных при промахе (read-through)
type ColdStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

// CacheInvalidator рассылает инвалидации между узлами через Pub/Sub
type CacheInvalidator interface {
	// PublishInvalidation отправляет одно уведомление на все ключи
	PublishInvalidation(ctx context.Context, keys ...string) error

	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	Close() error
}

// InvalidationHandler вызывается для каждого ключа, инвалидированного другим узлом
type InvalidationHandler func(key string) error

// CacheMetrics содержит метрики кеша
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	TotalKeys int64 `json:"total_keys"`

	// Write-Behind
	PendingWrites int64 `json:"pending_writes"`
	FlushedWrites int64 `json:"flushed_writes"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию кеша снимков
type CacheConfig struct {
	// Пустой RedisURL: только локальный кеш в памяти
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`

	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`

	WriteBehindEnabled   bool          `yaml:"write_behind_enabled"`
	WriteBehindInterval  time.Duration `yaml:"write_behind_interval"`
	WriteBehindBatchSize int           `yaml:"write_behind_batch_size"`

	MaxConnections int           `yaml:"max_connections"`
	PoolTimeout    time.Duration `yaml:"pool_timeout"`

	// Пустой NATSURL: инвалидации между узлами не рассылаются
	NATSURL string `yaml:"nats_url"`
}

// Ошибки кеша
var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrInvalidKey = errors.New("invalid key")
)

// IsCacheMiss проверяет, является ли ошибка промахом кеша
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// CellKey возвращает ключ снимка клетки
func CellKey(pos vec.Vec3) string {
	return fmt.Sprintf("cell:%d:%d:%d", pos.X, pos.Y, pos.Z)
}

// ParseCellKey разбирает ключ, построенный CellKey
func ParseCellKey(key string) (vec.Vec3, error) {
	var pos vec.Vec3
	if _, err := fmt.Sscanf(key, "cell:%d:%d:%d", &pos.X, &pos.Y, &pos.Z); err != nil {
		return vec.Vec3{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if CellKey(pos) != key {
		return vec.Vec3{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return pos, nil
}
