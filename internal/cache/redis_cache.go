package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/mmo-multipart/internal/logging"
)

// RedisCache хранит снимки клеток в Redis, общем для всех узлов.
//
// Особенности:
// - Read-Through из ColdStorage при промахе
// - Write-Behind: записи копятся и уходят одним pipeline
// - после каждой записи другие узлы получают инвалидацию
type RedisCache struct {
	client      *redis.Client
	config      *CacheConfig
	coldStorage ColdStorage
	invalidator CacheInvalidator

	// Write-Behind
	writeBehindQueue chan writeItem
	writeBehindStop  chan struct{}
	writeBehindWg    sync.WaitGroup
	closeOnce        sync.Once

	hits    int64
	misses  int64
	flushed int64

	latencySum   int64 // в наносекундах
	latencyCount int64
	maxLatency   int64

	logger *logging.Logger
}

// writeItem: отложенная запись или удаление ключа
type writeItem struct {
	key    string
	value  []byte
	ttl    time.Duration
	delete bool
}

// applyDefaults заполняет незаданные параметры
func applyDefaults(config *CacheConfig) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "multipart:"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = time.Hour
	}
	if config.WriteBehindInterval == 0 {
		config.WriteBehindInterval = 500 * time.Millisecond
	}
	if config.WriteBehindBatchSize == 0 {
		config.WriteBehindBatchSize = 100
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
}

// NewRedisCache подключается к Redis.
//
// Параметры:
//
//	config - адрес Redis и настройки Write-Behind
//	coldStorage - источник при промахе (может быть nil)
//	invalidator - рассылка инвалидаций (может быть nil)
func NewRedisCache(config *CacheConfig, coldStorage ColdStorage, invalidator CacheInvalidator) (*RedisCache, error) {
	applyDefaults(config)

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r := newRedisCache(rdb, config, coldStorage, invalidator)
	r.logger.Info("Redis cache initialized: %s (Write-Behind: %v)", config.RedisURL, config.WriteBehindEnabled)
	return r, nil
}

func newRedisCache(rdb *redis.Client, config *CacheConfig, coldStorage ColdStorage, invalidator CacheInvalidator) *RedisCache {
	r := &RedisCache{
		client:      rdb,
		config:      config,
		coldStorage: coldStorage,
		invalidator: invalidator,
		logger:      logging.GetComponentLogger("cache"),
	}
	if config.WriteBehindEnabled {
		r.writeBehindQueue = make(chan writeItem, config.WriteBehindBatchSize*2)
		r.writeBehindStop = make(chan struct{})
		r.startWriteBehind()
	}
	return r
}

func (r *RedisCache) key(key string) string {
	return r.config.KeyPrefix + key
}

// Get читает значение из Redis, при промахе пробует ColdStorage
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer r.recordLatency(start)

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == nil {
		atomic.AddInt64(&r.hits, 1)
		return val, nil
	}
	atomic.AddInt64(&r.misses, 1)

	if !errors.Is(err, redis.Nil) {
		r.logger.Error("Redis Get error for key %s: %v", key, err)
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	if r.coldStorage == nil {
		return nil, ErrCacheMiss
	}
	val, err = r.coldStorage.Load(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			r.logger.Debug("Cold storage miss for key %s: %v", key, err)
		}
		return nil, ErrCacheMiss
	}

	// прогреваем кеш для следующих запросов
	if err := r.Set(ctx, key, val, r.config.DefaultTTL); err != nil {
		r.logger.Warn("Не удалось прогреть кеш %s: %v", key, err)
	}
	return val, nil
}

// Set сохраняет значение. При Write-Behind только ставит запись в очередь.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.enqueue(ctx, writeItem{key: key, value: value, ttl: r.clampTTL(ttl)})
}

// Invalidate удаляет ключ и уведомляет другие узлы
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	return r.enqueue(ctx, writeItem{key: key, delete: true})
}

// BatchSet сохраняет несколько значений
func (r *RedisCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	ttl = r.clampTTL(ttl)

	if r.writeBehindQueue != nil {
		for key, value := range items {
			if err := r.enqueue(ctx, writeItem{key: key, value: value, ttl: ttl}); err != nil {
				return err
			}
		}
		return nil
	}

	batch := make(map[string]writeItem, len(items))
	for key, value := range items {
		batch[key] = writeItem{key: key, value: value, ttl: ttl}
	}
	return r.flush(ctx, batch)
}

// enqueue ставит запись в очередь Write-Behind либо выполняет её сразу.
// Полная очередь блокирует вызывающего: порядок записей по ключу сохраняется.
func (r *RedisCache) enqueue(ctx context.Context, item writeItem) error {
	if r.writeBehindQueue == nil {
		return r.flush(ctx, map[string]writeItem{item.key: item})
	}

	select {
	case r.writeBehindQueue <- item:
		return nil
	default:
	}

	r.logger.Warn("Write-behind queue full, waiting: %s", item.key)
	select {
	case r.writeBehindQueue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RedisCache) clampTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}
	return ttl
}

// Close останавливает Write-Behind, дописывая очередь, и закрывает соединение
func (r *RedisCache) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.writeBehindStop != nil {
			close(r.writeBehindStop)
			r.writeBehindWg.Wait()
		}
		if err = r.client.Close(); err != nil {
			r.logger.Error("Error closing Redis connection: %v", err)
			return
		}
		r.logger.Info("Redis cache closed")
	})
	return err
}

// GetMetrics возвращает текущие метрики кеша
func (r *RedisCache) GetMetrics() *CacheMetrics {
	hits := atomic.LoadInt64(&r.hits)
	misses := atomic.LoadInt64(&r.misses)

	metrics := &CacheMetrics{
		TotalRequests: hits + misses,
		CacheHits:     hits,
		CacheMisses:   misses,
		FlushedWrites: atomic.LoadInt64(&r.flushed),
		LastUpdate:    time.Now(),
	}
	if total := hits + misses; total > 0 {
		metrics.HitRatio = float64(hits) / float64(total)
	}
	if count := atomic.LoadInt64(&r.latencyCount); count > 0 {
		metrics.AvgLatencyMs = float64(atomic.LoadInt64(&r.latencySum)) / float64(count) / 1e6
		metrics.MaxLatencyMs = float64(atomic.LoadInt64(&r.maxLatency)) / 1e6
	}
	if r.writeBehindQueue != nil {
		metrics.PendingWrites = int64(len(r.writeBehindQueue))
	}
	return metrics
}

// startWriteBehind запускает горутину, сбрасывающую очередь пачками
func (r *RedisCache) startWriteBehind() {
	r.writeBehindWg.Add(1)
	go func() {
		defer r.writeBehindWg.Done()

		ticker := time.NewTicker(r.config.WriteBehindInterval)
		defer ticker.Stop()

		batch := make(map[string]writeItem)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.flush(ctx, batch); err != nil {
				r.logger.Error("Write-Behind flush failed (%d items): %v", len(batch), err)
			}
			cancel()
			batch = make(map[string]writeItem)
		}

		for {
			select {
			case item := <-r.writeBehindQueue:
				// последняя запись по ключу перекрывает предыдущие
				batch[item.key] = item
				if len(batch) >= r.config.WriteBehindBatchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			case <-r.writeBehindStop:
				for {
					select {
					case item := <-r.writeBehindQueue:
						batch[item.key] = item
					default:
						flush()
						return
					}
				}
			}
		}
	}()

	r.logger.Info("Write-Behind started (interval: %v, batch size: %d)",
		r.config.WriteBehindInterval, r.config.WriteBehindBatchSize)
}

// flush выполняет пачку записей одним pipeline и рассылает инвалидацию
func (r *RedisCache) flush(ctx context.Context, batch map[string]writeItem) error {
	start := time.Now()
	defer r.recordLatency(start)

	pipe := r.client.Pipeline()
	keys := make([]string, 0, len(batch))
	for key, item := range batch {
		if item.delete {
			pipe.Del(ctx, r.key(key))
		} else {
			pipe.Set(ctx, r.key(key), item.value, item.ttl)
		}
		keys = append(keys, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline error: %w", err)
	}
	atomic.AddInt64(&r.flushed, int64(len(batch)))
	r.logger.Debug("Write-Behind batch stored: %d items in %v", len(batch), time.Since(start))

	if r.invalidator != nil {
		if err := r.invalidator.PublishInvalidation(ctx, keys...); err != nil {
			r.logger.Error("Failed to publish invalidation (%d keys): %v", len(keys), err)
		}
	}
	return nil
}

// recordLatency учитывает длительность операции
func (r *RedisCache) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()
	atomic.AddInt64(&r.latencySum, latency)
	atomic.AddInt64(&r.latencyCount, 1)
	for {
		current := atomic.LoadInt64(&r.maxLatency)
		if latency <= current || atomic.CompareAndSwapInt64(&r.maxLatency, current, latency) {
			return
		}
	}
}
