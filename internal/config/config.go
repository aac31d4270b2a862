package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/mmo-multipart/internal/cache"
	"github.com/annel0/mmo-multipart/internal/storage"
)

// Config корневая структура конфигурации сервера.
// Незаданные поля берутся из переменных окружения, затем из значений по умолчанию.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Storage   StorageConfig     `yaml:"storage"`
	Sync      SyncConfig        `yaml:"sync"`
	Cache     cache.CacheConfig `yaml:"cache"`
	EventBus  EventBusConfig    `yaml:"eventbus"`
	Logging   LoggingConfig     `yaml:"logging"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
}

type ServerConfig struct {
	KCPAddr         string `yaml:"kcp_addr"`
	RESTAddr        string `yaml:"rest_addr"`
	TickRate        int    `yaml:"tick_rate"`
	ViewRadius      int    `yaml:"view_radius"`
	AutosaveSeconds int    `yaml:"autosave_seconds"`
	InboundQueue    int    `yaml:"inbound_queue"`

	// KCP
	SendQueue          int `yaml:"send_queue"`
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
	MTU                int `yaml:"mtu"`
	WindowSize         int `yaml:"window_size"`
}

type StorageConfig struct {
	// badger (по умолчанию) или mariadb
	Driver   string              `yaml:"driver"`
	DataPath string              `yaml:"data_path"`
	Maria    storage.MariaConfig `yaml:"maria"`
}

type SyncConfig struct {
	NodeID string `yaml:"node_id"`
	// Кадры длиннее порога сжимаются zstd; отрицательное значение выключает сжатие
	CompressAbove int `yaml:"compress_above"`
}

type EventBusConfig struct {
	// Пустой URL: шина в памяти процесса
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type TelemetryConfig struct {
	// host:port OTLP HTTP коллектора; пусто: трассировка выключена
	Endpoint string `yaml:"otlp_endpoint"`
	// Доля корневых трасс в процентах
	SamplePercent int `yaml:"sample_percent"`
}

// GetKCPAddr возвращает адрес KCP с приоритетом config -> env -> default
func (s *ServerConfig) GetKCPAddr() string {
	return getStringWithEnvFallback(s.KCPAddr, "GAME_KCP_ADDR", ":7777")
}

// GetRESTAddr возвращает адрес REST API
func (s *ServerConfig) GetRESTAddr() string {
	return getStringWithEnvFallback(s.RESTAddr, "GAME_REST_ADDR", ":8088")
}

// GetTickRate возвращает число тиков в секунду
func (s *ServerConfig) GetTickRate() int {
	return getIntWithEnvFallback(s.TickRate, "GAME_TICK_RATE", 20)
}

// GetViewRadius возвращает радиус наблюдения клиента в чанках
func (s *ServerConfig) GetViewRadius() int {
	return getIntWithEnvFallback(s.ViewRadius, "GAME_VIEW_RADIUS", 4)
}

// GetAutosaveInterval возвращает период сохранения мира
func (s *ServerConfig) GetAutosaveInterval() time.Duration {
	return time.Duration(getIntWithEnvFallback(s.AutosaveSeconds, "GAME_AUTOSAVE_SECONDS", 60)) * time.Second
}

// GetInboundQueue возвращает ёмкость очереди входящих запросов
func (s *ServerConfig) GetInboundQueue() int {
	return getIntWithEnvFallback(s.InboundQueue, "GAME_INBOUND_QUEUE", 4096)
}

// GetIdleTimeout возвращает время, после которого молчащий клиент отключается
func (s *ServerConfig) GetIdleTimeout() time.Duration {
	return time.Duration(getIntWithEnvFallback(s.IdleTimeoutSeconds, "GAME_IDLE_TIMEOUT_SECONDS", 30)) * time.Second
}

// GetDriver возвращает движок хранилища клеток
func (s *StorageConfig) GetDriver() string {
	return getStringWithEnvFallback(s.Driver, "GAME_STORAGE_DRIVER", "badger")
}

// GetMaria возвращает параметры MariaDB с пустыми полями из окружения
func (s *StorageConfig) GetMaria() storage.MariaConfig {
	m := s.Maria
	m.Host = getStringWithEnvFallback(m.Host, "GAME_DB_HOST", "localhost")
	m.Port = getIntWithEnvFallback(m.Port, "GAME_DB_PORT", 3306)
	m.Database = getStringWithEnvFallback(m.Database, "GAME_DB_NAME", "multipart")
	m.Username = getStringWithEnvFallback(m.Username, "GAME_DB_USER", "gameuser")
	m.Password = getStringWithEnvFallback(m.Password, "GAME_DB_PASSWORD", "")
	return m
}

// GetDataPath возвращает каталог BadgerDB
func (s *StorageConfig) GetDataPath() string {
	return getStringWithEnvFallback(s.DataPath, "GAME_DATA_PATH", "data/world")
}

// GetNodeID возвращает идентификатор узла; по умолчанию имя хоста
func (s *SyncConfig) GetNodeID() string {
	def := "authority"
	if host, err := os.Hostname(); err == nil && host != "" {
		def = host
	}
	return getStringWithEnvFallback(s.NodeID, "GAME_NODE_ID", def)
}

// GetCompressAbove возвращает порог сжатия кадров
func (s *SyncConfig) GetCompressAbove() int {
	if s.CompressAbove != 0 {
		return s.CompressAbove
	}
	if envVal := os.Getenv("GAME_COMPRESS_ABOVE"); envVal != "" {
		if n, err := strconv.Atoi(envVal); err == nil && n != 0 {
			return n
		}
	}
	return 256
}

// GetURL возвращает адрес NATS; пустая строка: шина в памяти
func (e *EventBusConfig) GetURL() string {
	return getStringWithEnvFallback(e.URL, "GAME_NATS_URL", "")
}

// GetStream возвращает имя JetStream потока
func (e *EventBusConfig) GetStream() string {
	return getStringWithEnvFallback(e.Stream, "GAME_NATS_STREAM", "MULTIPART")
}

// GetRetention возвращает срок хранения событий
func (e *EventBusConfig) GetRetention() time.Duration {
	return time.Duration(getIntWithEnvFallback(e.Retention, "GAME_NATS_RETENTION_HOURS", 24)) * time.Hour
}

// GetLevel возвращает уровень логирования
func (l *LoggingConfig) GetLevel() string {
	return getStringWithEnvFallback(l.Level, "GAME_LOG_LEVEL", "INFO")
}

// GetDir возвращает каталог файлов логов
func (l *LoggingConfig) GetDir() string {
	return getStringWithEnvFallback(l.Dir, "GAME_LOG_DIR", "logs")
}

// GetEndpoint возвращает адрес OTLP коллектора
func (t *TelemetryConfig) GetEndpoint() string {
	return getStringWithEnvFallback(t.Endpoint, "GAME_OTLP_ENDPOINT", "")
}

// GetSampleRatio возвращает долю сэмплируемых трасс в диапазоне (0, 1]
func (t *TelemetryConfig) GetSampleRatio() float64 {
	percent := getIntWithEnvFallback(t.SamplePercent, "GAME_TRACE_SAMPLE_PERCENT", 100)
	if percent > 100 {
		percent = 100
	}
	return float64(percent) / 100
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if n, err := strconv.Atoi(envVal); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}

// Default возвращает конфигурацию без файла
func Default() *Config {
	return &Config{
		Cache: cache.CacheConfig{WriteBehindEnabled: true},
	}
}

// Load читает YAML файл конфигурации поверх Default.
// Если path == "", берёт путь из ENV GAME_CONFIG; без него возвращает Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
	}
	if path == "" {
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv дополняет адреса кеша из окружения
func (c *Config) applyEnv() {
	c.Cache.RedisURL = getStringWithEnvFallback(c.Cache.RedisURL, "GAME_REDIS_URL", "")
	c.Cache.NATSURL = getStringWithEnvFallback(c.Cache.NATSURL, "GAME_CACHE_NATS_URL", "")
}
