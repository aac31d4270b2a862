package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/mmo-multipart/internal/api"
	"github.com/annel0/mmo-multipart/internal/cache"
	"github.com/annel0/mmo-multipart/internal/config"
	"github.com/annel0/mmo-multipart/internal/eventbus"
	"github.com/annel0/mmo-multipart/internal/logging"
	_ "github.com/annel0/mmo-multipart/internal/multipart/parts"
	"github.com/annel0/mmo-multipart/internal/network"
	"github.com/annel0/mmo-multipart/internal/observability"
	"github.com/annel0/mmo-multipart/internal/server"
	"github.com/annel0/mmo-multipart/internal/storage"
	mpsync "github.com/annel0/mmo-multipart/internal/sync"
	"github.com/annel0/mmo-multipart/internal/world"
	_ "github.com/annel0/mmo-multipart/internal/world/block/implementations"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (по умолчанию $GAME_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLoggerIn(cfg.Logging.GetDir(), "server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	if level, ok := logging.ParseLevel(cfg.Logging.GetLevel()); ok {
		logging.SetDefaultLevel(level)
	}

	nodeID := cfg.Sync.GetNodeID()
	logging.Info("🎮 Запуск сервера многосоставных клеток (node=%s)", nodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTracing(ctx, observability.TracingOptions{
		Endpoint:    cfg.Telemetry.GetEndpoint(),
		NodeID:      nodeID,
		SampleRatio: cfg.Telemetry.GetSampleRatio(),
	})
	if err != nil {
		logging.Warn("⚠️ OpenTelemetry недоступен: %v", err)
	}

	// === ХРАНИЛИЩЕ ===
	store, err := openStore(&cfg.Storage)
	if err != nil {
		log.Fatalf("❌ Ошибка открытия хранилища мира: %v", err)
	}

	// === КЕШ СНИМКОВ ===
	cold := cache.NewRecordColdStorage(store)
	var (
		remote      *cache.RedisCache
		invalidator *cache.NATSInvalidator
	)
	if cfg.Cache.NATSURL != "" {
		invalidator, err = cache.NewNATSInvalidator(&cache.InvalidatorConfig{NATSURL: cfg.Cache.NATSURL}, nodeID)
		if err != nil {
			logging.Warn("⚠️ Инвалидация кеша через NATS недоступна: %v", err)
			invalidator = nil
		}
	}
	if cfg.Cache.RedisURL != "" {
		var inv cache.CacheInvalidator
		if invalidator != nil {
			inv = invalidator
		}
		remote, err = cache.NewRedisCache(&cfg.Cache, cold, inv)
		if err != nil {
			logging.Warn("⚠️ Redis недоступен, снимки только в памяти: %v", err)
			remote = nil
		}
	}

	var snapshots *cache.CellSnapshots
	if remote != nil {
		snapshots = cache.NewCellSnapshots(remote, cold, cfg.Cache.DefaultTTL)
	} else {
		snapshots = cache.NewCellSnapshots(nil, cold, cfg.Cache.DefaultTTL)
	}
	if invalidator != nil {
		if err := invalidator.SubscribeInvalidations(ctx, snapshots.HandleInvalidation); err != nil {
			logging.Warn("⚠️ Подписка на инвалидацию не удалась: %v", err)
		}
	}

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if url := cfg.EventBus.GetURL(); url != "" {
		bus, err = eventbus.NewJetStreamBus(url, cfg.EventBus.GetStream(), cfg.EventBus.GetRetention())
		if err != nil {
			log.Fatalf("❌ Ошибка подключения к JetStream: %v", err)
		}
	} else {
		bus = eventbus.NewMemoryBus(1024)
		logging.Info("📬 Шина событий в памяти процесса")
	}
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("⚠️ Логирование событий шины недоступно: %v", err)
	}
	busMetrics, err := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("❌ Ошибка регистрации метрик шины: %v", err)
	}
	busMetrics.Start(10 * time.Second)

	// === СЕТЬ И СИНХРОНИЗАЦИЯ ===
	tcfg := network.DefaultTransportConfig()
	if cfg.Server.SendQueue > 0 {
		tcfg.BufferSize = cfg.Server.SendQueue
	}
	if cfg.Server.MTU > 0 {
		tcfg.MTU = cfg.Server.MTU
	}
	if cfg.Server.WindowSize > 0 {
		tcfg.WindowSize = cfg.Server.WindowSize
	}
	tcfg.IdleTimeout = cfg.Server.GetIdleTimeout()
	transport := network.NewKCPTransport(cfg.Server.GetKCPAddr(), tcfg)

	syncManager, err := mpsync.NewManager(mpsync.Config{
		NodeID:        nodeID,
		CompressAbove: cfg.Sync.GetCompressAbove(),
		Out:           transport,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания SyncManager: %v", err)
	}

	// === МИР И ЦИКЛ СИМУЛЯЦИИ ===
	gameWorld := world.NewWorld(store, syncManager.Tracker(), snapshots)
	authority := server.NewAuthority(server.Config{
		NodeID:           nodeID,
		TickRate:         cfg.Server.GetTickRate(),
		ViewRadius:       cfg.Server.GetViewRadius(),
		AutosaveInterval: cfg.Server.GetAutosaveInterval(),
		InboundQueue:     cfg.Server.GetInboundQueue(),
		UnloadIdle:       true,
	}, gameWorld, syncManager, snapshots, bus)

	transport.SetHandlers(authority.OnConnect, authority.OnDisconnect, authority.OnFrame)
	if err := transport.Start(); err != nil {
		log.Fatalf("❌ Ошибка запуска KCP: %v", err)
	}
	authority.Start(ctx)

	// === REST API ===
	restServer, err := api.NewRestServer(api.Config{
		Addr:  cfg.Server.GetRESTAddr(),
		Cells: snapshots,
		Stats: authority,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания REST API: %v", err)
	}
	if err := restServer.Start(); err != nil {
		log.Fatalf("❌ Ошибка запуска REST API: %v", err)
	}

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🎮 KCP: %s", transport.Addr())
	logging.Info("   🌐 REST API: http://%s (cells, stats, metrics)", restServer.Addr())

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := restServer.Stop(stopCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	// цикл симуляции сохраняет мир и рассылает остаток изменений до закрытия сети
	authority.Stop()
	if err := transport.Stop(); err != nil {
		logging.Error("❌ Ошибка остановки KCP: %v", err)
	}
	syncManager.Stop()
	busMetrics.Stop()

	if remote != nil {
		if err := remote.Close(); err != nil {
			logging.Error("❌ Ошибка закрытия Redis: %v", err)
		}
	}
	if invalidator != nil {
		_ = invalidator.Close()
	}
	if err := bus.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия шины: %v", err)
	}
	if err := store.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия хранилища: %v", err)
	}
	_ = shutdownTelemetry(stopCtx)

	logging.Info("👋 Сервер успешно остановлен")
}

// cellStore: хранилище клеток, из которого читает и холодный уровень кеша
type cellStore interface {
	world.CellStore
	cache.RecordLoader
	Close() error
}

func openStore(cfg *config.StorageConfig) (cellStore, error) {
	switch driver := cfg.GetDriver(); driver {
	case "badger":
		logging.Info("💾 Хранилище клеток: BadgerDB в %s", cfg.GetDataPath())
		return storage.NewWorldStorage(cfg.GetDataPath())
	case "mariadb", "mysql":
		return storage.NewMariaCellStore(cfg.GetMaria())
	default:
		return nil, fmt.Errorf("неизвестный движок хранилища %q", driver)
	}
}
