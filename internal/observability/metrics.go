package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// PlacementsTotal: попытки установки частей по типу и результату
	PlacementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multipart",
		Name:      "placements_total",
		Help:      "Попытки установки частей по типу части и результату.",
	}, []string{"kind", "result"})

	// ConversionsTotal: переходы клеток между представлениями
	ConversionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multipart",
		Name:      "conversions_total",
		Help:      "Переходы клеток между пустым, одиночным и многосоставным видом.",
	}, []string{"from", "to"})

	// ActiveContainers: число многосоставных клеток в загруженных чанках
	ActiveContainers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "multipart",
		Name:      "active_containers",
		Help:      "Многосоставные клетки в загруженных чанках.",
	})

	// SyncFramesSent: отправленные кадры синхронизации по типу сообщения
	SyncFramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multipart",
		Name:      "sync_frames_sent_total",
		Help:      "Отправленные кадры синхронизации по типу сообщения.",
	}, []string{"msg"})

	// SyncBytesSent: объём отправленных кадров после сжатия
	SyncBytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "multipart",
		Name:      "sync_bytes_sent_total",
		Help:      "Байты кадров синхронизации после сжатия.",
	})

	// SyncResyncs: запросы полного снимка от клиентов
	SyncResyncs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "multipart",
		Name:      "sync_resync_requests_total",
		Help:      "Запросы полного снимка клетки после расхождения.",
	})

	// SnapshotCacheLookups: чтения снимков клеток по уровню, ответившему на запрос
	SnapshotCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multipart",
		Name:      "snapshot_cache_lookups_total",
		Help:      "Чтения снимков клеток по уровню кеша (local, remote, cold, miss).",
	}, []string{"tier"})

	// NetworkPeers: подключённые клиенты транспорта
	NetworkPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "network",
		Name:      "peers",
		Help:      "Подключённые KCP-клиенты.",
	})

	// NetworkFramesReceived: принятые кадры
	NetworkFramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "frames_received_total",
		Help:      "Кадры, принятые от клиентов.",
	})
)

func init() {
	prometheus.MustRegister(
		PlacementsTotal,
		ConversionsTotal,
		ActiveContainers,
		SyncFramesSent,
		SyncBytesSent,
		SyncResyncs,
		SnapshotCacheLookups,
		NetworkPeers,
		NetworkFramesReceived,
	)
}
