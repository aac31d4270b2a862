package eventbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter периодически переносит Stats шины в Prometheus.
// HTTP-эндпоинт /metrics обслуживает admin API.
type MetricsExporter struct {
	bus  EventBus
	quit chan struct{}
	done chan struct{}

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер и регистрирует метрики в reg
func NewMetricsExporter(bus EventBus, reg prometheus.Registerer) (*MetricsExporter, error) {
	me := &MetricsExporter{
		bus:  bus,
		quit: make(chan struct{}),
		done: make(chan struct{}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_published_total",
			Help:      "Общее число опубликованных сообщений.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_consumed_total",
			Help:      "Общее число доставленных сообщений подписчикам.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_dropped_total",
			Help:      "Сообщений, отброшенных из-за ошибок или ограничения back-pressure.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventbus",
			Name:      "messages_inflight",
			Help:      "Количество сообщений, находящихся в очереди (не доставленных).",
		}),
	}

	for _, c := range []prometheus.Collector{me.published, me.consumed, me.dropped, me.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return me, nil
}

// Start запускает обновление метрик с периодом every
func (m *MetricsExporter) Start(every time.Duration) {
	go m.loop(every)
}

// Stop останавливает обновление метрик.
func (m *MetricsExporter) Stop() {
	close(m.quit)
	<-m.done
}

func (m *MetricsExporter) loop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	defer close(m.done)

	// Counter растёт только на дельту, поэтому храним прошлое значение
	var prev Stats

	for {
		select {
		case <-ticker.C:
			prev = m.collect(prev)
		case <-m.quit:
			m.collect(prev)
			return
		}
	}
}

func (m *MetricsExporter) collect(prev Stats) Stats {
	stats := m.bus.Metrics()

	if d := stats.Published - prev.Published; d > 0 {
		m.published.Add(float64(d))
	}
	if d := stats.Consumed - prev.Consumed; d > 0 {
		m.consumed.Add(float64(d))
	}
	if d := stats.Dropped - prev.Dropped; d > 0 {
		m.dropped.Add(float64(d))
	}
	m.inflight.Set(float64(stats.InFlight))

	return stats
}
