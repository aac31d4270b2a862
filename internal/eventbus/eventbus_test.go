package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewMemoryBus(64)

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{"Frame"}}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		got = append(got, ev.ID)
		mu.Unlock()
	})
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: id, EventType: "Frame", Priority: 9}))
	}
	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "x", EventType: "Other", Priority: 9}))
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
	stats := bus.Metrics()
	assert.Equal(t, uint64(5), stats.Published)
	assert.Equal(t, uint64(4), stats.Consumed)
}

func TestMemoryBusFiltersBySource(t *testing.T) {
	bus := NewMemoryBus(8)
	var got []string
	_, err := bus.Subscribe(context.Background(), Filter{Sources: []string{"node-1"}}, func(ctx context.Context, ev *Envelope) {
		got = append(got, ev.ID)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "1", Source: "node-1", Priority: 9}))
	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "2", Source: "node-2", Priority: 9}))
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"1"}, got)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(8)
	calls := 0
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) { calls++ })
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "1", Priority: 9}))
	require.NoError(t, bus.Close())
	assert.Zero(t, calls)
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1).(*memoryBus)
	block := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) { <-block })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "1", Priority: 9}))
	// первое событие может уже обрабатываться, поэтому заполняем буфер до отказа
	require.Eventually(t, func() bool {
		_ = bus.Publish(context.Background(), &Envelope{ID: "low", Priority: 1})
		return bus.Metrics().Dropped > 0
	}, time.Second, time.Millisecond)

	close(block)
	require.NoError(t, bus.Close())
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{ID: "1"}), ErrClosed)
}

func TestMetricsExporterCollectsDeltas(t *testing.T) {
	bus := NewMemoryBus(8)
	reg := prometheus.NewRegistry()
	me, err := NewMetricsExporter(bus, reg)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "1", Priority: 9}))
	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "2", Priority: 9}))

	me.Start(time.Hour)
	me.Stop()
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))

	_, err = NewMetricsExporter(bus, reg)
	assert.Error(t, err, "повторная регистрация должна отказать")
	require.NoError(t, bus.Close())
}
