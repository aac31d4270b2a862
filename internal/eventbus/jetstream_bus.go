package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-multipart/internal/logging"
	nats "github.com/nats-io/nats.go"
)

// subjectPrefix: пространство subject'ов стрима
const subjectPrefix = "multipart"

// JetStreamBus реализует EventBus поверх NATS JetStream.
type JetStreamBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	stream    string
	published uint64
	consumed  uint64
	dropped   uint64
}

// NewJetStreamBus подключается к кластеру NATS и гарантирует наличие стрима.
// url: nats://127.0.0.1:4222, stream: "MULTIPART".
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "MULTIPART"
	}

	nc, err := nats.Connect(url, nats.Name("mmo-multipart"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err = js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subjectPrefix + ".*"},
			Retention: nats.LimitsPolicy,
			MaxAge:    retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	logging.Info("📡 JetStream: подключено к %s, стрим %s", url, stream)
	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

// Publish сериализует Envelope в JSON и публикует в subject multipart.<type>.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = jb.js.Publish(subjectOf(ev.EventType), data, nats.Context(ctx))
	if err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return fmt.Errorf("jetstream publish: %w", err)
	}
	atomic.AddUint64(&jb.published, 1)
	return nil
}

// Subscribe создаёт упорядоченного потребителя: события приходят в порядке стрима.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subj := subjectPrefix + ".*"
	if len(f.Types) == 1 {
		subj = subjectOf(f.Types[0])
	}

	natSub, err := jb.js.Subscribe(subj, func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			atomic.AddUint64(&jb.dropped, 1)
			logging.Warn("JetStream: битое событие в %s: %v", msg.Subject, err)
			return
		}
		if !matchFilter(&ev, f) {
			return
		}
		h(ctx, &ev)
		atomic.AddUint64(&jb.consumed, 1)
	}, nats.OrderedConsumer(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("jetstream subscribe %s: %w", subj, err)
	}

	return &jetSub{natSub}, nil
}

// Close закрывает соединение, дождавшись отправки буферов
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}

func subjectOf(eventType string) string {
	return subjectPrefix + "." + eventType
}

// jetSub обёртка вокруг *nats.Subscription чтобы удовлетворить наш интерфейс.
type jetSub struct {
	s *nats.Subscription
}

func (j *jetSub) Unsubscribe() {
	_ = j.s.Unsubscribe()
}

// Metrics возвращает текущие метрики.
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
		InFlight:  0, // очередь держит сам JetStream
	}
}
