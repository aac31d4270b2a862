package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed возвращается при публикации в закрытую шину
var ErrClosed = errors.New("eventbus: шина закрыта")

// Envelope описывает универсальный контейнер события.
type Envelope struct {
	ID            string            // Уникальный идентификатор (UUID).
	Timestamp     time.Time         // Время создания события (UTC).
	Source        string            // Имя узла-источника.
	EventType     string            // Тип события (MultipartFrame, ...).
	Version       int               // Схема полезной нагрузки.
	CorrelationID string            // Для связывания цепочек.
	Priority      int               // 0=Low … 9=Critical (для backpressure).
	Payload       []byte            // Сериализованный кадр.
	Metadata      map[string]string // Произвольные метаданные (peer и т.п.).
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто, все типы.
	Sources []string // Если пусто, все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

type memoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]subscriber
	nextID      int
	statsMu     sync.Mutex
	stats       Stats
	buffer      chan *Envelope
	quit        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт in-memory шину с указанным буфером.
// Подписчик получает события в порядке публикации.
func NewMemoryBus(capacity int) EventBus {
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go mb.dispatchLoop()
	return mb
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	select {
	case <-mb.quit:
		return ErrClosed
	default:
	}

	select {
	case mb.buffer <- ev:
		mb.count(func(s *Stats) { s.Published++ })
		return nil
	default:
		// Буфер заполнен, дропаем низкий приоритет (<5)
		if ev.Priority < 5 {
			mb.count(func(s *Stats) { s.Dropped++ })
			return nil
		}
		select {
		case mb.buffer <- ev:
			mb.count(func(s *Stats) { s.Published++ })
			return nil
		case <-mb.quit:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}

	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	mb.statsMu.Lock()
	s := mb.stats
	mb.statsMu.Unlock()
	s.InFlight = len(mb.buffer)
	return s
}

// Close останавливает рассылку, доставив то, что уже лежит в буфере
func (mb *memoryBus) Close() error {
	mb.closeOnce.Do(func() { close(mb.quit) })
	<-mb.done
	return nil
}

func (mb *memoryBus) count(fn func(s *Stats)) {
	mb.statsMu.Lock()
	fn(&mb.stats)
	mb.statsMu.Unlock()
}

// dispatchLoop рассылает события подписчикам по очереди
func (mb *memoryBus) dispatchLoop() {
	defer close(mb.done)
	for {
		select {
		case ev := <-mb.buffer:
			mb.deliver(ev)
		case <-mb.quit:
			for {
				select {
				case ev := <-mb.buffer:
					mb.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (mb *memoryBus) deliver(ev *Envelope) {
	mb.mu.RLock()
	subs := make([]subscriber, 0, len(mb.subscribers))
	for _, sub := range mb.subscribers {
		subs = append(subs, sub)
	}
	mb.mu.RUnlock()

	for _, sub := range subs {
		if !matchFilter(ev, sub.filter) || sub.ctx.Err() != nil {
			continue
		}
		sub.handler(sub.ctx, ev)
		mb.count(func(s *Stats) { s.Consumed++ })
	}
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
