package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/annel0/mmo-multipart/internal/eventbus"
	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/google/uuid"
)

// Channel доставляет кадры синхронизации конкретному получателю
type Channel interface {
	Send(ctx context.Context, peer string, frame []byte) error
}

// FrameHandler получает кадр от отправителя from
type FrameHandler func(from string, frame []byte)

// MemoryChannel копит кадры по получателям. Используется в тестах и
// при запуске сервера без сети.
type MemoryChannel struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

// NewMemoryChannel создаёт пустой канал в памяти
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{frames: make(map[string][][]byte)}
}

// Send сохраняет копию кадра
func (m *MemoryChannel) Send(ctx context.Context, peer string, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)

	m.mu.Lock()
	m.frames[peer] = append(m.frames[peer], cp)
	m.mu.Unlock()
	return nil
}

// Drain забирает накопленные кадры получателя
func (m *MemoryChannel) Drain(peer string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.frames[peer]
	delete(m.frames, peer)
	return out
}

// Peers возвращает получателей, у которых есть кадры
func (m *MemoryChannel) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.frames))
	for peer := range m.frames {
		out = append(out, peer)
	}
	sort.Strings(out)
	return out
}

// FrameEventType: тип события шины для кадров синхронизации
const FrameEventType = "MultipartFrame"

const metaPeer = "peer"

// BusChannel передаёт кадры через EventBus: получатель указывается в метаданных,
// отправитель: в Source.
type BusChannel struct {
	bus    eventbus.EventBus
	source string
}

// NewBusChannel создаёт канал поверх шины от имени узла source
func NewBusChannel(bus eventbus.EventBus, source string) *BusChannel {
	return &BusChannel{bus: bus, source: source}
}

// Send публикует кадр для peer
func (b *BusChannel) Send(ctx context.Context, peer string, frame []byte) error {
	ev := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    b.source,
		EventType: FrameEventType,
		Version:   1,
		// кадры нельзя терять: пропуск дельты ломает реплику
		Priority: 9,
		Payload:  frame,
		Metadata: map[string]string{metaPeer: peer},
	}
	return b.bus.Publish(ctx, ev)
}

// Listen подписывает handler на кадры, адресованные узлу to
func (b *BusChannel) Listen(ctx context.Context, to string, handler FrameHandler) (eventbus.Subscription, error) {
	sub, err := b.bus.Subscribe(ctx, eventbus.Filter{Types: []string{FrameEventType}}, func(ctx context.Context, ev *eventbus.Envelope) {
		if ev.Metadata[metaPeer] != to {
			return
		}
		handler(ev.Source, ev.Payload)
	})
	if err != nil {
		return nil, err
	}
	logging.Debug("🔄 BusChannel: %s слушает кадры синхронизации", to)
	return sub, nil
}
