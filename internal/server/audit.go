package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-multipart/internal/eventbus"
	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// Типы событий аудита на шине
const (
	EventPartPlaced        = "PartPlaced"
	EventPartRemoved       = "PartRemoved"
	EventPlacementRejected = "PlacementRejected"
	EventPeerConnected     = "PeerConnected"
	EventPeerDisconnected  = "PeerDisconnected"
)

// AuditEvent: полезная нагрузка события аудита
type AuditEvent struct {
	Peer   string             `json:"peer"`
	Pos    *vec.Vec3          `json:"pos,omitempty"`
	PartID *multipart.PartID  `json:"part_id,omitempty"`
	Kind   multipart.PartKind `json:"kind,omitempty"`
	Error  string             `json:"error,omitempty"`
	Tick   uint64             `json:"tick"`
}

// auditPublisher публикует события из отдельной горутины:
// поток симуляции не ждёт шину
type auditPublisher struct {
	bus     eventbus.EventBus
	source  string
	queue   chan *eventbus.Envelope
	dropped uint64
	wg      sync.WaitGroup
	once    sync.Once
	logger  *logging.Logger
}

func newAuditPublisher(bus eventbus.EventBus, source string, capacity int) *auditPublisher {
	ap := &auditPublisher{
		bus:    bus,
		source: source,
		queue:  make(chan *eventbus.Envelope, capacity),
		logger: logging.GetServerLogger(),
	}
	ap.wg.Add(1)
	go ap.loop()
	return ap
}

// emit ставит событие в очередь; при переполнении событие теряется
func (ap *auditPublisher) emit(eventType string, ev AuditEvent) {
	if ap == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		ap.logger.Error("Не удалось сериализовать событие %s: %v", eventType, err)
		return
	}
	env := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    ap.source,
		EventType: eventType,
		Version:   1,
		Priority:  3,
		Payload:   payload,
		Metadata:  map[string]string{"peer": ev.Peer},
	}
	select {
	case ap.queue <- env:
	default:
		atomic.AddUint64(&ap.dropped, 1)
	}
}

func (ap *auditPublisher) loop() {
	defer ap.wg.Done()
	for env := range ap.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ap.bus.Publish(ctx, env); err != nil {
			ap.logger.Warn("Событие %s не опубликовано: %v", env.EventType, err)
		}
		cancel()
	}
}

// close дожидается отправки очереди
func (ap *auditPublisher) close() {
	if ap == nil {
		return
	}
	ap.once.Do(func() {
		close(ap.queue)
		ap.wg.Wait()
		if n := atomic.LoadUint64(&ap.dropped); n > 0 {
			ap.logger.Warn("Потеряно событий аудита: %d", n)
		}
	})
}
