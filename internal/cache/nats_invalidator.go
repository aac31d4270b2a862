package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/annel0/mmo-multipart/internal/logging"
)

// NATSInvalidator рассылает инвалидации снимков между узлами через NATS Pub/Sub.
// Собственные сообщения узла игнорируются.
type NATSInvalidator struct {
	conn    *nats.Conn
	config  *InvalidatorConfig
	subject string
	nodeID  string

	subscription *nats.Subscription
	handler      InvalidationHandler
	subMu        sync.Mutex

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	publishedCount int64
	receivedCount  int64
	errorsCount    int64

	logger *logging.Logger
}

// InvalidatorConfig содержит конфигурацию NATS invalidator
type InvalidatorConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`

	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// InvalidationMessage: одно уведомление на пачку ключей
type InvalidationMessage struct {
	Keys      []string  `json:"keys"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// NewNATSInvalidator подключается к NATS.
// nodeID отличает собственные сообщения от чужих.
func NewNATSInvalidator(config *InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	if config.Subject == "" {
		config.Subject = "multipart.cache.invalidation"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 5 * time.Second
	}

	logger := logging.GetComponentLogger("cache")
	opts := []nats.Option{
		nats.Name("mmo-multipart-cache-" + nodeID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := &NATSInvalidator{
		conn:    conn,
		config:  config,
		subject: config.Subject,
		nodeID:  nodeID,
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
	logger.Info("NATS invalidator initialized: %s (subject: %s)", config.NATSURL, config.Subject)
	return n, nil
}

// PublishInvalidation отправляет одно уведомление на все ключи
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(&InvalidationMessage{
		Keys:      keys,
		Timestamp: time.Now(),
		NodeID:    n.nodeID,
	})
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	atomic.AddInt64(&n.publishedCount, 1)
	n.logger.Trace("Published invalidation for %d keys", len(keys))
	return nil
}

// SubscribeInvalidations подписывается на чужие инвалидации до отмены ctx или Close
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.subscription != nil {
		return errors.New("already subscribed to invalidations")
	}

	n.handler = handler
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) { n.handleMessage(msg.Data) })
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()

	n.logger.Info("Subscribed to cache invalidations on subject: %s", n.subject)
	return nil
}

// Close отписывается и закрывает соединение
func (n *NATSInvalidator) Close() error {
	n.closeOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
		n.conn.Close()
		n.logger.Info("NATS invalidator closed")
	})
	return nil
}

// GetMetrics возвращает счётчики invalidator
func (n *NATSInvalidator) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"published_count": atomic.LoadInt64(&n.publishedCount),
		"received_count":  atomic.LoadInt64(&n.receivedCount),
		"errors_count":    atomic.LoadInt64(&n.errorsCount),
		"connected":       n.conn != nil && n.conn.IsConnected(),
	}
}

// handleMessage разбирает уведомление и вызывает обработчик для каждого ключа
func (n *NATSInvalidator) handleMessage(data []byte) {
	atomic.AddInt64(&n.receivedCount, 1)

	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		n.logger.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}
	if msg.NodeID == n.nodeID || n.handler == nil {
		return
	}

	for _, key := range msg.Keys {
		if err := n.handler(key); err != nil {
			atomic.AddInt64(&n.errorsCount, 1)
			n.logger.Error("Invalidation handler failed for key %s: %v", key, err)
		}
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil {
		n.logger.Error("Failed to unsubscribe from invalidations: %v", err)
	}
	n.subscription = nil
}
