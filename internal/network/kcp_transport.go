package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/observability"
)

var (
	// ErrUnknownPeer: клиент не подключён
	ErrUnknownPeer = errors.New("network: неизвестный клиент")
	// ErrQueueFull: клиент не успевает принимать кадры и отключён
	ErrQueueFull = errors.New("network: очередь отправки переполнена")
)

// KCPTransport принимает KCP-соединения клиентов и доставляет им кадры
type KCPTransport struct {
	addr     string
	config   TransportConfig
	listener *kcp.Listener

	peers   map[string]*peerConn
	peersMu sync.RWMutex

	onConnect    func(peer string)
	onDisconnect func(peer string)
	onFrame      FrameHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// peerConn: одно клиентское соединение
type peerConn struct {
	id        string
	conn      *kcp.UDPSession
	sendQ     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	framesSent     uint64
	framesReceived uint64
	bytesSent      uint64
	bytesReceived  uint64
	lastActivity   int64
}

// NewKCPTransport создаёт транспорт, слушающий addr
func NewKCPTransport(addr string, config TransportConfig) *KCPTransport {
	return &KCPTransport{
		addr:   addr,
		config: config,
		peers:  make(map[string]*peerConn),
		logger: logging.GetNetworkLogger(),
	}
}

// SetHandlers устанавливает обработчики событий. Вызывается до Start.
func (t *KCPTransport) SetHandlers(onConnect, onDisconnect func(peer string), onFrame FrameHandler) {
	t.onConnect = onConnect
	t.onDisconnect = onDisconnect
	t.onFrame = onFrame
}

// Start начинает принимать соединения
func (t *KCPTransport) Start() error {
	listener, err := kcp.ListenWithOptions(t.addr, nil, t.config.DataShards, t.config.ParityShards)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}
	t.listener = listener
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go t.acceptLoop()

	t.logger.Info("🚀 KCP транспорт слушает %s", listener.Addr())
	return nil
}

// Addr возвращает фактический адрес после Start
func (t *KCPTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Stop закрывает слушатель и все соединения
func (t *KCPTransport) Stop() error {
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	err := t.listener.Close()

	t.peersMu.RLock()
	peers := make([]*peerConn, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.peersMu.RUnlock()
	for _, p := range peers {
		p.close()
	}

	t.wg.Wait()
	t.logger.Info("🛑 KCP транспорт остановлен")
	return err
}

// Send ставит кадр в очередь клиента. Медленный клиент отключается:
// пропущенная дельта всё равно потребует полного снимка.
func (t *KCPTransport) Send(ctx context.Context, peer string, frame []byte) error {
	t.peersMu.RLock()
	p, ok := t.peers[peer]
	t.peersMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return fmt.Errorf("%w: %s отключён", ErrUnknownPeer, peer)
	case p.sendQ <- frame:
		return nil
	default:
		t.logger.Warn("Очередь клиента %s переполнена, отключаем", peer)
		p.close()
		return fmt.Errorf("%w: %s", ErrQueueFull, peer)
	}
}

// Disconnect закрывает соединение клиента
func (t *KCPTransport) Disconnect(peer string) {
	t.peersMu.RLock()
	p, ok := t.peers[peer]
	t.peersMu.RUnlock()
	if ok {
		p.close()
	}
}

// Peers возвращает подключённых клиентов
func (t *KCPTransport) Peers() []string {
	t.peersMu.RLock()
	defer t.peersMu.RUnlock()
	out := make([]string, 0, len(t.peers))
	for id := range t.peers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stats возвращает статистику соединения клиента
func (t *KCPTransport) Stats(peer string) (ConnectionStats, bool) {
	t.peersMu.RLock()
	p, ok := t.peers[peer]
	t.peersMu.RUnlock()
	if !ok {
		return ConnectionStats{}, false
	}
	return ConnectionStats{
		FramesSent:     atomic.LoadUint64(&p.framesSent),
		FramesReceived: atomic.LoadUint64(&p.framesReceived),
		BytesSent:      atomic.LoadUint64(&p.bytesSent),
		BytesReceived:  atomic.LoadUint64(&p.bytesReceived),
		LastActivity:   time.Unix(0, atomic.LoadInt64(&p.lastActivity)),
		RemoteAddr:     p.conn.RemoteAddr().String(),
	}, true
}

// acceptLoop принимает входящие соединения
func (t *KCPTransport) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.AcceptKCP()
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
				t.logger.Error("Failed to accept connection: %v", err)
				continue
			}
		}

		tune(conn, t.config)
		p := &peerConn{
			id:           fmt.Sprintf("client-%s-%d", conn.RemoteAddr(), time.Now().UnixNano()),
			conn:         conn,
			sendQ:        make(chan []byte, t.config.BufferSize),
			done:         make(chan struct{}),
			lastActivity: time.Now().UnixNano(),
		}

		t.peersMu.Lock()
		t.peers[p.id] = p
		t.peersMu.Unlock()
		observability.NetworkPeers.Inc()

		t.logger.Info("🔗 KCP клиент подключен: %s", p.id)
		if t.onConnect != nil {
			t.onConnect(p.id)
		}

		t.wg.Add(2)
		go t.sendLoop(p)
		go t.readLoop(p)
	}
}

// readLoop читает кадры клиента до ошибки или простоя
func (t *KCPTransport) readLoop(p *peerConn) {
	defer t.wg.Done()
	defer t.drop(p)

	r := bufio.NewReader(p.conn)
	for {
		if t.config.IdleTimeout > 0 {
			_ = p.conn.SetReadDeadline(time.Now().Add(t.config.IdleTimeout))
		}
		frame, err := ReadFrame(r, t.config.MaxFrameSize)
		if err != nil {
			select {
			case <-p.done:
			default:
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					t.logger.Info("⌛ Клиент %s молчит дольше %v", p.id, t.config.IdleTimeout)
				} else {
					t.logger.Warn("Ошибка чтения от %s: %v", p.id, err)
				}
			}
			return
		}

		atomic.AddUint64(&p.framesReceived, 1)
		atomic.AddUint64(&p.bytesReceived, uint64(len(frame)+lengthPrefix))
		atomic.StoreInt64(&p.lastActivity, time.Now().UnixNano())
		observability.NetworkFramesReceived.Inc()

		if t.onFrame != nil {
			t.onFrame(p.id, frame)
		}
	}
}

// sendLoop пишет кадры из очереди клиента
func (t *KCPTransport) sendLoop(p *peerConn) {
	defer t.wg.Done()

	for {
		select {
		case frame := <-p.sendQ:
			if err := WriteFrame(p.conn, frame); err != nil {
				t.logger.Warn("Ошибка отправки клиенту %s: %v", p.id, err)
				p.close()
				return
			}
			atomic.AddUint64(&p.framesSent, 1)
			atomic.AddUint64(&p.bytesSent, uint64(len(frame)+lengthPrefix))
			atomic.StoreInt64(&p.lastActivity, time.Now().UnixNano())
		case <-p.done:
			return
		}
	}
}

// drop убирает клиента после завершения чтения
func (t *KCPTransport) drop(p *peerConn) {
	p.close()

	t.peersMu.Lock()
	_, ok := t.peers[p.id]
	delete(t.peers, p.id)
	t.peersMu.Unlock()
	if !ok {
		return
	}

	observability.NetworkPeers.Dec()
	t.logger.Info("👋 KCP клиент отключен: %s", p.id)
	if t.onDisconnect != nil {
		t.onDisconnect(p.id)
	}
}

func (p *peerConn) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// tune настраивает KCP для игрового трафика
func tune(conn *kcp.UDPSession, cfg TransportConfig) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1)
	conn.SetWindowSize(cfg.WindowSize, cfg.WindowSize)
	conn.SetMtu(cfg.MTU)
}
