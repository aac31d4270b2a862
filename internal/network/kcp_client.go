package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/mmo-multipart/internal/logging"
)

// KCPClient: клиентское соединение с авторитетным сервером.
// Адресат в Send игнорируется: у клиента один собеседник.
type KCPClient struct {
	conn    *kcp.UDPSession
	config  TransportConfig
	onFrame FrameHandler

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *logging.Logger
}

// DialKCP подключается к серверу и начинает читать кадры в onFrame
func DialKCP(addr string, config TransportConfig, onFrame FrameHandler) (*KCPClient, error) {
	conn, err := kcp.DialWithOptions(addr, nil, config.DataShards, config.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	tune(conn, config)

	c := &KCPClient{
		conn:    conn,
		config:  config,
		onFrame: onFrame,
		done:    make(chan struct{}),
		logger:  logging.GetNetworkLogger(),
	}
	c.wg.Add(1)
	go c.readLoop(addr)

	c.logger.Info("KCP клиент подключён: addr=%s", addr)
	return c, nil
}

// Send отправляет кадр серверу
func (c *KCPClient) Send(ctx context.Context, _ string, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.New("network: соединение закрыто")
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, frame)
}

// Close закрывает соединение
func (c *KCPClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	c.wg.Wait()
	return err
}

func (c *KCPClient) readLoop(server string) {
	defer c.wg.Done()

	r := bufio.NewReader(c.conn)
	for {
		frame, err := ReadFrame(r, c.config.MaxFrameSize)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("Ошибка чтения от сервера: %v", err)
			}
			return
		}
		if c.onFrame != nil {
			c.onFrame(server, frame)
		}
	}
}
