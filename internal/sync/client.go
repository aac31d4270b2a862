package sync

import (
	"context"
	"errors"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// Client: клиентская сторона протокола: реплика плюс отправка запросов серверу
type Client struct {
	replica   *Replica
	codec     *Codec
	out       Channel
	authority string
}

// NewClient создаёт клиента, отправляющего запросы узлу authority
func NewClient(codec *Codec, out Channel, authority string) *Client {
	return &Client{replica: NewReplica(), codec: codec, out: out, authority: authority}
}

// Replica возвращает локальную копию клеток
func (c *Client) Replica() *Replica { return c.replica }

// HandleFrame применяет кадр сервера. При расхождении запрашивает снимок клетки.
func (c *Client) HandleFrame(ctx context.Context, frame []byte) error {
	msg, err := c.codec.Decode(frame)
	if err != nil {
		return err
	}
	err = c.replica.Apply(msg)
	if errors.Is(err, ErrDesync) {
		c.replica.logger.Warn("Расхождение в %s: %v, запрашиваем снимок", msg.CellPos(), err)
		return c.send(ctx, &Resync{Pos: msg.CellPos()})
	}
	return err
}

// Place просит сервер установить часть
func (c *Client) Place(ctx context.Context, req multipart.PlaceRequest) error {
	return c.send(ctx, &Place{Pos: req.Pos, Face: req.Face, Hit: req.Hit, PartKind: req.Kind, State: req.State})
}

// Remove просит сервер снять часть
func (c *Client) Remove(ctx context.Context, pos vec.Vec3, id multipart.PartID) error {
	return c.send(ctx, &Remove{Pos: pos, ID: id})
}

func (c *Client) send(ctx context.Context, m Message) error {
	frame, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	return c.out.Send(ctx, c.authority, frame)
}
