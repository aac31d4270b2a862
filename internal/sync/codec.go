package sync

import (
	"errors"
	"fmt"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

// Кадр: [заголовок][тип сообщения][тело protobuf wire].
// Тело Unobserve совпадает с Resync: угловая клетка чанка.
// Бит 0 заголовка: тело сжато zstd.
const (
	flagCompressed byte = 1 << 0
	frameHeaderLen      = 2

	// DefaultCompressAbove: тела короче не сжимаются
	DefaultCompressAbove = 256
	// MaxFrameSize: предел размера распакованного тела
	MaxFrameSize = 1 << 20
)

// ErrBadFrame: кадр не разбирается
var ErrBadFrame = errors.New("sync: повреждённый кадр")

// Codec кодирует сообщения в кадры и обратно. Безопасен для параллельного использования.
type Codec struct {
	compressAbove int
	enc           *zstd.Encoder
	dec           *zstd.Decoder
}

// NewCodec создаёт кодек. Тела длиннее compressAbove сжимаются,
// отрицательное значение отключает сжатие.
func NewCodec(compressAbove int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxFrameSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{compressAbove: compressAbove, enc: enc, dec: dec}, nil
}

// Close освобождает ресурсы zstd
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Encode собирает кадр сообщения
func (c *Codec) Encode(m Message) ([]byte, error) {
	body, err := marshalBody(m)
	if err != nil {
		return nil, err
	}

	var header byte
	if c.compressAbove >= 0 && len(body) > c.compressAbove {
		packed := c.enc.EncodeAll(body, make([]byte, 0, len(body)/2))
		if len(packed) < len(body) {
			body = packed
			header |= flagCompressed
		}
	}

	frame := make([]byte, 0, frameHeaderLen+len(body))
	frame = append(frame, header, byte(m.Kind()))
	return append(frame, body...), nil
}

// Decode разбирает кадр
func (c *Codec) Decode(frame []byte) (Message, error) {
	if len(frame) < frameHeaderLen {
		return nil, fmt.Errorf("%w: короткий кадр (%d байт)", ErrBadFrame, len(frame))
	}
	header, kind, body := frame[0], MsgKind(frame[1]), frame[frameHeaderLen:]
	if header&^flagCompressed != 0 {
		return nil, fmt.Errorf("%w: неизвестные флаги %#x", ErrBadFrame, header)
	}
	if header&flagCompressed != 0 {
		raw, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrBadFrame, err)
		}
		body = raw
	}

	switch kind {
	case MsgSnapshot:
		return unmarshalSnapshot(body)
	case MsgDelta:
		return unmarshalDelta(body)
	case MsgPlace:
		return unmarshalPlace(body)
	case MsgRemove:
		return unmarshalRemove(body)
	case MsgResync:
		return unmarshalResync(body)
	case MsgUnobserve:
		resync, err := unmarshalResync(body)
		if err != nil {
			return nil, err
		}
		return &Unobserve{Chunk: resync.Pos.ToChunkCoords()}, nil
	}
	return nil, fmt.Errorf("%w: неизвестный тип %s", ErrBadFrame, kind)
}

func marshalBody(m Message) ([]byte, error) {
	b := appendPos(nil, fieldPos, m.CellPos())
	var err error

	switch msg := m.(type) {
	case *Snapshot:
		for _, d := range msg.Parts {
			var part []byte
			part = appendVarint(part, fieldPartSlot, uint64(d.Slot))
			part = appendID(part, fieldPartID, d.ID)
			part = appendString(part, fieldPartKind, string(d.Kind))
			if part, err = appendState(part, fieldPartState, d.State); err != nil {
				return nil, err
			}
			b = appendBytes(b, fieldSnapshotPart, part)
		}
	case *Delta:
		for _, ch := range msg.Changes {
			var change []byte
			change = appendID(change, fieldChangeID, ch.ID)
			change = appendVarint(change, fieldChangeOp, uint64(ch.Op))
			change = appendVarint(change, fieldChangeSlot, uint64(ch.Slot))
			if ch.Op != OpRemove {
				change = appendString(change, fieldChangeKind, string(ch.Kind))
				if change, err = appendState(change, fieldChangeState, ch.State); err != nil {
					return nil, err
				}
			}
			b = appendBytes(b, fieldDeltaChange, change)
		}
	case *Place:
		b = appendVarint(b, fieldPlaceFace, uint64(msg.Face))
		b = appendHit(b, fieldPlaceHit, msg.Hit)
		b = appendString(b, fieldPlaceKind, string(msg.PartKind))
		if b, err = appendState(b, fieldPlaceState, msg.State); err != nil {
			return nil, err
		}
	case *Remove:
		b = appendID(b, fieldRemoveID, msg.ID)
	case *Resync, *Unobserve:
	default:
		return nil, fmt.Errorf("sync: неизвестное сообщение %T", m)
	}
	return b, nil
}

func unmarshalSnapshot(body []byte) (*Snapshot, error) {
	msg := &Snapshot{}
	err := readFields(body, func(num protowire.Number, f field) error {
		switch num {
		case fieldPos:
			return readNested(f, "pos", func(b []byte) (err error) {
				msg.Pos, err = readPos(b)
				return err
			})
		case fieldSnapshotPart:
			return readNested(f, "part", func(b []byte) error {
				d, err := unmarshalPart(b)
				if err != nil {
					return err
				}
				msg.Parts = append(msg.Parts, d)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalPart(b []byte) (multipart.PartDescription, error) {
	var d multipart.PartDescription
	err := readFields(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case fieldPartSlot:
			d.Slot, err = readSlot(f)
		case fieldPartID:
			d.ID, err = readID(f)
		case fieldPartKind:
			var kind string
			kind, err = readString(f, "kind")
			d.Kind = multipart.PartKind(kind)
		case fieldPartState:
			d.State, err = readState(f)
		}
		return err
	})
	if err != nil {
		return d, err
	}
	if d.ID == uuid.Nil || d.Kind == "" {
		return d, fmt.Errorf("%w: часть без идентификатора или типа", ErrBadFrame)
	}
	return d, nil
}

func unmarshalDelta(body []byte) (*Delta, error) {
	msg := &Delta{}
	err := readFields(body, func(num protowire.Number, f field) error {
		switch num {
		case fieldPos:
			return readNested(f, "pos", func(b []byte) (err error) {
				msg.Pos, err = readPos(b)
				return err
			})
		case fieldDeltaChange:
			return readNested(f, "change", func(b []byte) error {
				ch, err := unmarshalChange(b)
				if err != nil {
					return err
				}
				msg.Changes = append(msg.Changes, ch)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalChange(b []byte) (PartDelta, error) {
	var ch PartDelta
	err := readFields(b, func(num protowire.Number, f field) (err error) {
		switch num {
		case fieldChangeID:
			ch.ID, err = readID(f)
		case fieldChangeOp:
			if err = f.expect(protowire.VarintType, "op"); err == nil {
				ch.Op = DeltaOp(f.num)
				if f.num < uint64(OpAdd) || f.num > uint64(OpUpdate) {
					err = fmt.Errorf("%w: неизвестная операция %d", ErrBadFrame, f.num)
				}
			}
		case fieldChangeSlot:
			ch.Slot, err = readSlot(f)
		case fieldChangeKind:
			var kind string
			kind, err = readString(f, "kind")
			ch.Kind = multipart.PartKind(kind)
		case fieldChangeState:
			ch.State, err = readState(f)
		}
		return err
	})
	if err != nil {
		return ch, err
	}
	if ch.ID == uuid.Nil || ch.Op == 0 {
		return ch, fmt.Errorf("%w: изменение без идентификатора или операции", ErrBadFrame)
	}
	if ch.Op != OpRemove && ch.Kind == "" {
		return ch, fmt.Errorf("%w: %s без типа части", ErrBadFrame, ch.Op)
	}
	return ch, nil
}

func unmarshalPlace(body []byte) (*Place, error) {
	msg := &Place{}
	err := readFields(body, func(num protowire.Number, f field) (err error) {
		switch num {
		case fieldPos:
			return readNested(f, "pos", func(b []byte) (err error) {
				msg.Pos, err = readPos(b)
				return err
			})
		case fieldPlaceFace:
			if err = f.expect(protowire.VarintType, "face"); err == nil {
				msg.Face = vec.Face(f.num)
				if f.num >= uint64(vec.FaceCount) {
					err = fmt.Errorf("%w: неизвестная грань %d", ErrBadFrame, f.num)
				}
			}
		case fieldPlaceHit:
			return readNested(f, "hit", func(b []byte) (err error) {
				msg.Hit, err = readHit(b)
				return err
			})
		case fieldPlaceKind:
			var kind string
			kind, err = readString(f, "kind")
			msg.PartKind = multipart.PartKind(kind)
		case fieldPlaceState:
			msg.State, err = readState(f)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalRemove(body []byte) (*Remove, error) {
	msg := &Remove{}
	err := readFields(body, func(num protowire.Number, f field) (err error) {
		switch num {
		case fieldPos:
			return readNested(f, "pos", func(b []byte) (err error) {
				msg.Pos, err = readPos(b)
				return err
			})
		case fieldRemoveID:
			msg.ID, err = readID(f)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: remove без идентификатора", ErrBadFrame)
	}
	return msg, nil
}

func unmarshalResync(body []byte) (*Resync, error) {
	msg := &Resync{}
	err := readFields(body, func(num protowire.Number, f field) error {
		if num == fieldPos {
			return readNested(f, "pos", func(b []byte) (err error) {
				msg.Pos, err = readPos(b)
				return err
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
