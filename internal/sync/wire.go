package sync

import (
	"fmt"
	"math"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Номера полей тела сообщений
const (
	fieldPos protowire.Number = 1

	// Snapshot
	fieldSnapshotPart protowire.Number = 2

	// элемент Snapshot
	fieldPartSlot  protowire.Number = 1
	fieldPartID    protowire.Number = 2
	fieldPartKind  protowire.Number = 3
	fieldPartState protowire.Number = 4

	// Delta
	fieldDeltaChange protowire.Number = 2

	// элемент Delta
	fieldChangeID    protowire.Number = 1
	fieldChangeOp    protowire.Number = 2
	fieldChangeSlot  protowire.Number = 3
	fieldChangeKind  protowire.Number = 4
	fieldChangeState protowire.Number = 5

	// Place
	fieldPlaceFace  protowire.Number = 2
	fieldPlaceHit   protowire.Number = 3
	fieldPlaceKind  protowire.Number = 4
	fieldPlaceState protowire.Number = 5

	// Remove
	fieldRemoveID protowire.Number = 2
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendPos(b []byte, num protowire.Number, v vec.Vec3) []byte {
	var inner []byte
	inner = appendSint(inner, 1, int64(v.X))
	inner = appendSint(inner, 2, int64(v.Y))
	inner = appendSint(inner, 3, int64(v.Z))
	return appendBytes(b, num, inner)
}

func appendHit(b []byte, num protowire.Number, v vec.Vec3Float) []byte {
	var inner []byte
	inner = appendDouble(inner, 1, v.X)
	inner = appendDouble(inner, 2, v.Y)
	inner = appendDouble(inner, 3, v.Z)
	return appendBytes(b, num, inner)
}

func appendID(b []byte, num protowire.Number, id multipart.PartID) []byte {
	return appendBytes(b, num, id[:])
}

// appendState кладёт состояние как сериализованный google.protobuf.Struct.
// Пустое состояние не пишется.
func appendState(b []byte, num protowire.Number, s multipart.State) ([]byte, error) {
	if len(s) == 0 {
		return b, nil
	}
	st, err := structpb.NewStruct(map[string]interface{}(s))
	if err != nil {
		return nil, fmt.Errorf("состояние части: %w", err)
	}
	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("состояние части: %w", err)
	}
	return appendBytes(b, num, raw), nil
}

// field: одно прочитанное поле тела
type field struct {
	typ   protowire.Type
	num   uint64
	bytes []byte
}

// readFields обходит поля тела. Неизвестные поля пропускаются вызывающим.
func readFields(b []byte, fn func(num protowire.Number, f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]

		f := field{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.num, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.num, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]

		if err := fn(num, f); err != nil {
			return err
		}
	}
	return nil
}

func wireError(n int) error {
	return fmt.Errorf("%w: %v", ErrBadFrame, protowire.ParseError(n))
}

func (f field) expect(typ protowire.Type, name string) error {
	if f.typ != typ {
		return fmt.Errorf("%w: поле %s неверного типа %d", ErrBadFrame, name, f.typ)
	}
	return nil
}

func readPos(b []byte) (vec.Vec3, error) {
	var v vec.Vec3
	err := readFields(b, func(num protowire.Number, f field) error {
		if err := f.expect(protowire.VarintType, "pos"); err != nil {
			return err
		}
		c := int(protowire.DecodeZigZag(f.num))
		switch num {
		case 1:
			v.X = c
		case 2:
			v.Y = c
		case 3:
			v.Z = c
		}
		return nil
	})
	return v, err
}

func readHit(b []byte) (vec.Vec3Float, error) {
	var v vec.Vec3Float
	err := readFields(b, func(num protowire.Number, f field) error {
		if err := f.expect(protowire.Fixed64Type, "hit"); err != nil {
			return err
		}
		c := math.Float64frombits(f.num)
		switch num {
		case 1:
			v.X = c
		case 2:
			v.Y = c
		case 3:
			v.Z = c
		}
		return nil
	})
	return v, err
}

func readID(f field) (multipart.PartID, error) {
	if err := f.expect(protowire.BytesType, "id"); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromBytes(f.bytes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: идентификатор: %v", ErrBadFrame, err)
	}
	return id, nil
}

func readSlot(f field) (multipart.PartSlot, error) {
	if err := f.expect(protowire.VarintType, "slot"); err != nil {
		return 0, err
	}
	s := multipart.PartSlot(f.num)
	if f.num > math.MaxUint8 || !s.Valid() {
		return 0, fmt.Errorf("%w: неизвестный слот %d", ErrBadFrame, f.num)
	}
	return s, nil
}

func readString(f field, name string) (string, error) {
	if err := f.expect(protowire.BytesType, name); err != nil {
		return "", err
	}
	return string(f.bytes), nil
}

func readState(f field) (multipart.State, error) {
	if err := f.expect(protowire.BytesType, "state"); err != nil {
		return nil, err
	}
	var st structpb.Struct
	if err := proto.Unmarshal(f.bytes, &st); err != nil {
		return nil, fmt.Errorf("%w: состояние: %v", ErrBadFrame, err)
	}
	return multipart.State(st.AsMap()), nil
}

func readNested(f field, name string, fn func(b []byte) error) error {
	if err := f.expect(protowire.BytesType, name); err != nil {
		return err
	}
	return fn(f.bytes)
}
