package sync

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// MsgKind: тип сообщения во втором байте кадра
type MsgKind uint8

const (
	MsgSnapshot MsgKind = iota + 1
	MsgDelta
	MsgPlace
	MsgRemove
	MsgResync
	MsgUnobserve
)

func (k MsgKind) String() string {
	switch k {
	case MsgSnapshot:
		return "snapshot"
	case MsgDelta:
		return "delta"
	case MsgPlace:
		return "place"
	case MsgRemove:
		return "remove"
	case MsgResync:
		return "resync"
	case MsgUnobserve:
		return "unobserve"
	}
	return fmt.Sprintf("msg(%d)", uint8(k))
}

// Message: сообщение протокола синхронизации многосоставных клеток
type Message interface {
	Kind() MsgKind
	CellPos() vec.Vec3
}

// Snapshot: полное описание клетки. Пустой список частей означает,
// что клетка больше не многосоставная.
type Snapshot struct {
	Pos   vec.Vec3
	Parts []multipart.PartDescription
}

// DeltaOp: операция над одной частью
type DeltaOp uint8

const (
	OpAdd DeltaOp = iota + 1
	OpRemove
	OpUpdate
)

func (op DeltaOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpUpdate:
		return "update"
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// PartDelta: изменение одной части. Kind и State заполнены для add и update.
type PartDelta struct {
	ID    multipart.PartID
	Op    DeltaOp
	Slot  multipart.PartSlot
	Kind  multipart.PartKind
	State multipart.State
}

// Delta: изменения частей одной клетки в порядке их первого появления
type Delta struct {
	Pos     vec.Vec3
	Changes []PartDelta
}

// Place: запрос клиента на установку части
type Place struct {
	Pos      vec.Vec3
	Face     vec.Face
	Hit      vec.Vec3Float
	PartKind multipart.PartKind
	State    multipart.State
}

// Remove: запрос клиента на снятие части
type Remove struct {
	Pos vec.Vec3
	ID  multipart.PartID
}

// Resync: запрос клиента на полный снимок клетки после расхождения
type Resync struct {
	Pos vec.Vec3
}

// Unobserve: чанк вышел из области наблюдения клиента, его клетки надо забыть.
// Следующее наблюдение начнётся со снимков.
type Unobserve struct {
	Chunk vec.Vec2
}

func (m *Snapshot) Kind() MsgKind  { return MsgSnapshot }
func (m *Delta) Kind() MsgKind     { return MsgDelta }
func (m *Place) Kind() MsgKind     { return MsgPlace }
func (m *Remove) Kind() MsgKind    { return MsgRemove }
func (m *Resync) Kind() MsgKind    { return MsgResync }
func (m *Unobserve) Kind() MsgKind { return MsgUnobserve }

func (m *Snapshot) CellPos() vec.Vec3 { return m.Pos }
func (m *Delta) CellPos() vec.Vec3    { return m.Pos }
func (m *Place) CellPos() vec.Vec3    { return m.Pos }
func (m *Remove) CellPos() vec.Vec3   { return m.Pos }
func (m *Resync) CellPos() vec.Vec3   { return m.Pos }

// CellPos возвращает угловую клетку чанка
func (m *Unobserve) CellPos() vec.Vec3 {
	return vec.Vec3{X: m.Chunk.X << 4, Z: m.Chunk.Y << 4}
}

// PlaceRequest переводит сообщение клиента в запрос конвейера установки
func (m *Place) PlaceRequest() multipart.PlaceRequest {
	return multipart.PlaceRequest{
		Pos:   m.Pos,
		Face:  m.Face,
		Hit:   m.Hit,
		Kind:  m.PartKind,
		State: m.State,
	}
}
