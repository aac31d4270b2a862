// Package capability описывает закрытый набор сервисов, которые клетка
// или часть клетки может предоставлять через свои грани.
package capability

import "fmt"

// Kind: тип сервиса, запрашиваемого у грани клетки
type Kind uint8

const (
	Energy Kind = iota + 1 // хранилище энергии
	Signal                 // источник сигнала
	Items                  // приёмник предметов
)

// String возвращает имя сервиса
func (k Kind) String() string {
	switch k {
	case Energy:
		return "energy"
	case Signal:
		return "signal"
	case Items:
		return "items"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// EnergyStorage: типизированный доступ к сервису Energy
type EnergyStorage interface {
	Stored() int
	Capacity() int
	// Receive принимает до amount единиц и возвращает фактически принятое количество
	Receive(amount int) int
	// Extract отдаёт до amount единиц
	Extract(amount int) int
}

// SignalSource: типизированный доступ к сервису Signal
type SignalSource interface {
	// Level возвращает уровень сигнала 0..15
	Level() int
}

// ItemSink: типизированный доступ к сервису Items
type ItemSink interface {
	// Insert пытается принять count предметов item и возвращает принятое количество
	Insert(item string, count int) int
}
