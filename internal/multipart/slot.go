package multipart

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/vec"
)

// PartSlot: классификационный слот части. Порядок констант задаёт приоритет
// при маршрутизации запросов сервисов.
type PartSlot uint8

const (
	SlotPanelDown PartSlot = iota
	SlotPanelUp
	SlotPanelNorth
	SlotPanelSouth
	SlotPanelWest
	SlotPanelEast
	SlotCenter
	SlotWhole

	slotCount // всегда последний
)

// AllSlots перечисляет слоты в порядке приоритета
var AllSlots = [slotCount]PartSlot{
	SlotPanelDown, SlotPanelUp, SlotPanelNorth, SlotPanelSouth,
	SlotPanelWest, SlotPanelEast, SlotCenter, SlotWhole,
}

var slotNames = [slotCount]string{
	"panel-down", "panel-up", "panel-north", "panel-south",
	"panel-west", "panel-east", "center", "whole",
}

// String возвращает имя слота
func (s PartSlot) String() string {
	if !s.Valid() {
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
	return slotNames[s]
}

// Valid проверяет, что слот принадлежит перечислению
func (s PartSlot) Valid() bool {
	return s < slotCount
}

// ParseSlot разбирает имя слота
func ParseSlot(name string) (PartSlot, error) {
	for i, n := range slotNames {
		if n == name {
			return PartSlot(i), nil
		}
	}
	return 0, fmt.Errorf("неизвестный слот %q", name)
}

// MarshalText сохраняет слот по имени
func (s PartSlot) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("недопустимый слот %d", uint8(s))
	}
	return []byte(slotNames[s]), nil
}

// UnmarshalText читает слот по имени
func (s *PartSlot) UnmarshalText(text []byte) error {
	parsed, err := ParseSlot(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PanelSlot возвращает слот панели, прижатой к грани
func PanelSlot(f vec.Face) PartSlot {
	return PartSlot(f)
}

// Face возвращает грань панельного слота
func (s PartSlot) Face() (vec.Face, bool) {
	if s > SlotPanelEast {
		return 0, false
	}
	return vec.Face(s), true
}
