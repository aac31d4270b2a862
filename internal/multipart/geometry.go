package multipart

import "github.com/annel0/mmo-multipart/internal/vec"

const (
	// PanelThickness: номинальная толщина панели
	PanelThickness = 0.125
	// CenterMin и CenterMax ограничивают номинальный объём центрального слота
	CenterMin = 0.25
	CenterMax = 0.75
)

// PanelBox возвращает бокс толщиной thickness, прижатый к грани f
func PanelBox(f vec.Face, thickness float64) vec.Box {
	switch f {
	case vec.FaceDown:
		return vec.NewBox(0, 0, 0, 1, thickness, 1)
	case vec.FaceUp:
		return vec.NewBox(0, 1-thickness, 0, 1, 1, 1)
	case vec.FaceNorth:
		return vec.NewBox(0, 0, 0, 1, 1, thickness)
	case vec.FaceSouth:
		return vec.NewBox(0, 0, 1-thickness, 1, 1, 1)
	case vec.FaceWest:
		return vec.NewBox(0, 0, 0, thickness, 1, 1)
	case vec.FaceEast:
		return vec.NewBox(1-thickness, 0, 0, 1, 1, 1)
	}
	return vec.Box{}
}

// NominalBox возвращает номинальный объём слота, не зависящий от состояния части
func NominalBox(s PartSlot) vec.Box {
	if f, ok := s.Face(); ok {
		return PanelBox(f, PanelThickness)
	}
	if s == SlotCenter {
		return vec.NewBox(CenterMin, CenterMin, CenterMin, CenterMax, CenterMax, CenterMax)
	}
	return vec.FullCell
}

// SlotTouchesFace сообщает, выходит ли слот на грань клетки.
// Панель выходит только на свою грань, центр ни на одну, целая клетка на все.
func SlotTouchesFace(s PartSlot, f vec.Face) bool {
	switch {
	case s == SlotWhole:
		return true
	case s == SlotCenter:
		return false
	}
	face, ok := s.Face()
	return ok && face == f
}
