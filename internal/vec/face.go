package vec

import "fmt"

// Face определяет грань клетки.
// Оси: X растёт на восток, Y вверх, Z на юг (север = -Z).
type Face uint8

const (
	FaceDown Face = iota
	FaceUp
	FaceNorth
	FaceSouth
	FaceWest
	FaceEast

	FaceCount // всегда последний: количество граней
)

// AllFaces перечисляет грани в фиксированном порядке
var AllFaces = [FaceCount]Face{FaceDown, FaceUp, FaceNorth, FaceSouth, FaceWest, FaceEast}

var faceNames = [FaceCount]string{"down", "up", "north", "south", "west", "east"}

// String возвращает имя грани
func (f Face) String() string {
	if f >= FaceCount {
		return fmt.Sprintf("face(%d)", uint8(f))
	}
	return faceNames[f]
}

// Valid проверяет, что значение грани допустимо
func (f Face) Valid() bool {
	return f < FaceCount
}

// ParseFace разбирает имя грани
func ParseFace(s string) (Face, error) {
	for i, name := range faceNames {
		if name == s {
			return Face(i), nil
		}
	}
	return 0, fmt.Errorf("неизвестная грань %q", s)
}

// Opposite возвращает противоположную грань
func (f Face) Opposite() Face {
	return f ^ 1
}

// Normal возвращает единичный вектор нормали грани
func (f Face) Normal() Vec3 {
	switch f {
	case FaceDown:
		return Vec3{Y: -1}
	case FaceUp:
		return Vec3{Y: 1}
	case FaceNorth:
		return Vec3{Z: -1}
	case FaceSouth:
		return Vec3{Z: 1}
	case FaceWest:
		return Vec3{X: -1}
	case FaceEast:
		return Vec3{X: 1}
	}
	return Vec3{}
}
