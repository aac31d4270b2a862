package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами (позиция клетки)
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ToChunkCoords возвращает координаты чанка (16x16 по X/Z), которому принадлежит клетка
func (v Vec3) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Y: v.Z >> 4} // Деление на 16
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec3) LocalInChunk() Vec3 {
	return Vec3{X: v.X & 0xF, Y: v.Y, Z: v.Z & 0xF}
}

// Offset возвращает соседнюю клетку в направлении грани
func (v Vec3) Offset(f Face) Vec3 {
	d := f.Normal()
	return v.Add(d)
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// ToFloat преобразует в вектор с плавающими координатами
func (v Vec3) ToFloat() Vec3Float {
	return Vec3Float{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// String возвращает строковое представление позиции
func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
