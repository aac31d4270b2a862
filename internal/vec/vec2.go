package vec

import "math"

// Vec2 представляет 2D координаты (координаты чанка по X/Z)
type Vec2 struct {
	X, Y int
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// WithinRadius проверяет, лежит ли точка в круге радиуса radius вокруг center
func (v Vec2) WithinRadius(center Vec2, radius int) bool {
	dx := v.X - center.X
	dy := v.Y - center.Y
	return dx*dx+dy*dy <= radius*radius
}
