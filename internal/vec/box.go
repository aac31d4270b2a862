package vec

// Box: осевыровненный параллелепипед в локальных координатах клетки [0,1]^3
type Box struct {
	Min Vec3Float `json:"min"`
	Max Vec3Float `json:"max"`
}

// FullCell занимает клетку целиком
var FullCell = NewBox(0, 0, 0, 1, 1, 1)

// NewBox создаёт бокс, упорядочивая координаты
func NewBox(x1, y1, z1, x2, y2, z2 float64) Box {
	return Box{
		Min: Vec3Float{X: minF(x1, x2), Y: minF(y1, y2), Z: minF(z1, z2)},
		Max: Vec3Float{X: maxF(x1, x2), Y: maxF(y1, y2), Z: maxF(z1, z2)},
	}
}

// Intersects проверяет пересечение с ненулевым объёмом.
// Касание по грани пересечением не считается.
func (b Box) Intersects(o Box) bool {
	return b.Min.X < o.Max.X && o.Min.X < b.Max.X &&
		b.Min.Y < o.Max.Y && o.Min.Y < b.Max.Y &&
		b.Min.Z < o.Max.Z && o.Min.Z < b.Max.Z
}

// Empty возвращает true для вырожденного бокса без объёма
func (b Box) Empty() bool {
	return b.Max.X <= b.Min.X || b.Max.Y <= b.Min.Y || b.Max.Z <= b.Min.Z
}

// TouchesFace проверяет, лежит ли одна из сторон бокса в плоскости грани клетки
func (b Box) TouchesFace(f Face) bool {
	switch f {
	case FaceDown:
		return b.Min.Y <= 0
	case FaceUp:
		return b.Max.Y >= 1
	case FaceNorth:
		return b.Min.Z <= 0
	case FaceSouth:
		return b.Max.Z >= 1
	case FaceWest:
		return b.Min.X <= 0
	case FaceEast:
		return b.Max.X >= 1
	}
	return false
}

// Union возвращает минимальный бокс, содержащий оба
func (b Box) Union(o Box) Box {
	return Box{
		Min: Vec3Float{X: minF(b.Min.X, o.Min.X), Y: minF(b.Min.Y, o.Min.Y), Z: minF(b.Min.Z, o.Min.Z)},
		Max: Vec3Float{X: maxF(b.Max.X, o.Max.X), Y: maxF(b.Max.Y, o.Max.Y), Z: maxF(b.Max.Z, o.Max.Z)},
	}
}

// Offset сдвигает бокс на позицию клетки
func (b Box) Offset(p Vec3) Box {
	d := p.ToFloat()
	return Box{
		Min: Vec3Float{X: b.Min.X + d.X, Y: b.Min.Y + d.Y, Z: b.Min.Z + d.Z},
		Max: Vec3Float{X: b.Max.X + d.X, Y: b.Max.Y + d.Y, Z: b.Max.Z + d.Z},
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
