package multipart

import "github.com/annel0/mmo-multipart/internal/vec"

// Overlaps проверяет пересечение двух наборов боксов с ненулевым объёмом.
// Общая граница пересечением не считается. Пустой набор ни с чем не пересекается.
func Overlaps(a, b []vec.Box) bool {
	for _, x := range a {
		if x.Empty() {
			continue
		}
		for _, y := range b {
			if y.Empty() {
				continue
			}
			if x.Intersects(y) {
				return true
			}
		}
	}
	return false
}

// OcclusionTest возвращает true, если объём candidate пересекается
// с любой установленной частью, кроме перечисленных в ignored
func (c *Container) OcclusionTest(candidate Part, ignored ...Part) bool {
	if candidate == nil {
		return false
	}
	boxes := candidate.Boxes()
	if len(boxes) == 0 {
		return false
	}

	occluded := false
	c.table.each(func(rec *partRecord) bool {
		if rec.part == candidate || isIgnored(rec.part, ignored) {
			return true
		}
		if Overlaps(boxes, rec.part.Boxes()) {
			occluded = true
			return false
		}
		return true
	})
	return occluded
}

func isIgnored(p Part, ignored []Part) bool {
	for _, ig := range ignored {
		if ig == p {
			return true
		}
	}
	return false
}
