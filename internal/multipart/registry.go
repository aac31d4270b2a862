package multipart

import (
	"fmt"
	"sort"
	"sync"
)

// Factory создаёт пустую часть зарегистрированного типа
type Factory func() Part

// KindOptions описывает правила размещения типа части
type KindOptions struct {
	// Placeable: тип можно установить запросом клиента
	Placeable bool
	// Exclusive: часть этого типа не делит клетку с другими
	Exclusive bool
}

type kindEntry struct {
	factory Factory
	opts    KindOptions
}

var (
	kindsMu sync.RWMutex
	kinds   = make(map[PartKind]kindEntry)
)

// RegisterKind регистрирует тип части
func RegisterKind(kind PartKind, factory Factory, opts KindOptions) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[kind] = kindEntry{factory: factory, opts: opts}
}

// KindOptionsOf возвращает правила размещения типа
func KindOptionsOf(kind PartKind) (KindOptions, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	e, ok := kinds[kind]
	return e.opts, ok
}

// NewPart создаёт часть по имени типа
func NewPart(kind PartKind) (Part, error) {
	kindsMu.RLock()
	e, ok := kinds[kind]
	kindsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return e.factory(), nil
}

// Kinds возвращает имена зарегистрированных типов в алфавитном порядке
func Kinds() []PartKind {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]PartKind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
