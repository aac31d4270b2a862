package block

import "sync"

var (
	registryMu sync.RWMutex
	registry   = make(map[BlockID]BlockBehavior)
)

// Register добавляет поведение блока в регистр
func Register(id BlockID, behavior BlockBehavior) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = behavior
}

// Get возвращает поведение для указанного ID
func Get(id BlockID) (BlockBehavior, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	behavior, exists := registry[id]
	return behavior, exists
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id BlockID) bool {
	_, exists := Get(id)
	return exists
}

// BlockID представляет идентификатор блока
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1

	// Неполные блоки, которые могут делить клетку с частями (начиная с 100)
	SlabBlockID    BlockID = 100 // Полублок
	LanternBlockID BlockID = 101 // Фонарь на столбике
)
