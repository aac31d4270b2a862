package implementations

import "github.com/annel0/mmo-multipart/internal/world/block"

// Регистрируем все типы блоков при импорте пакета
func init() {
	block.Register(block.AirBlockID, &AirBehavior{})
	block.Register(block.StoneBlockID, &StoneBehavior{})
	block.Register(block.SlabBlockID, &SlabBehavior{})
	block.Register(block.LanternBlockID, &LanternBehavior{})
}
