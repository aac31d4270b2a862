package multipart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
	"github.com/annel0/mmo-multipart/internal/world/block/implementations"
)

var cellPos = vec.Vec3{X: 5, Y: 64, Z: -3}

func slabBlock(half string) block.Block {
	return block.NewBlockWithMetadata(block.SlabBlockID, block.Metadata{"half": half})
}

// topSlabPart: верхний полублок, возвращающийся в блок
func topSlabPart() *testPart {
	b := slabBlock(implementations.SlabTop)
	p := newTestPart(SlotPanelUp, vec.NewBox(0, 0.5, 0, 1, 1, 1))
	p.revert = &b
	return p
}

func TestConversionRoundTrip(t *testing.T) {
	cells := mapCells{}
	rec := &recorder{}
	svc := NewConversionService(cells, rec)

	// Empty → Single: обычная установка блока
	cells.SetCell(cellPos, SingleCell(slabBlock(implementations.SlabBottom)))
	require.Equal(t, CellSingle, cells.Cell(cellPos).Kind)

	// Single → Multi
	b := topSlabPart()
	c, idB, err := svc.ConvertAndAdd(cellPos, b)
	require.NoError(t, err)
	cell := cells.Cell(cellPos)
	require.Equal(t, CellMulti, cell.Kind)
	require.Same(t, c, cell.Container)
	assert.Equal(t, 2, c.Len())

	wrapped, ok := c.PartInSlot(SlotWhole)
	require.True(t, ok)
	a, ok := wrapped.(*BlockPart)
	require.True(t, ok)
	idA, ok := c.PartID(a)
	require.True(t, ok)
	assert.NotEqual(t, idA, idB)

	// Multi → Single: остаётся верхний полублок
	require.NoError(t, c.RemovePart(a))
	cell = cells.Cell(cellPos)
	require.Equal(t, CellSingle, cell.Kind)
	assert.Nil(t, cell.Container)
	assert.Equal(t, block.SlabBlockID, cell.Block.ID)
	assert.Equal(t, implementations.SlabTop, cell.Block.Payload["half"])
	assert.Equal(t, 0, c.Len(), "контейнер отдал последнюю часть")

	// Single → Empty: разрушение блока
	cells.SetCell(cellPos, EmptyCell())
	assert.Equal(t, CellEmpty, cells.Cell(cellPos).Kind)
	assert.Empty(t, cells)

	assert.Equal(t, []string{"add", "add", "remove", "remove"}, rec.ops())
	assert.Equal(t, idA, rec.events[0].id)
	assert.Equal(t, idB, rec.events[1].id)
}

func TestConvertRejectsUnwrappableBlock(t *testing.T) {
	cells := mapCells{}
	svc := NewConversionService(cells)
	stone := block.NewBlock(block.StoneBlockID)
	cells.SetCell(cellPos, SingleCell(stone))

	_, _, err := svc.ConvertAndAdd(cellPos, newTestPart(SlotPanelNorth))
	assert.ErrorIs(t, err, ErrNotWrappable)
	assert.Equal(t, SingleCell(stone), cells.Cell(cellPos))
}

func TestConvertRejectsOcclusionAtomically(t *testing.T) {
	cells := mapCells{}
	rec := &recorder{}
	svc := NewConversionService(cells, rec)
	bottom := slabBlock(implementations.SlabBottom)
	cells.SetCell(cellPos, SingleCell(bottom))

	_, _, err := svc.ConvertAndAdd(cellPos, newTestPart(SlotCenter, NominalBox(SlotCenter)))
	assert.ErrorIs(t, err, ErrOccluded)
	assert.Equal(t, SingleCell(bottom), cells.Cell(cellPos))
	assert.Empty(t, rec.events, "неудачная конверсия не видна слушателям")

	_, _, err = svc.ConvertAndAdd(cellPos, newTestPart(SlotWhole))
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestConvertRejectedByHost(t *testing.T) {
	cells := mapCells{}
	svc := NewConversionService(cells)

	locked := block.NewBlock(testHostBlockID)
	cells.SetCell(cellPos, SingleCell(locked))
	_, _, err := svc.ConvertAndAdd(cellPos, newTestPart(SlotPanelUp, NominalBox(SlotPanelUp)))
	assert.ErrorIs(t, err, ErrHostRejected)

	cells.SetCell(cellPos, SingleCell(slabBlock(implementations.SlabBottom)))
	exclusive, err := NewPart("test-exclusive")
	require.NoError(t, err)
	_, _, err = svc.ConvertAndAdd(cellPos, exclusive)
	assert.ErrorIs(t, err, ErrHostRejected)
	assert.Equal(t, CellSingle, cells.Cell(cellPos).Kind)
}

func TestContainerAtDetectsMissingContainer(t *testing.T) {
	cells := mapCells{cellPos: {Kind: CellMulti}}
	svc := NewConversionService(cells)

	_, err := svc.ContainerAt(cellPos)
	assert.ErrorIs(t, err, ErrInvariant)

	c, err := svc.ContainerAt(vec.Vec3{})
	assert.NoError(t, err)
	assert.Nil(t, c)
}

// Пустая клетка: панель на севере, затем центр. Удаление панели оставляет центр;
// центр, умеющий стать блоком, возвращает клетку к одиночному виду.
func TestPanelAndCenterScenario(t *testing.T) {
	cells := mapCells{}
	svc := NewConversionService(cells)

	p1 := newTestPart(SlotPanelNorth, NominalBox(SlotPanelNorth))
	c, id1, err := svc.CreateWith(cellPos, p1)
	require.NoError(t, err)
	assert.Equal(t, CellMulti, cells.Cell(cellPos).Kind)

	p2 := newTestPart(SlotCenter, NominalBox(SlotCenter))
	lantern := block.NewBlock(block.LanternBlockID)
	p2.revert = &lantern
	require.True(t, c.CanAddPart(p2))
	id2, err := svc.AddTo(c, p2)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, c.Len())

	// P3 задевает P1
	p3 := newTestPart(SlotPanelDown, vec.NewBox(0, 0, 0, 1, 0.2, 0.5))
	_, err = svc.AddTo(c, p3)
	assert.ErrorIs(t, err, ErrOccluded)
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.RemovePart(p1))
	cell := cells.Cell(cellPos)
	assert.Equal(t, CellSingle, cell.Kind)
	assert.Equal(t, block.LanternBlockID, cell.Block.ID)
}

func TestSinglePartWithoutReversionStaysMulti(t *testing.T) {
	cells := mapCells{}
	svc := NewConversionService(cells)

	c, _, err := svc.CreateWith(cellPos, newTestPart(SlotPanelNorth, NominalBox(SlotPanelNorth)))
	require.NoError(t, err)
	p2 := newTestPart(SlotPanelSouth, NominalBox(SlotPanelSouth))
	_, err = svc.AddTo(c, p2)
	require.NoError(t, err)

	north, _ := c.PartInSlot(SlotPanelNorth)
	require.NoError(t, c.RemovePart(north))
	assert.Equal(t, CellMulti, cells.Cell(cellPos).Kind, "оставшаяся часть не умеет стать блоком")

	require.NoError(t, c.RemovePart(p2))
	assert.Equal(t, CellEmpty, cells.Cell(cellPos).Kind)
}

func TestReversionRespectsContainerFlag(t *testing.T) {
	c := NewContainer(cellPos, nil, false)
	_, _ = c.AddPart(topSlabPart())
	_, ok := CanRevert(c)
	assert.False(t, ok)

	c = NewContainer(cellPos, nil, true)
	_, _ = c.AddPart(topSlabPart())
	b, ok := CanRevert(c)
	assert.True(t, ok)
	assert.Equal(t, block.SlabBlockID, b.ID)

	_, _ = c.AddPart(newTestPart(SlotPanelDown))
	_, ok = CanRevert(c)
	assert.False(t, ok, "две части")
}

func TestCreateWithRequiresEmptyCell(t *testing.T) {
	cells := mapCells{}
	svc := NewConversionService(cells)
	cells.SetCell(cellPos, SingleCell(block.NewBlock(block.StoneBlockID)))

	_, _, err := svc.CreateWith(cellPos, newTestPart(SlotCenter))
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestRestoreBindsContainerToCell(t *testing.T) {
	cells := mapCells{}
	rec := &recorder{}
	svc := NewConversionService(cells, rec)

	src := NewContainer(cellPos, nil, true)
	_, _ = src.AddPart(newTestPart(SlotPanelWest, NominalBox(SlotPanelWest)))
	_, _ = src.AddPart(wrapBlock(block.NewBlock(block.LanternBlockID)))

	c, err := svc.Restore(cellPos, src.WriteRecord())
	require.NoError(t, err)
	assert.Equal(t, src.Describe(), c.Describe())
	assert.Same(t, c, cells.Cell(cellPos).Container)
	assert.Empty(t, rec.events, "восстановление не порождает событий")

	_, err = svc.Restore(cellPos, ContainerRecord{CanTurnIntoBlock: true})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestTransplantKeepsIdentities(t *testing.T) {
	cells := mapCells{}
	rec := &recorder{}
	svc := NewConversionService(cells, rec)

	old, downID, err := svc.CreateWith(cellPos, newTestPart(SlotPanelDown, NominalBox(SlotPanelDown)))
	require.NoError(t, err)
	slab := topSlabPart()
	slabID, err := svc.AddTo(old, slab)
	require.NoError(t, err)
	before := old.Describe()
	rec.events = nil

	c, err := svc.Transplant(cellPos, false, func(p Part) bool { return p.Kind() == testKind })
	require.NoError(t, err)
	require.NotSame(t, old, c)
	assert.Same(t, c, cells.Cell(cellPos).Container)
	assert.False(t, c.CanTurnIntoBlock())
	assert.Equal(t, before, c.Describe())
	assert.Zero(t, old.Len(), "старый контейнер больше не владеет частями")

	got, ok := c.PartFromID(slabID)
	require.True(t, ok)
	assert.Same(t, slab, got)
	id, ok := c.PartID(got)
	require.True(t, ok)
	assert.Equal(t, slabID, id)

	// слушатели видят те же идентификаторы
	assert.Equal(t, []string{"add", "add"}, rec.ops())
	assert.Equal(t, []PartID{downID, slabID}, []PartID{rec.events[0].id, rec.events[1].id})

	// новый контейнер не возвращается к блоку
	down, _ := c.PartFromID(downID)
	require.NoError(t, c.RemovePart(down))
	assert.Equal(t, CellMulti, cells.Cell(cellPos).Kind)
	assert.Equal(t, []string{"add", "add", "remove"}, rec.ops())
}

func TestTransplantRejectedLeavesCell(t *testing.T) {
	cells := mapCells{}
	rec := &recorder{}
	svc := NewConversionService(cells, rec)

	_, err := svc.Transplant(cellPos, true, nil)
	assert.ErrorIs(t, err, ErrPartNotFound)

	cells.SetCell(cellPos, SingleCell(slabBlock(implementations.SlabBottom)))
	old, _, err := svc.ConvertAndAdd(cellPos, topSlabPart())
	require.NoError(t, err)
	before := old.Describe()
	events := len(rec.events)

	// обёрнутый блок не проходит фильтр
	_, err = svc.Transplant(cellPos, false, func(p Part) bool { return p.Kind() != BlockKind })
	assert.ErrorIs(t, err, ErrHostRejected)
	assert.Same(t, old, cells.Cell(cellPos).Container)
	assert.True(t, old.CanTurnIntoBlock())
	assert.Equal(t, before, old.Describe())
	assert.Len(t, rec.events, events, "отказ не порождает событий")
}
