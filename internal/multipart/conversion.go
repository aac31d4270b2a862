package multipart

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/observability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world/block"
	"github.com/google/uuid"
)

// CellKind: представление клетки мира
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellSingle
	CellMulti
)

// String возвращает имя представления
func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellSingle:
		return "single"
	case CellMulti:
		return "multi"
	default:
		return fmt.Sprintf("cell(%d)", uint8(k))
	}
}

// Cell: ровно одно из: пустая клетка, обычный блок, многосоставная клетка
type Cell struct {
	Kind      CellKind
	Block     block.Block
	Container *Container
}

// EmptyCell возвращает пустую клетку
func EmptyCell() Cell {
	return Cell{Kind: CellEmpty, Block: block.NewBlock(block.AirBlockID)}
}

// SingleCell возвращает клетку с обычным блоком
func SingleCell(b block.Block) Cell {
	if b.IsAir() {
		return EmptyCell()
	}
	return Cell{Kind: CellSingle, Block: b}
}

// MultiCell возвращает многосоставную клетку
func MultiCell(c *Container) Cell {
	return Cell{Kind: CellMulti, Block: block.NewBlock(block.AirBlockID), Container: c}
}

// CellAccess: доступ к клеткам мира. Реализуется миром.
type CellAccess interface {
	Cell(pos vec.Vec3) Cell
	SetCell(pos vec.Vec3, cell Cell)
}

// ConversionService переводит клетки между пустым, одиночным
// и многосоставным представлениями
type ConversionService struct {
	cells     CellAccess
	listeners []Listener
	logger    *logging.Logger
}

// NewConversionService создаёт сервис. Слушатели подписываются на каждый созданный контейнер.
func NewConversionService(cells CellAccess, listeners ...Listener) *ConversionService {
	return &ConversionService{
		cells:     cells,
		listeners: listeners,
		logger:    logging.GetMultipartLogger(),
	}
}

// ContainerAt возвращает контейнер многосоставной клетки.
// Многосоставная клетка без контейнера: нарушение инварианта.
func (s *ConversionService) ContainerAt(pos vec.Vec3) (*Container, error) {
	cell := s.cells.Cell(pos)
	if cell.Kind != CellMulti {
		return nil, nil
	}
	if cell.Container == nil {
		err := fmt.Errorf("%w: клетка %s многосоставная, но контейнера нет", ErrInvariant, pos)
		s.logger.Error("%v", err)
		return nil, err
	}
	return cell.Container, nil
}

// ConvertAndAdd превращает клетку с обычным блоком в многосоставную и добавляет part.
// При любой ошибке клетка остаётся нетронутой.
func (s *ConversionService) ConvertAndAdd(pos vec.Vec3, part Part) (*Container, PartID, error) {
	cell := s.cells.Cell(pos)
	if cell.Kind != CellSingle {
		return nil, uuid.Nil, fmt.Errorf("%w: ожидался одиночный блок в %s, найдено %s", ErrInvariant, pos, cell.Kind)
	}
	if !cell.Block.CanWrapAsPart() {
		return nil, uuid.Nil, fmt.Errorf("%w: блок %d в %s", ErrNotWrappable, cell.Block.ID, pos)
	}
	if err := s.checkHost(cell.Block, part); err != nil {
		return nil, uuid.Nil, err
	}

	c := NewContainer(pos, s, true)
	wrapped := wrapBlock(cell.Block)
	if !c.AddPartWithID(NewPartID(), wrapped) {
		return nil, uuid.Nil, fmt.Errorf("%w: обёртка блока не добавилась в пустой контейнер %s", ErrInvariant, pos)
	}
	if err := addError(c, part); err != nil {
		return nil, uuid.Nil, err
	}

	// проверки пройдены: подписываем слушателей и объявляем обёрнутый блок
	s.attach(c)
	c.announce()

	id, ok := c.AddPart(part)
	if !ok {
		return nil, uuid.Nil, fmt.Errorf("%w: часть не добавилась после проверки в %s", ErrInvariant, pos)
	}
	s.cells.SetCell(pos, MultiCell(c))
	observability.ConversionsTotal.WithLabelValues(CellSingle.String(), CellMulti.String()).Inc()
	s.logger.Debug("🧩 Клетка %s стала многосоставной (%s + %s)", pos, BlockKind, part.Kind())
	return c, id, nil
}

// CreateWith делает пустую клетку многосоставной с единственной частью
func (s *ConversionService) CreateWith(pos vec.Vec3, part Part) (*Container, PartID, error) {
	cell := s.cells.Cell(pos)
	if cell.Kind != CellEmpty {
		return nil, uuid.Nil, fmt.Errorf("%w: ожидалась пустая клетка в %s, найдено %s", ErrInvariant, pos, cell.Kind)
	}

	c := NewContainer(pos, s, true)
	if err := addError(c, part); err != nil {
		return nil, uuid.Nil, err
	}
	s.attach(c)
	id, ok := c.AddPart(part)
	if !ok {
		return nil, uuid.Nil, fmt.Errorf("%w: часть не добавилась в пустой контейнер %s", ErrInvariant, pos)
	}
	s.cells.SetCell(pos, MultiCell(c))
	observability.ConversionsTotal.WithLabelValues(CellEmpty.String(), CellMulti.String()).Inc()
	return c, id, nil
}

// AddTo добавляет часть в существующую многосоставную клетку
func (s *ConversionService) AddTo(c *Container, part Part) (PartID, error) {
	for _, p := range c.Parts() {
		if isExclusive(p.Kind()) {
			return uuid.Nil, fmt.Errorf("%w: в %s стоит исключительная часть %s", ErrHostRejected, c.pos, p.Kind())
		}
	}
	if isExclusive(part.Kind()) {
		return uuid.Nil, fmt.Errorf("%w: часть %s не делит клетку", ErrHostRejected, part.Kind())
	}
	if err := addError(c, part); err != nil {
		return uuid.Nil, err
	}
	id, ok := c.AddPart(part)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: часть не добавилась после проверки в %s", ErrInvariant, c.pos)
	}
	return id, nil
}

// Restore восстанавливает многосоставную клетку из сохранённой записи
func (s *ConversionService) Restore(pos vec.Vec3, rec ContainerRecord) (*Container, error) {
	c := NewContainer(pos, s, rec.CanTurnIntoBlock)
	if err := c.ReadRecord(rec); err != nil {
		return nil, fmt.Errorf("ошибка восстановления клетки %s: %w", pos, err)
	}
	if c.Len() == 0 {
		return nil, fmt.Errorf("%w: сохранена пустая многосоставная клетка %s", ErrInvariant, pos)
	}
	s.attach(c)
	s.cells.SetCell(pos, MultiCell(c))
	return c, nil
}

// Destroy разрушает многосоставную клетку целиком
func (s *ConversionService) Destroy(pos vec.Vec3) error {
	c, err := s.ContainerAt(pos)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: в %s нет многосоставной клетки", ErrPartNotFound, pos)
	}
	c.dissolve()
	s.cells.SetCell(pos, EmptyCell())
	observability.ConversionsTotal.WithLabelValues(CellMulti.String(), CellEmpty.String()).Inc()
	return nil
}

// Transplant переносит части клетки в новый контейнер с другим правом
// возврата к блоку. Идентификаторы частей сохраняются. Перенос идёт, только если
// accept принимает каждую часть; иначе клетка остаётся нетронутой.
func (s *ConversionService) Transplant(pos vec.Vec3, canTurnIntoBlock bool, accept func(Part) bool) (*Container, error) {
	old, err := s.ContainerAt(pos)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("%w: в %s нет многосоставной клетки", ErrPartNotFound, pos)
	}

	var moved []partRecord
	old.table.each(func(rec *partRecord) bool {
		moved = append(moved, *rec)
		return true
	})
	for _, rec := range moved {
		if accept != nil && !accept(rec.part) {
			return nil, fmt.Errorf("%w: часть %s не переносится в новый контейнер %s", ErrHostRejected, rec.part.Kind(), pos)
		}
	}

	c := NewContainer(pos, s, canTurnIntoBlock)
	for _, rec := range moved {
		if !c.AddPartWithID(rec.id, rec.part) {
			old.rebind()
			return nil, fmt.Errorf("%w: часть %s не перенеслась в %s", ErrInvariant, rec.id, pos)
		}
	}
	old.table = newIdentityTable()

	s.attach(c)
	c.announce()
	s.cells.SetCell(pos, MultiCell(c))
	s.logger.Debug("🧩 Части клетки %s перенесены в новый контейнер (%d шт.)", pos, c.Len())
	return c, nil
}

// ContainerChanged приводит клетку к каноническому виду после удаления части
func (s *ConversionService) ContainerChanged(c *Container) {
	cell := s.cells.Cell(c.pos)
	if cell.Kind != CellMulti || cell.Container != c {
		s.logger.Warn("Контейнер %s уже не принадлежит клетке", c.pos)
		return
	}

	switch n := c.Len(); {
	case n == 0:
		s.cells.SetCell(c.pos, EmptyCell())
		observability.ConversionsTotal.WithLabelValues(CellMulti.String(), CellEmpty.String()).Inc()
		s.logger.Debug("Клетка %s опустела", c.pos)
	case n == 1:
		b, ok := CanRevert(c)
		if !ok {
			return
		}
		c.dissolve()
		s.cells.SetCell(c.pos, SingleCell(b))
		observability.ConversionsTotal.WithLabelValues(CellMulti.String(), CellSingle.String()).Inc()
		s.logger.Debug("Клетка %s вернулась к блоку %d", c.pos, b.ID)
	}
}

// CanRevert: условие возврата к обычному блоку: контейнер это допускает,
// в нём ровно одна часть, и она умеет стать блоком
func CanRevert(c *Container) (block.Block, bool) {
	if !c.canTurnIntoBlock || c.Len() != 1 {
		return block.Block{}, false
	}
	parts := c.Parts()
	r, ok := parts[0].(Revertible)
	if !ok {
		return block.Block{}, false
	}
	b, ok := r.RevertToBlock()
	if !ok || b.IsAir() {
		return block.Block{}, false
	}
	return b, true
}

func (s *ConversionService) attach(c *Container) {
	for _, l := range s.listeners {
		c.AddListener(l)
	}
}

func (s *ConversionService) checkHost(b block.Block, part Part) error {
	if isExclusive(part.Kind()) {
		return fmt.Errorf("%w: часть %s не делит клетку", ErrHostRejected, part.Kind())
	}
	if !b.AcceptsParts() {
		return fmt.Errorf("%w: блок %d не принимает части", ErrHostRejected, b.ID)
	}
	return nil
}

// announce сообщает слушателям о частях, добавленных до подписки
func (c *Container) announce() {
	c.table.each(func(rec *partRecord) bool {
		for _, l := range c.listeners {
			l.PartAdded(c, rec.id, rec.part)
		}
		return true
	})
}

// rebind возвращает частям ссылку на контейнер после неудавшегося переноса
func (c *Container) rebind() {
	c.table.each(func(rec *partRecord) bool {
		if ca, ok := rec.part.(ChangeAware); ok {
			ca.BindContainer(c)
		}
		return true
	})
}

// addError объясняет, почему часть нельзя добавить
func addError(c *Container, p Part) error {
	if p == nil || !p.Slot().Valid() {
		return fmt.Errorf("%w: часть без допустимого слота", ErrInvariant)
	}
	if other, occupied := c.PartInSlot(p.Slot()); occupied {
		return fmt.Errorf("%w: %s занят частью %s", ErrSlotOccupied, p.Slot(), other.Kind())
	}
	if c.OcclusionTest(p) {
		return fmt.Errorf("%w: %s в %s", ErrOccluded, p.Kind(), c.pos)
	}
	return nil
}

func isExclusive(kind PartKind) bool {
	opts, ok := KindOptionsOf(kind)
	return ok && opts.Exclusive
}
