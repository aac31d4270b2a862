package multipart

import "errors"

var (
	// ErrOccluded: геометрия части пересекается с уже установленными частями
	ErrOccluded = errors.New("часть пересекается с установленными частями")
	// ErrSlotOccupied: слот уже занят другой частью
	ErrSlotOccupied = errors.New("слот уже занят")
	// ErrNotWrappable: блок клетки нельзя обернуть в часть
	ErrNotWrappable = errors.New("блок нельзя обернуть в часть")
	// ErrHostRejected: блок или тип части запрещают совместное размещение
	ErrHostRejected = errors.New("клетка не может стать многосоставной")
	// ErrPartNotFound: часть или идентификатор отсутствуют в контейнере
	ErrPartNotFound = errors.New("часть не найдена")
	// ErrUnknownKind: тип части не зарегистрирован
	ErrUnknownKind = errors.New("неизвестный тип части")
	// ErrNotPlaceable: тип части нельзя установить игроку
	ErrNotPlaceable = errors.New("тип части нельзя установить")
	// ErrInvariant: нарушение контракта между миром и контейнером
	ErrInvariant = errors.New("нарушен инвариант многосоставной клетки")
)
