package multipart

import "github.com/google/uuid"

// PartID: стабильный 128-битный идентификатор части внутри контейнера
type PartID = uuid.UUID

// NewPartID выдаёт новый случайный идентификатор
func NewPartID() PartID {
	return uuid.New()
}

// handle: индекс записи в арене контейнера
type handle int32

const noHandle handle = -1

type partRecord struct {
	id   PartID
	part Part
	slot PartSlot
	live bool
}

// identityTable: арена записей частей. Слот и идентификатор ссылаются
// на один и тот же handle, поэтому владение частью хранится в одном месте.
type identityTable struct {
	records []partRecord
	free    []handle
	bySlot  [slotCount]handle
	byID    map[PartID]handle
	retired map[PartID]struct{}
	count   int
}

func newIdentityTable() *identityTable {
	t := &identityTable{
		byID:    make(map[PartID]handle),
		retired: make(map[PartID]struct{}),
	}
	for i := range t.bySlot {
		t.bySlot[i] = noHandle
	}
	return t
}

// known сообщает, использовался ли идентификатор в этом контейнере
func (t *identityTable) known(id PartID) bool {
	if _, ok := t.byID[id]; ok {
		return true
	}
	_, ok := t.retired[id]
	return ok
}

func (t *identityTable) insert(id PartID, p Part) handle {
	rec := partRecord{id: id, part: p, slot: p.Slot(), live: true}

	var h handle
	if n := len(t.free); n > 0 {
		h = t.free[n-1]
		t.free = t.free[:n-1]
		t.records[h] = rec
	} else {
		h = handle(len(t.records))
		t.records = append(t.records, rec)
	}

	t.bySlot[rec.slot] = h
	t.byID[id] = h
	t.count++
	return h
}

// remove освобождает запись и навсегда выводит её идентификатор из оборота
func (t *identityTable) remove(h handle) partRecord {
	rec := t.records[h]
	t.records[h] = partRecord{}
	t.free = append(t.free, h)

	t.bySlot[rec.slot] = noHandle
	delete(t.byID, rec.id)
	t.retired[rec.id] = struct{}{}
	t.count--
	return rec
}

// handleOf находит запись части по ссылке
func (t *identityTable) handleOf(p Part) (handle, bool) {
	if p == nil {
		return noHandle, false
	}
	if s := p.Slot(); s.Valid() {
		if h := t.bySlot[s]; h != noHandle && t.records[h].part == p {
			return h, true
		}
	}
	// слот части мог измениться после добавления
	for i := range t.records {
		if t.records[i].live && t.records[i].part == p {
			return handle(i), true
		}
	}
	return noHandle, false
}

func (t *identityTable) lookupID(id PartID) (handle, bool) {
	h, ok := t.byID[id]
	return h, ok
}

func (t *identityTable) inSlot(s PartSlot) (handle, bool) {
	if !s.Valid() {
		return noHandle, false
	}
	h := t.bySlot[s]
	return h, h != noHandle
}

// each обходит живые записи в порядке приоритета слотов
func (t *identityTable) each(fn func(rec *partRecord) bool) {
	for _, h := range t.bySlot {
		if h == noHandle {
			continue
		}
		if !fn(&t.records[h]) {
			return
		}
	}
}
