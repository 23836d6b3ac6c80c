package rooms

import (
	"sort"

	"github.com/cwrk-planet/roomcast/internal/domain"
)

// room: множество участников; значение хранит порядковый номер входа,
// чтобы снапшоты отдавались в порядке присоединения.
type room map[string]uint64

// Table: roomName -> множество connection id.
// Пустых комнат в таблице не бывает: последняя leave удаляет комнату.
// Синхронизацию обеспечивает координатор.
type Table struct {
	rooms map[string]room
	seq   uint64
}

func NewTable() *Table {
	return &Table{rooms: make(map[string]room)}
}

// Join добавляет участника, создавая комнату при необходимости.
// Повторный join ничего не меняет, но снапшот всё равно возвращается.
func (t *Table) Join(name, id string) []string {
	rs, ok := t.rooms[name]
	if !ok {
		rs = make(room)
		t.rooms[name] = rs
	}
	if _, in := rs[id]; !in {
		t.seq++
		rs[id] = t.seq
	}
	return rs.snapshot()
}

// Leave убирает участника; если комната опустела, удаляет её в этом же вызове.
func (t *Table) Leave(name, id string) []string {
	rs, ok := t.rooms[name]
	if !ok {
		return []string{}
	}
	delete(rs, id)
	if len(rs) == 0 {
		delete(t.rooms, name)
		return []string{}
	}
	return rs.snapshot()
}

func (t *Table) MembersOf(name string) []string {
	rs, ok := t.rooms[name]
	if !ok {
		return []string{}
	}
	return rs.snapshot()
}

func (t *Table) Contains(name, id string) bool {
	_, ok := t.rooms[name][id]
	return ok
}

func (t *Table) Len() int { return len(t.rooms) }

// Rooms возвращает сводку по всем комнатам, отсортированную по имени.
func (t *Table) Rooms() []domain.RoomSummary {
	out := make([]domain.RoomSummary, 0, len(t.rooms))
	for name, rs := range t.rooms {
		members := rs.snapshot()
		out = append(out, domain.RoomSummary{Name: name, Count: len(members), Members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Each обходит пары (комната, участник).
func (t *Table) Each(fn func(name, id string)) {
	for name, rs := range t.rooms {
		for id := range rs {
			fn(name, id)
		}
	}
}

func (rs room) snapshot() []string {
	ids := make([]string, 0, len(rs))
	for id := range rs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return rs[ids[i]] < rs[ids[j]] })
	return ids
}
