package presence

import (
	"sort"

	"github.com/mcdev12/studyroom/go/internal/models"
)

// RoomPresence holds the live connections of one room in join order.
type RoomPresence struct {
	RoomID  string
	entries map[string]member
	seq     uint64
}

type member struct {
	entry models.PresenceEntry
	seq   uint64
}

func newRoomPresence(roomID string) *RoomPresence {
	return &RoomPresence{RoomID: roomID, entries: make(map[string]member)}
}

// Upsert adds or replaces the entry for its connection. A replaced entry keeps its position.
func (p *RoomPresence) Upsert(entry models.PresenceEntry) {
	if existing, ok := p.entries[entry.ConnectionID]; ok {
		p.entries[entry.ConnectionID] = member{entry: entry, seq: existing.seq}
		return
	}
	p.seq++
	p.entries[entry.ConnectionID] = member{entry: entry, seq: p.seq}
}

// Remove drops a connection and reports whether it was present.
func (p *RoomPresence) Remove(connectionID string) bool {
	if _, ok := p.entries[connectionID]; !ok {
		return false
	}
	delete(p.entries, connectionID)
	return true
}

// Entries returns the connections in join order.
func (p *RoomPresence) Entries() []models.PresenceEntry {
	members := make([]member, 0, len(p.entries))
	for _, m := range p.entries {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	out := make([]models.PresenceEntry, len(members))
	for i, m := range members {
		out[i] = m.entry
	}
	return out
}

// Len is the number of live connections.
func (p *RoomPresence) Len() int {
	return len(p.entries)
}

// Store maps room ids to their presence sets.
type Store interface {
	GetOrCreate(roomID string) *RoomPresence
	Get(roomID string) (*RoomPresence, bool)
	Delete(roomID string)
}

// MemoryStore is a map-backed Store. Callers serialize access.
type MemoryStore struct {
	rooms map[string]*RoomPresence
}

// NewMemoryStore creates an empty presence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*RoomPresence)}
}

func (s *MemoryStore) GetOrCreate(roomID string) *RoomPresence {
	p, ok := s.rooms[roomID]
	if !ok {
		p = newRoomPresence(roomID)
		s.rooms[roomID] = p
	}
	return p
}

func (s *MemoryStore) Get(roomID string) (*RoomPresence, bool) {
	p, ok := s.rooms[roomID]
	return p, ok
}

func (s *MemoryStore) Delete(roomID string) {
	delete(s.rooms, roomID)
}
