package timer

import (
	"sort"
	"sync"

	"github.com/mcdev12/studyroom/go/internal/models"
)

// Store is the room registry: one timer state per room, created lazily.
type Store interface {
	GetOrInit(roomID string) models.RoomTimerState
	Get(roomID string) (models.RoomTimerState, bool)
	Put(state models.RoomTimerState)
	Delete(roomID string)
	RoomIDs() []string
}

// MemoryStore keeps timer states in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]models.RoomTimerState
}

// NewMemoryStore creates an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]models.RoomTimerState)}
}

// GetOrInit returns the room's state, creating the default 25 minute work phase if absent.
func (s *MemoryStore) GetOrInit(roomID string) models.RoomTimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[roomID]
	if !ok {
		state = models.NewRoomTimerState(roomID)
		s.states[roomID] = state
	}
	return state
}

// Get returns the room's state without creating it.
func (s *MemoryStore) Get(roomID string) (models.RoomTimerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[roomID]
	return state, ok
}

// Put replaces the room's state.
func (s *MemoryStore) Put(state models.RoomTimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.RoomID] = state
}

// Delete drops the room's state.
func (s *MemoryStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, roomID)
}

// RoomIDs lists rooms that currently hold a timer, sorted.
func (s *MemoryStore) RoomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
