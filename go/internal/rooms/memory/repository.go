// Package memory provides an in-memory room repository.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
)

// Repository keeps room records in a map guarded by a RWMutex.
type Repository struct {
	rooms map[string]*models.Room
	mu    sync.RWMutex
	now   func() time.Time
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		rooms: make(map[string]*models.Room),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetRoom returns a copy of the stored room.
func (r *Repository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, rooms.ErrNotFound
	}
	return room.Clone(), nil
}

// CreateRoom stores a new room, replacing any record with the same id.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		return fmt.Errorf("room id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[room.ID] = room.Clone()
	return nil
}

// UpdateSettings applies fn to the stored settings.
func (r *Repository) UpdateSettings(ctx context.Context, roomID string, fn rooms.SettingsMutation) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, rooms.ErrNotFound
	}
	room.Settings = fn(room.Settings)
	room.Slug = rooms.Slugify(room.Settings.Title)
	room.UpdatedAt = r.now()
	return room.Clone(), nil
}

// UpdateAnnouncement applies fn to the stored announcement. The record is untouched when fn fails.
func (r *Repository) UpdateAnnouncement(ctx context.Context, roomID string, fn rooms.AnnouncementMutation) (*models.Announcement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, rooms.ErrNotFound
	}
	next, err := fn(room.Announcement.Clone())
	if err != nil {
		return nil, err
	}
	room.Announcement = next.Clone()
	room.UpdatedAt = r.now()

	out := next.Clone()
	return &out, nil
}

// Close is a no-op for the memory backend.
func (r *Repository) Close() error {
	return nil
}
