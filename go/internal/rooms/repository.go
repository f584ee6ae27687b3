package rooms

import (
	"context"
	"errors"

	"github.com/mcdev12/studyroom/go/internal/models"
)

// ErrNotFound is returned when a room has no durable record.
var ErrNotFound = errors.New("room not found")

// AnnouncementMutation transforms the stored announcement. Returning an error aborts the write.
type AnnouncementMutation func(current models.Announcement) (models.Announcement, error)

// SettingsMutation transforms the stored settings.
type SettingsMutation func(current models.RoomSettings) models.RoomSettings

// Repository is the durable store of room records.
// Mutations are read-modify-write and atomic per room in every backend.
type Repository interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) error
	UpdateSettings(ctx context.Context, roomID string, fn SettingsMutation) (*models.Room, error)
	UpdateAnnouncement(ctx context.Context, roomID string, fn AnnouncementMutation) (*models.Announcement, error)
	Close() error
}
