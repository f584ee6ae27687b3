package events

import (
	"github.com/mcdev12/studyroom/go/internal/models"
)

// Inbound payloads. Every one carries the room it targets.

// JoinPayload announces a connection's room and identity.
type JoinPayload struct {
	RoomID string          `json:"roomId" validate:"required,max=128"`
	User   JoinUserPayload `json:"user"`
}

// JoinUserPayload is the identity a client claims on join.
type JoinUserPayload struct {
	ID        string `json:"id" validate:"max=128"`
	Name      string `json:"name" validate:"max=80"`
	AvatarURL string `json:"avatarUrl" validate:"max=512"`
	IsHost    bool   `json:"isHost"`
}

// RoomPayload carries only a room id.
type RoomPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

// TimerControlPayload is shared by start, pause, reset and finish.
type TimerControlPayload struct {
	RoomID      string           `json:"roomId" validate:"required,max=128"`
	Mode        models.TimerMode `json:"mode,omitempty" validate:"omitempty,oneof=work short long custom"`
	DurationSec int              `json:"durationSec,omitempty" validate:"omitempty,min=1,max=86400"`
}

// SettingsUpdatePayload changes host-editable room settings.
type SettingsUpdatePayload struct {
	RoomID   string                 `json:"roomId" validate:"required,max=128"`
	Settings *models.SettingsUpdate `json:"settings" validate:"required"`
}

// AnnouncementTextPayload posts or replaces an announcement.
type AnnouncementTextPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Text   string `json:"text"`
}

// ReactionPayload toggles the caller's reaction.
type ReactionPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Emoji  string `json:"emoji" validate:"max=32"`
}

// Outbound payloads.

// ErrorPayload is sent to the requesting connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// FinishedPayload triggers the client-side notification.
type FinishedPayload struct {
	RoomID string `json:"roomId"`
}

// SettingsPayload announces new room settings.
type SettingsPayload struct {
	RoomID string              `json:"roomId"`
	Room   models.RoomSettings `json:"room"`
}

// AnnouncementPayload carries the full announcement.
type AnnouncementPayload struct {
	RoomID       string              `json:"roomId"`
	Announcement models.Announcement `json:"announcement"`
}

// AnnouncementDeletedPayload signals a cleared announcement.
type AnnouncementDeletedPayload struct {
	RoomID string `json:"roomId"`
}

// ReactionsPayload carries the updated reaction list only.
type ReactionsPayload struct {
	RoomID    string            `json:"roomId"`
	Reactions []models.Reaction `json:"reactions"`
}
