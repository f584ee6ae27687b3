package models

// Defaults applied to anonymous or partially described participants.
const (
	DefaultDisplayName = "Misafir"
	DefaultAvatarURL   = "/img/avatars/default.png"
)

// Participant is the public view of a user inside a room roster.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	IsHost    bool   `json:"isHost"`
}

// PresenceEntry is one live connection in a room.
type PresenceEntry struct {
	ConnectionID string      `json:"connectionId"`
	RoomID       string      `json:"roomId"`
	User         Participant `json:"user"`
}

// Roster is the deduplicated view of a room's presence.
type Roster struct {
	RoomID string        `json:"roomId"`
	Count  int           `json:"count"`
	Users  []Participant `json:"users"`
}
