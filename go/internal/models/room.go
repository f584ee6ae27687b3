package models

import (
	"strings"
	"time"
)

// RoomStatus defines the lifecycle status of a study room.
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusEnded  RoomStatus = "ended"
)

// Settings bounds enforced when a host edits a room.
const (
	MinFocusMinutes      = 5
	MaxFocusMinutes      = 180
	MinSessionsCount     = 1
	MaxSessionsCount     = 24
	MinShortBreakMinutes = 1
	MaxShortBreakMinutes = 60
	MinLongBreakMinutes  = 1
	MaxLongBreakMinutes  = 120

	MaxTitleLength      = 80
	MaxThemeKeyLength   = 40
	MaxThemeLabelLength = 60
)

// RoomSettings holds the host-editable configuration of a room.
type RoomSettings struct {
	Title             string `json:"title" yaml:"title"`
	ThemeKey          string `json:"themeKey" yaml:"themeKey"`
	ThemeLabel        string `json:"themeLabel" yaml:"themeLabel"`
	FocusMinutes      int    `json:"focusMinutes" yaml:"focusMinutes"`
	ShortBreakMinutes int    `json:"shortBreakMinutes" yaml:"shortBreakMinutes"`
	LongBreakMinutes  int    `json:"longBreakMinutes" yaml:"longBreakMinutes"`
	SessionsCount     int    `json:"sessionsCount" yaml:"sessionsCount"`
	IsLocked          bool   `json:"isLocked" yaml:"isLocked"`
}

// DefaultRoomSettings returns the settings a freshly created room starts with.
func DefaultRoomSettings(title string) RoomSettings {
	return RoomSettings{
		Title:             title,
		ThemeKey:          "night-library",
		ThemeLabel:        "Gece Kütüphanesi",
		FocusMinutes:      25,
		ShortBreakMinutes: 5,
		LongBreakMinutes:  15,
		SessionsCount:     4,
	}
}

// Room is the durable record of a study room.
type Room struct {
	ID           string       `json:"id" yaml:"id"`
	HostUserID   string       `json:"hostUserId" yaml:"hostUserId"`
	Slug         string       `json:"slug" yaml:"slug"`
	Status       RoomStatus   `json:"status" yaml:"status"`
	AccessCode   *string      `json:"accessCode,omitempty" yaml:"accessCode,omitempty"`
	Settings     RoomSettings `json:"settings" yaml:"settings"`
	Announcement Announcement `json:"announcement" yaml:"announcement"`
	CreatedAt    time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt" yaml:"updatedAt"`
}

// IsHost reports whether userID is the room's host.
func (r *Room) IsHost(userID string) bool {
	return userID != "" && r.HostUserID == userID
}

// SettingsUpdate carries a partial settings change requested by a host.
// Zero values, blank strings and an absent isLocked keep the stored value.
type SettingsUpdate struct {
	Title             string `json:"title,omitempty" validate:"max=80"`
	ThemeKey          string `json:"themeKey,omitempty" validate:"max=40"`
	ThemeLabel        string `json:"themeLabel,omitempty" validate:"max=60"`
	FocusMinutes      int    `json:"focusMinutes,omitempty"`
	ShortBreakMinutes int    `json:"shortBreakMinutes,omitempty"`
	LongBreakMinutes  int    `json:"longBreakMinutes,omitempty"`
	SessionsCount     int    `json:"sessionsCount,omitempty"`
	IsLocked          *bool  `json:"isLocked,omitempty"`
}

// Apply returns current with the update merged in and numeric fields clamped to their bounds.
func (u SettingsUpdate) Apply(current RoomSettings) RoomSettings {
	next := current
	next.Title = keepOr(u.Title, current.Title)
	next.ThemeKey = keepOr(u.ThemeKey, current.ThemeKey)
	next.ThemeLabel = keepOr(u.ThemeLabel, current.ThemeLabel)
	next.FocusMinutes = clamp(nonZeroOr(u.FocusMinutes, current.FocusMinutes), MinFocusMinutes, MaxFocusMinutes)
	next.SessionsCount = clamp(nonZeroOr(u.SessionsCount, current.SessionsCount), MinSessionsCount, MaxSessionsCount)
	next.ShortBreakMinutes = clamp(nonZeroOr(u.ShortBreakMinutes, current.ShortBreakMinutes), MinShortBreakMinutes, MaxShortBreakMinutes)
	next.LongBreakMinutes = clamp(nonZeroOr(u.LongBreakMinutes, current.LongBreakMinutes), MinLongBreakMinutes, MaxLongBreakMinutes)
	if u.IsLocked != nil {
		next.IsLocked = *u.IsLocked
	}
	return next
}

func keepOr(v, fallback string) string {
	if t := strings.TrimSpace(v); t != "" {
		return t
	}
	return strings.TrimSpace(fallback)
}

func nonZeroOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clone returns a deep copy of the room record.
func (r *Room) Clone() *Room {
	out := *r
	if r.AccessCode != nil {
		code := *r.AccessCode
		out.AccessCode = &code
	}
	out.Announcement = r.Announcement.Clone()
	return &out
}
