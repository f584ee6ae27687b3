package models

import "time"

// TimerMode labels the current pomodoro phase. It does not constrain duration.
type TimerMode string

const (
	TimerModeWork   TimerMode = "work"
	TimerModeShort  TimerMode = "short"
	TimerModeLong   TimerMode = "long"
	TimerModeCustom TimerMode = "custom"
)

// Valid reports whether m is a known mode.
func (m TimerMode) Valid() bool {
	switch m {
	case TimerModeWork, TimerModeShort, TimerModeLong, TimerModeCustom:
		return true
	}
	return false
}

// DefaultTimerDurationSec is the 25 minute work phase a room timer starts with.
const DefaultTimerDurationSec = 1500

// RoomTimerState is the authoritative in-memory timer of a room.
// IsRunning is true exactly when EndAt is set; while running RemainingSec is stale.
type RoomTimerState struct {
	RoomID       string     `json:"roomId"`
	IsRunning    bool       `json:"isRunning"`
	Mode         TimerMode  `json:"mode"`
	DurationSec  int        `json:"durationSec"`
	RemainingSec int        `json:"remainingSec"`
	EndAt        *time.Time `json:"-"`
	StartedBy    *string    `json:"startedBy"`
	StartedAt    *time.Time `json:"startedAt"`
}

// NewRoomTimerState returns the default idle state for a room.
func NewRoomTimerState(roomID string) RoomTimerState {
	return RoomTimerState{
		RoomID:       roomID,
		Mode:         TimerModeWork,
		DurationSec:  DefaultTimerDurationSec,
		RemainingSec: DefaultTimerDurationSec,
	}
}

// TimerSnapshot is the wire form of a timer with remaining time resolved for a given instant.
type TimerSnapshot struct {
	RoomID       string     `json:"roomId"`
	IsRunning    bool       `json:"isRunning"`
	Mode         TimerMode  `json:"mode"`
	DurationSec  int        `json:"durationSec"`
	RemainingSec int        `json:"remainingSec"`
	EndAt        *int64     `json:"endAt"` // unix milliseconds
	StartedBy    *string    `json:"startedBy"`
	StartedAt    *time.Time `json:"startedAt"`
}

// EndAtTime converts the wire end time back into a time.Time.
func (s TimerSnapshot) EndAtTime() (time.Time, bool) {
	if s.EndAt == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*s.EndAt), true
}
