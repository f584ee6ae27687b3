package timer

import (
	"math"
	"time"

	"github.com/mcdev12/studyroom/go/internal/models"
)

// Result is the outcome of a transition. Changed is false for no-ops; Finished asks
// the caller to emit the one-shot finished notification.
type Result struct {
	State    models.RoomTimerState
	Changed  bool
	Finished bool
}

// StartParams are the optional arguments of a start request.
type StartParams struct {
	Mode        models.TimerMode
	DurationSec int
}

// RemainingAt resolves the time left in s at now. While running it is derived from EndAt.
func RemainingAt(s models.RoomTimerState, now time.Time) int {
	if !s.IsRunning || s.EndAt == nil {
		return s.RemainingSec
	}
	ms := s.EndAt.Sub(now).Milliseconds()
	remaining := int(math.Round(float64(ms) / 1000))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether a running timer has reached its end time.
func Expired(s models.RoomTimerState, now time.Time) bool {
	return s.IsRunning && s.EndAt != nil && !now.Before(*s.EndAt)
}

// Snapshot renders s for the wire with remaining time resolved at now.
func Snapshot(s models.RoomTimerState, now time.Time) models.TimerSnapshot {
	snap := models.TimerSnapshot{
		RoomID:       s.RoomID,
		IsRunning:    s.IsRunning,
		Mode:         s.Mode,
		DurationSec:  s.DurationSec,
		RemainingSec: RemainingAt(s, now),
		StartedBy:    s.StartedBy,
		StartedAt:    s.StartedAt,
	}
	if s.IsRunning && s.EndAt != nil {
		ms := s.EndAt.UnixMilli()
		snap.EndAt = &ms
	}
	return snap
}

// Start runs the timer. It is a no-op while running. A depleted timer restarts from the full
// duration; a timer that was never started picks up a newly requested duration.
func Start(s models.RoomTimerState, p StartParams, userID string, now time.Time) Result {
	if s.IsRunning {
		return Result{State: s}
	}

	fresh := s.StartedAt == nil
	if p.Mode.Valid() {
		s.Mode = p.Mode
	}
	if p.DurationSec > 0 && p.DurationSec != s.DurationSec {
		s.DurationSec = p.DurationSec
		if fresh {
			s.RemainingSec = s.DurationSec
		}
	}
	if s.RemainingSec <= 0 {
		s.RemainingSec = s.DurationSec
	}
	if s.RemainingSec > s.DurationSec {
		s.RemainingSec = s.DurationSec
	}

	endAt := now.Add(time.Duration(s.RemainingSec) * time.Second)
	startedAt := now
	startedBy := userID

	s.IsRunning = true
	s.EndAt = &endAt
	s.StartedAt = &startedAt
	s.StartedBy = &startedBy
	return Result{State: s, Changed: true}
}

// Pause freezes the remaining time. It is a no-op when not running. A pause that arrives
// with nothing left finishes it instead, so the run still gets its notification.
func Pause(s models.RoomTimerState, now time.Time) Result {
	if !s.IsRunning {
		return Result{State: s}
	}
	s.RemainingSec = RemainingAt(s, now)
	if s.RemainingSec == 0 {
		return Finish(s)
	}
	if s.RemainingSec > s.DurationSec {
		s.RemainingSec = s.DurationSec
	}
	s.IsRunning = false
	s.EndAt = nil
	return Result{State: s, Changed: true}
}

// Reset returns the timer to a full idle phase regardless of its current state.
func Reset(s models.RoomTimerState) Result {
	s.IsRunning = false
	s.RemainingSec = s.DurationSec
	s.EndAt = nil
	s.StartedBy = nil
	s.StartedAt = nil
	return Result{State: s, Changed: true}
}

// Finish stops the timer at zero. Finishing an already finished timer changes nothing
// and does not ask for another notification.
func Finish(s models.RoomTimerState) Result {
	if !s.IsRunning && s.RemainingSec == 0 {
		return Result{State: s}
	}
	s.IsRunning = false
	s.RemainingSec = 0
	s.EndAt = nil
	return Result{State: s, Changed: true, Finished: true}
}
