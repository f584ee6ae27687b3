package syncagent

import (
	"fmt"
	"math"
	"time"

	"github.com/mcdev12/studyroom/go/internal/models"
)

// Display is what a client shows for its room's timer.
type Display struct {
	RoomID       string
	Mode         models.TimerMode
	DurationSec  int
	RemainingSec int
	IsRunning    bool
}

// Clock renders the remaining time as mm:ss.
func (d Display) Clock() string {
	s := max(d.RemainingSec, 0)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// Reconciler derives local display state from server snapshots. It never decides timer
// truth itself: while running, remaining time is recomputed from the absolute end time
// so local clock drift cannot accumulate.
type Reconciler struct {
	roomID   string
	snap     *models.TimerSnapshot
	notified bool
}

func NewReconciler(roomID string) *Reconciler {
	return &Reconciler{roomID: roomID}
}

// Apply takes a snapshot. Snapshots for other rooms and exact duplicates return false.
func (r *Reconciler) Apply(snap models.TimerSnapshot) bool {
	if snap.RoomID != r.roomID {
		return false
	}
	if r.snap != nil && sameSnapshot(*r.snap, snap) {
		return false
	}
	if snap.IsRunning {
		// A new run re-arms the finish notification.
		r.notified = false
	}
	r.snap = &snap
	return true
}

// Running reports whether the local redraw tick should run.
func (r *Reconciler) Running() bool {
	return r.snap != nil && r.snap.IsRunning
}

// Display computes what to show at now.
func (r *Reconciler) Display(now time.Time) Display {
	if r.snap == nil {
		return Display{RoomID: r.roomID}
	}
	d := Display{
		RoomID:       r.roomID,
		Mode:         r.snap.Mode,
		DurationSec:  r.snap.DurationSec,
		RemainingSec: r.snap.RemainingSec,
		IsRunning:    r.snap.IsRunning,
	}
	if endAt, ok := r.snap.EndAtTime(); ok && r.snap.IsRunning {
		d.RemainingSec = int(math.Max(0, math.Round(endAt.Sub(now).Seconds())))
	}
	return d
}

// Finished reports whether a finished event for roomID should notify. It is true at
// most once per run no matter how many finished events or snapshots follow.
func (r *Reconciler) Finished(roomID string) bool {
	if roomID != r.roomID || r.notified {
		return false
	}
	r.notified = true
	return true
}

func sameSnapshot(a, b models.TimerSnapshot) bool {
	return a.IsRunning == b.IsRunning &&
		a.Mode == b.Mode &&
		a.DurationSec == b.DurationSec &&
		a.RemainingSec == b.RemainingSec &&
		sameEndAt(a.EndAt, b.EndAt)
}

func sameEndAt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
