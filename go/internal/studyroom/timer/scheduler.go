package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// ExpiryFunc is invoked when a scheduled end time is reached.
// endAt identifies the run so stale expiries can be ignored.
type ExpiryFunc func(roomID string, endAt time.Time)

type scheduled struct {
	timer clockwork.Timer
	endAt time.Time
	done  chan struct{}
}

// Scheduler keeps one one-shot timer per running room and reports natural depletion.
type Scheduler struct {
	clock    Clock
	onExpiry ExpiryFunc

	mu     sync.Mutex
	active map[string]*scheduled
}

// NewScheduler creates a scheduler that calls onExpiry from its own goroutines.
func NewScheduler(clock Clock, onExpiry ExpiryFunc) *Scheduler {
	return &Scheduler{
		clock:    clock,
		onExpiry: onExpiry,
		active:   make(map[string]*scheduled),
	}
}

// Schedule arms the room's timer for endAt, replacing any existing one.
func (s *Scheduler) Schedule(roomID string, endAt time.Time) {
	d := endAt.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}

	entry := &scheduled{
		timer: s.clock.NewTimer(d),
		endAt: endAt,
		done:  make(chan struct{}),
	}
	s.replace(roomID, entry)

	go func(id string, e *scheduled) {
		select {
		case <-e.timer.Chan():
			if !s.removeIf(id, e) {
				return
			}
			log.Debug().Str("room_id", id).Time("end_at", e.endAt).Msg("room timer expired")
			s.onExpiry(id, e.endAt)
		case <-e.done:
		}
	}(roomID, entry)

	log.Debug().
		Str("room_id", roomID).
		Time("end_at", endAt).
		Dur("duration", d).
		Msg("scheduled room timer expiry")
}

// Cancel disarms the room's timer if one is scheduled.
func (s *Scheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.active[roomID]; ok {
		stopAndDrainTimer(e.timer)
		close(e.done)
		delete(s.active, roomID)
		log.Debug().Str("room_id", roomID).Msg("cancelled room timer expiry")
	}
}

// Pending reports whether the room has an armed timer.
func (s *Scheduler) Pending(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[roomID]
	return ok
}

// Stop disarms every timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.active {
		stopAndDrainTimer(e.timer)
		close(e.done)
		delete(s.active, id)
	}
}

// replace atomically swaps the room's timer, cancelling the previous one.
func (s *Scheduler) replace(roomID string, e *scheduled) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[roomID]; ok {
		stopAndDrainTimer(existing.timer)
		close(existing.done)
	}
	s.active[roomID] = e
}

// removeIf drops e if it is still the room's current timer.
func (s *Scheduler) removeIf(roomID string, e *scheduled) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[roomID] != e {
		return false
	}
	delete(s.active, roomID)
	return true
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
