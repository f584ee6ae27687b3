package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// janitor evicts the in-memory state of rooms that have had nobody present for IdleTTL.
// Running timers are never evicted. The janitor's own map is only touched by its goroutine.
type janitor struct {
	h         *Hub
	firstSeen map[string]time.Time // rooms with timer state that never had presence
}

func newJanitor(h *Hub) *janitor {
	return &janitor{h: h, firstSeen: make(map[string]time.Time)}
}

func (j *janitor) run(ctx context.Context) {
	if j.h.cfg.EvictionInterval <= 0 || j.h.cfg.IdleTTL <= 0 {
		<-ctx.Done()
		return
	}

	ticker := j.h.clock.NewTicker(j.h.cfg.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := j.sweep(ctx); n > 0 {
				log.Info().Int("rooms", n).Msg("evicted idle rooms")
			}
		}
	}
}

// sweep evicts every idle room and returns how many were evicted.
func (j *janitor) sweep(ctx context.Context) int {
	now := j.h.clock.Now()
	candidates := lo.Uniq(append(j.h.timers.RoomIDs(), j.h.presence.IdleRooms()...))

	evicted := 0
	for _, roomID := range candidates {
		since, ok := j.idleSince(roomID, now)
		if !ok || now.Sub(since) < j.h.cfg.IdleTTL {
			continue
		}

		var done bool
		err := j.h.call(ctx, roomID, "evict", func(context.Context) {
			done = j.h.evict(roomID)
		})
		if err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("eviction interrupted")
			return evicted
		}
		if done {
			delete(j.firstSeen, roomID)
			evicted++
		}
	}

	live := lo.SliceToMap(candidates, func(id string) (string, struct{}) { return id, struct{}{} })
	for roomID := range j.firstSeen {
		if _, ok := live[roomID]; !ok {
			delete(j.firstSeen, roomID)
		}
	}
	return evicted
}

func (j *janitor) idleSince(roomID string, now time.Time) (time.Time, bool) {
	if at, ok := j.h.presence.IdleSince(roomID); ok {
		delete(j.firstSeen, roomID)
		return at, true
	}
	if j.h.presence.Roster(roomID).Count > 0 {
		delete(j.firstSeen, roomID)
		return time.Time{}, false
	}
	at, ok := j.firstSeen[roomID]
	if !ok {
		j.firstSeen[roomID] = now
		return now, true
	}
	return at, true
}

// SweepIdle runs one eviction pass immediately. It must not run concurrently with Run's janitor.
func (h *Hub) SweepIdle(ctx context.Context) int {
	return h.janitor.sweep(ctx)
}

// evict drops a room's timer and presence bookkeeping unless someone rejoined or the timer runs.
// Runs on the room's mailbox.
func (h *Hub) evict(roomID string) bool {
	if h.presence.Roster(roomID).Count > 0 {
		return false
	}
	if state, ok := h.timers.Get(roomID); ok && state.IsRunning {
		return false
	}

	h.timers.Delete(roomID)
	h.scheduler.Cancel(roomID)
	h.presence.Forget(roomID)
	log.Debug().Str("room_id", roomID).Msg("room evicted")
	return true
}
