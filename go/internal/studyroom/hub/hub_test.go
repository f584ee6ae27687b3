package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/rooms/memory"
	"github.com/mcdev12/studyroom/go/internal/studyroom/announcement"
	"github.com/mcdev12/studyroom/go/internal/studyroom/authority"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/mcdev12/studyroom/go/internal/studyroom/presence"
	"github.com/mcdev12/studyroom/go/internal/studyroom/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const roomID = "room-1"

type recorder struct {
	mu   sync.Mutex
	outs []events.Outbound
}

func (r *recorder) Deliver(out events.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs = append(r.outs, out)
}

// take returns and clears everything delivered so far.
func (r *recorder) take() []events.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	outs := r.outs
	r.outs = nil
	return outs
}

func (r *recorder) ofType(eventType events.EventType) []events.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []events.Outbound
	for _, o := range r.outs {
		if o.Event.Type == eventType {
			matched = append(matched, o)
		}
	}
	return matched
}

type harness struct {
	hub   *Hub
	clock *clockwork.FakeClock
	out   *recorder
	repo  *memory.Repository
	ctx   context.Context
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(t0)
	repo := memory.NewRepository()
	room := &models.Room{
		ID:         roomID,
		HostUserID: "H",
		Status:     models.RoomStatusActive,
		Settings:   models.DefaultRoomSettings("Deneme"),
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
	require.NoError(t, repo.CreateRoom(context.Background(), room))
	other := room.Clone()
	other.ID = "room-2"
	require.NoError(t, repo.CreateRoom(context.Background(), other))

	out := &recorder{}
	deps := Deps{
		Clock:       clock,
		Timers:      timer.NewMemoryStore(),
		Presence:    presence.NewTracker(presence.NewMemoryStore(), clock),
		Authority:   authority.New(repo),
		Rooms:       repo,
		Board:       announcement.NewBoard(repo, clock),
		Broadcaster: out,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h := New(Config{Workers: 4, QueueSize: 64, IdleTTL: 30 * time.Minute}, deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{hub: h, clock: clock, out: out, repo: repo, ctx: context.Background()}
}

// flush waits until every job already queued for the room has run.
func (x *harness) flush(t *testing.T, room string) {
	t.Helper()
	require.NoError(t, x.hub.call(x.ctx, room, "flush", func(context.Context) {}))
}

func (x *harness) send(t *testing.T, s *Session, eventType events.EventType, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	require.NoError(t, err)
	require.NoError(t, x.hub.Dispatch(x.ctx, s, raw))
}

func (x *harness) join(t *testing.T, connectionID, userID, room string) *Session {
	t.Helper()
	s := &Session{ConnectionID: connectionID}
	x.send(t, s, events.EventJoin, map[string]any{
		"roomId": room,
		"user":   map[string]any{"id": userID, "name": userID, "isHost": true},
	})
	x.flush(t, room)
	return s
}

func decode[T any](t *testing.T, out events.Outbound) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(out.Event.Data, &v))
	return v
}

func TestJoinResolvesHostFromRoomRecord(t *testing.T) {
	x := newHarness(t)

	x.join(t, "c-host", "H", roomID)
	x.join(t, "c-part", "P", roomID)

	rosters := x.out.ofType(events.EventPresenceUpdate)
	require.Len(t, rosters, 2)
	roster := decode[models.Roster](t, rosters[1])
	assert.Equal(t, events.TargetRoom, rosters[1].Target)
	assert.Equal(t, 2, roster.Count)
	require.Len(t, roster.Users, 2)
	assert.Equal(t, "H", roster.Users[0].ID)
	assert.True(t, roster.Users[0].IsHost)
	assert.Equal(t, "P", roster.Users[1].ID)
	assert.False(t, roster.Users[1].IsHost, "claimed host flag must be ignored")
}

func TestRosterDeduplicatesUserAcrossConnections(t *testing.T) {
	x := newHarness(t)

	s := x.join(t, "c1", "U", roomID)
	x.join(t, "c2", "U", roomID)

	rosters := x.out.ofType(events.EventPresenceUpdate)
	require.Len(t, rosters, 2)
	assert.Equal(t, 1, decode[models.Roster](t, rosters[1]).Count)

	x.out.take()
	require.NoError(t, x.hub.Leave(x.ctx, s))
	x.flush(t, roomID)

	rosters = x.out.ofType(events.EventPresenceUpdate)
	require.Len(t, rosters, 1)
	assert.Equal(t, 1, decode[models.Roster](t, rosters[0]).Count)

	// leaving twice is harmless
	require.NoError(t, x.hub.Leave(x.ctx, s))
	x.flush(t, roomID)
	assert.Len(t, x.out.ofType(events.EventPresenceUpdate), 1)
}

func TestJoinAnotherRoomLeavesPrevious(t *testing.T) {
	x := newHarness(t)

	s := x.join(t, "c1", "U", roomID)
	x.out.take()

	x.send(t, s, events.EventJoin, map[string]any{"roomId": "room-2", "user": map[string]any{"id": "U"}})
	x.flush(t, "room-2")

	assert.Eventually(t, func() bool {
		for _, o := range x.out.ofType(events.EventPresenceUpdate) {
			if o.RoomID == roomID && decode[models.Roster](t, o).Count == 0 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, x.hub.Roster("room-2").Count)
	assert.Equal(t, "room-2", s.RoomID)
}

func TestHostStartBroadcastsSync(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	x.out.take()

	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID, "mode": "work", "durationSec": 1500})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventTimerSync, outs[0].Event.Type)
	assert.Equal(t, events.TargetRoom, outs[0].Target)

	snap := decode[models.TimerSnapshot](t, outs[0])
	assert.True(t, snap.IsRunning)
	assert.Equal(t, 1500, snap.RemainingSec)
	require.NotNil(t, snap.EndAt)
	assert.Equal(t, t0.Add(1500*time.Second).UnixMilli(), *snap.EndAt)
	require.NotNil(t, snap.StartedBy)
	assert.Equal(t, "H", *snap.StartedBy)
	assert.True(t, x.hub.PendingExpiry(roomID))

	// a second start while running changes nothing
	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	assert.Empty(t, x.out.take())
}

func TestNonHostCommandIsRejected(t *testing.T) {
	x := newHarness(t)
	x.join(t, "c-host", "H", roomID)
	part := x.join(t, "c-part", "P", roomID)
	x.out.take()

	x.send(t, part, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventTimerError, outs[0].Event.Type)
	assert.Equal(t, events.TargetConnection, outs[0].Target)
	assert.Equal(t, "c-part", outs[0].ConnectionID)
	assert.Equal(t, msgTimerDenied, decode[events.ErrorPayload](t, outs[0]).Message)

	snap, err := x.hub.TimerSnapshot(x.ctx, roomID)
	require.NoError(t, err)
	assert.False(t, snap.IsRunning)
	assert.Equal(t, 1500, snap.RemainingSec)
}

func TestHostCommandBeforeJoinIsDenied(t *testing.T) {
	x := newHarness(t)

	x.send(t, &Session{ConnectionID: "c1"}, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventTimerError, outs[0].Event.Type)
	assert.Equal(t, "c1", outs[0].ConnectionID)
	assert.Equal(t, msgTimerDenied, decode[events.ErrorPayload](t, outs[0]).Message)

	snap, err := x.hub.TimerSnapshot(x.ctx, roomID)
	require.NoError(t, err)
	assert.False(t, snap.IsRunning)
}

// hold blocks the room's worker until the returned func is called.
func (x *harness) hold(t *testing.T, room string) func() {
	t.Helper()
	release := make(chan struct{})
	require.NoError(t, x.hub.post(x.ctx, room, "hold", func(context.Context) { <-release }))
	return func() { close(release) }
}

func TestLeaveBeforeQueuedJoinRuns(t *testing.T) {
	x := newHarness(t)

	release := x.hold(t, roomID)
	s := &Session{ConnectionID: "c1"}
	x.send(t, s, events.EventJoin, map[string]any{"roomId": roomID, "user": map[string]any{"id": "P", "name": "P"}})
	require.NoError(t, x.hub.Leave(x.ctx, s))
	release()
	x.flush(t, roomID)

	assert.Empty(t, x.hub.presence.Connections(roomID))
	assert.Equal(t, 0, x.hub.presence.Roster(roomID).Count)
	_, idle := x.hub.presence.IdleSince(roomID)
	assert.True(t, idle)

	// leaving twice is harmless
	require.NoError(t, x.hub.Leave(x.ctx, s))
	x.flush(t, roomID)
}

func TestLeaveAfterQueuedRejoins(t *testing.T) {
	x := newHarness(t)
	s := x.join(t, "c1", "P", roomID)

	releaseFirst := x.hold(t, roomID)
	releaseSecond := x.hold(t, "room-2")
	x.send(t, s, events.EventJoin, map[string]any{"roomId": "room-2", "user": map[string]any{"id": "P"}})
	x.send(t, s, events.EventJoin, map[string]any{"roomId": roomID, "user": map[string]any{"id": "P"}})
	require.NoError(t, x.hub.Leave(x.ctx, s))
	releaseSecond()
	releaseFirst()
	x.flush(t, roomID)
	x.flush(t, "room-2")

	assert.Empty(t, x.hub.presence.Connections(roomID))
	assert.Empty(t, x.hub.presence.Connections("room-2"))
}

func TestVerifiedIdentityIgnoresJoinPayload(t *testing.T) {
	x := newHarness(t)

	s := &Session{ConnectionID: "c1", UserID: "P", Verified: true}
	x.send(t, s, events.EventJoin, map[string]any{"roomId": roomID, "user": map[string]any{"id": "H"}})
	x.flush(t, roomID)
	assert.Equal(t, "P", s.UserID)

	x.send(t, s, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	assert.Len(t, x.out.ofType(events.EventTimerError), 1)
}

func TestPauseFreezesRemaining(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)

	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	x.out.take()

	x.clock.Advance(600 * time.Second)
	x.send(t, host, events.EventTimerPause, map[string]any{"roomId": roomID})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	snap := decode[models.TimerSnapshot](t, outs[0])
	assert.False(t, snap.IsRunning)
	assert.Equal(t, 900, snap.RemainingSec)
	assert.Nil(t, snap.EndAt)
	assert.False(t, x.hub.PendingExpiry(roomID))

	// pausing a paused timer is a no-op
	x.send(t, host, events.EventTimerPause, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	assert.Empty(t, x.out.take())

	// resuming continues from the frozen time
	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	snap = decode[models.TimerSnapshot](t, outs[0])
	assert.Equal(t, 900, snap.RemainingSec)
	assert.Equal(t, x.clock.Now().Add(900*time.Second).UnixMilli(), *snap.EndAt)
}

func TestResetIsUnconditional(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	x.out.take()

	x.send(t, host, events.EventTimerReset, map[string]any{"roomId": roomID})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	snap := decode[models.TimerSnapshot](t, outs[0])
	assert.Equal(t, 1500, snap.RemainingSec)
	assert.Nil(t, snap.StartedBy)
}

func TestNaturalDepletionFinishesOnce(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)

	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	x.out.take()

	x.clock.Advance(1500 * time.Second)

	require.Eventually(t, func() bool {
		return len(x.out.ofType(events.EventTimerFinished)) == 1
	}, time.Second, 5*time.Millisecond)
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 2)
	assert.Equal(t, events.EventTimerFinished, outs[0].Event.Type)
	assert.Equal(t, roomID, decode[events.FinishedPayload](t, outs[0]).RoomID)
	assert.Equal(t, events.EventTimerSync, outs[1].Event.Type)
	snap := decode[models.TimerSnapshot](t, outs[1])
	assert.False(t, snap.IsRunning)
	assert.Equal(t, 0, snap.RemainingSec)

	// a client-side finish racing the server finish adds nothing
	x.send(t, host, events.EventTimerFinish, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	assert.Empty(t, x.out.take())

	// starting a depleted timer restarts the full duration
	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, 1500, decode[models.TimerSnapshot](t, outs[0]).RemainingSec)
}

func TestHostFinishCancelsExpiry(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)

	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	x.send(t, host, events.EventTimerFinish, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	assert.False(t, x.hub.PendingExpiry(roomID))

	x.clock.Advance(2000 * time.Second)
	x.flush(t, roomID)
	assert.Len(t, x.out.ofType(events.EventTimerFinished), 1)
}

func TestStaleExpiryIsIgnored(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)

	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	staleEndAt := t0.Add(1500 * time.Second)

	x.clock.Advance(10 * time.Second)
	x.send(t, host, events.EventTimerPause, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	x.clock.Advance(5 * time.Second)
	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	x.out.take()

	x.hub.onTimerExpired(roomID, staleEndAt)
	x.flush(t, roomID)
	assert.Empty(t, x.out.take())

	snap, err := x.hub.TimerSnapshot(x.ctx, roomID)
	require.NoError(t, err)
	assert.True(t, snap.IsRunning)
}

func TestPauseRacingExpiryStillFinishes(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)

	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	x.out.take()

	// the pause is queued ahead of the expiry the scheduler posts once time is up
	release := x.hold(t, roomID)
	x.send(t, host, events.EventTimerPause, map[string]any{"roomId": roomID})
	x.clock.Advance(1500 * time.Second)
	x.hub.onTimerExpired(roomID, t0.Add(1500*time.Second))
	release()
	x.flush(t, roomID)

	assert.Len(t, x.out.ofType(events.EventTimerFinished), 1)
	snap, err := x.hub.TimerSnapshot(x.ctx, roomID)
	require.NoError(t, err)
	assert.False(t, snap.IsRunning)
	assert.Equal(t, 0, snap.RemainingSec)
}

func TestTimerRequestRepliesToRequesterOnly(t *testing.T) {
	x := newHarness(t)
	part := x.join(t, "c-part", "P", roomID)
	x.out.take()

	x.send(t, part, events.EventTimerRequest, map[string]any{"roomId": roomID})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.TargetConnection, outs[0].Target)
	assert.Equal(t, "c-part", outs[0].ConnectionID)
	assert.Equal(t, 1500, decode[models.TimerSnapshot](t, outs[0]).RemainingSec)
}

func TestSettingsUpdate(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	part := x.join(t, "c-part", "P", roomID)
	x.out.take()

	x.send(t, host, events.EventSettingsUpdate, map[string]any{
		"roomId":   roomID,
		"settings": map[string]any{"title": "  Sabah Çalışması ", "focusMinutes": 500, "isLocked": true},
	})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventSettings, outs[0].Event.Type)
	payload := decode[events.SettingsPayload](t, outs[0])
	assert.Equal(t, "Sabah Çalışması", payload.Room.Title)
	assert.Equal(t, models.MaxFocusMinutes, payload.Room.FocusMinutes)
	assert.Equal(t, 5, payload.Room.ShortBreakMinutes)
	assert.True(t, payload.Room.IsLocked)

	stored, err := x.repo.GetRoom(x.ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, payload.Room, stored.Settings)

	// fields left out keep their stored value, including the lock
	x.send(t, host, events.EventSettingsUpdate, map[string]any{"roomId": roomID, "settings": map[string]any{"title": "Yeni"}})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	payload = decode[events.SettingsPayload](t, outs[0])
	assert.Equal(t, "Yeni", payload.Room.Title)
	assert.True(t, payload.Room.IsLocked)
	assert.Equal(t, models.MaxFocusMinutes, payload.Room.FocusMinutes)

	x.send(t, host, events.EventSettingsUpdate, map[string]any{"roomId": roomID, "settings": map[string]any{"isLocked": false}})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.False(t, decode[events.SettingsPayload](t, outs[0]).Room.IsLocked)

	x.send(t, part, events.EventSettingsUpdate, map[string]any{"roomId": roomID, "settings": map[string]any{"title": "x"}})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventTimerError, outs[0].Event.Type)
	assert.Equal(t, msgSettingsDenied, decode[events.ErrorPayload](t, outs[0]).Message)
}

func TestAnnouncementFlow(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	part := x.join(t, "c-part", "P", roomID)
	x.out.take()

	x.send(t, part, events.EventAnnouncementReacted, map[string]any{"roomId": roomID, "emoji": "👍"})
	x.flush(t, roomID)
	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventAnnouncementError, outs[0].Event.Type)
	assert.Equal(t, "No announcement to react to", decode[events.ErrorPayload](t, outs[0]).Message)

	x.send(t, host, events.EventAnnouncementUpdated, map[string]any{"roomId": roomID, "text": "  Mola 10 dakika  "})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventAnnouncementUpdate, outs[0].Event.Type)
	a := decode[events.AnnouncementPayload](t, outs[0]).Announcement
	require.NotNil(t, a.Text)
	assert.Equal(t, "Mola 10 dakika", *a.Text)
	assert.Empty(t, a.Reactions)

	x.send(t, part, events.EventAnnouncementReacted, map[string]any{"roomId": roomID, "emoji": "👍"})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventAnnouncementReact, outs[0].Event.Type)
	reactions := decode[events.ReactionsPayload](t, outs[0]).Reactions
	require.Len(t, reactions, 1)
	assert.Equal(t, []string{"P"}, reactions[0].UserIDs)

	x.send(t, part, events.EventAnnouncementReacted, map[string]any{"roomId": roomID, "emoji": "👍"})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Empty(t, decode[events.ReactionsPayload](t, outs[0]).Reactions)

	x.send(t, part, events.EventAnnouncementUpdated, map[string]any{"roomId": roomID, "text": "hi"})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, msgAnnouncementDenied, decode[events.ErrorPayload](t, outs[0]).Message)

	x.send(t, part, events.EventAnnouncementDeleted, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, msgDeleteDenied, decode[events.ErrorPayload](t, outs[0]).Message)

	x.send(t, host, events.EventAnnouncementDeleted, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	outs = x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, events.EventAnnouncementDelete, outs[0].Event.Type)

	stored, err := x.repo.GetRoom(x.ctx, roomID)
	require.NoError(t, err)
	assert.False(t, stored.Announcement.Present())
}

func TestAnnouncementValidation(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	x.out.take()

	long := make([]rune, models.MaxAnnouncementLength+1)
	for i := range long {
		long[i] = 'ş'
	}
	x.send(t, host, events.EventAnnouncementUpdated, map[string]any{"roomId": roomID, "text": string(long)})
	x.send(t, host, events.EventAnnouncementUpdated, map[string]any{"roomId": roomID, "text": "   "})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 2)
	assert.Equal(t, "Announcement text must be at most 500 characters", decode[events.ErrorPayload](t, outs[0]).Message)
	assert.Equal(t, "Announcement text is required", decode[events.ErrorPayload](t, outs[1]).Message)
}

type failingAuthority struct{}

func (failingAuthority) Check(context.Context, string, string) authority.Result {
	return authority.Result{Decision: authority.LookupFailed, Err: errors.New("connection refused")}
}

func TestLookupFailureRejectsWithoutMutation(t *testing.T) {
	x := newHarness(t, func(d *Deps) { d.Authority = failingAuthority{} })
	host := x.join(t, "c-host", "H", roomID)
	x.out.take()

	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID})
	x.flush(t, roomID)

	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, msgHostLookupFailed, decode[events.ErrorPayload](t, outs[0]).Message)

	snap, err := x.hub.TimerSnapshot(x.ctx, roomID)
	require.NoError(t, err)
	assert.False(t, snap.IsRunning)
}

func TestUnknownRoomIsDenied(t *testing.T) {
	x := newHarness(t)
	s := x.join(t, "c1", "H", "missing")
	x.out.take()

	x.send(t, s, events.EventTimerStart, map[string]any{"roomId": "missing"})
	x.flush(t, "missing")

	outs := x.out.take()
	require.Len(t, outs, 1)
	assert.Equal(t, msgTimerDenied, decode[events.ErrorPayload](t, outs[0]).Message)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	x := newHarness(t)
	s := &Session{ConnectionID: "c1"}

	for _, raw := range []string{`not json`, `{"type":"room:unknown","data":{}}`, `{"type":"room:timer:start","data":{}}`} {
		assert.NoError(t, x.hub.Dispatch(x.ctx, s, []byte(raw)))
	}
	x.flush(t, roomID)
	assert.Empty(t, x.out.take())
}

func TestInvalidPayloadIsAnswered(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	x.out.take()

	long := strings.Repeat("ş", 81)
	tests := []struct {
		name      string
		eventType events.EventType
		data      map[string]any
		channel   events.EventType
	}{
		{"unknown mode", events.EventTimerStart, map[string]any{"roomId": roomID, "mode": "nap"}, events.EventTimerError},
		{"negative duration", events.EventTimerStart, map[string]any{"roomId": roomID, "durationSec": -5}, events.EventTimerError},
		{"title too long", events.EventSettingsUpdate, map[string]any{"roomId": roomID, "settings": map[string]any{"title": long}}, events.EventTimerError},
		{"settings missing", events.EventSettingsUpdate, map[string]any{"roomId": roomID}, events.EventTimerError},
		{"emoji too long", events.EventAnnouncementReacted, map[string]any{"roomId": roomID, "emoji": long}, events.EventAnnouncementError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x.send(t, host, tt.eventType, tt.data)
			x.flush(t, roomID)

			outs := x.out.take()
			require.Len(t, outs, 1)
			assert.Equal(t, tt.channel, outs[0].Event.Type)
			assert.Equal(t, events.TargetConnection, outs[0].Target)
			assert.Equal(t, "c-host", outs[0].ConnectionID)
			assert.Equal(t, msgInvalidRequest, decode[events.ErrorPayload](t, outs[0]).Message)
		})
	}

	snap, err := x.hub.TimerSnapshot(x.ctx, roomID)
	require.NoError(t, err)
	assert.False(t, snap.IsRunning)
	assert.Equal(t, 1500, snap.RemainingSec)
}

func TestHandleRoomChange(t *testing.T) {
	x := newHarness(t)

	_, err := x.repo.UpdateSettings(x.ctx, roomID, func(cur models.RoomSettings) models.RoomSettings {
		cur.Title = "Gece Vardiyası"
		return cur
	})
	require.NoError(t, err)

	require.NoError(t, x.hub.HandleRoomChange(x.ctx, rooms.Change{RoomID: roomID, Kind: rooms.ChangeSettings}))
	require.NoError(t, x.hub.HandleRoomChange(x.ctx, rooms.Change{RoomID: roomID, Kind: rooms.ChangeAnnouncement}))
	require.NoError(t, x.hub.HandleRoomChange(x.ctx, rooms.Change{RoomID: "missing", Kind: rooms.ChangeSettings}))
	x.flush(t, roomID)
	x.flush(t, "missing")

	outs := x.out.take()
	require.Len(t, outs, 2)
	assert.Equal(t, "Gece Vardiyası", decode[events.SettingsPayload](t, outs[0]).Room.Title)
	assert.Equal(t, events.EventAnnouncementDelete, outs[1].Event.Type)
}

func TestSweepIdleEvictsEmptyRooms(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	x.send(t, host, events.EventTimerReset, map[string]any{"roomId": roomID})
	x.flush(t, roomID)
	require.NoError(t, x.hub.Leave(x.ctx, host))
	x.flush(t, roomID)

	x.clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, x.hub.SweepIdle(x.ctx))

	x.clock.Advance(25 * time.Minute)
	assert.Equal(t, 1, x.hub.SweepIdle(x.ctx))
	_, ok := x.hub.timers.Get(roomID)
	assert.False(t, ok)
}

func TestSweepIdleKeepsRunningAndOccupiedRooms(t *testing.T) {
	x := newHarness(t)
	host := x.join(t, "c-host", "H", roomID)
	x.send(t, host, events.EventTimerStart, map[string]any{"roomId": roomID, "durationSec": 7200})
	x.flush(t, roomID)
	require.NoError(t, x.hub.Leave(x.ctx, host))
	x.flush(t, roomID)

	x.join(t, "c-part", "P", "room-2")
	x.send(t, &Session{ConnectionID: "c-part", UserID: "P"}, events.EventTimerRequest, map[string]any{"roomId": "room-2"})
	x.flush(t, "room-2")

	x.clock.Advance(40 * time.Minute)
	assert.Equal(t, 0, x.hub.SweepIdle(x.ctx))

	_, ok := x.hub.timers.Get(roomID)
	assert.True(t, ok)
	_, ok = x.hub.timers.Get("room-2")
	assert.True(t, ok)
}

func TestSweepIdleEvictsRoomsNeverJoined(t *testing.T) {
	x := newHarness(t)
	x.send(t, &Session{ConnectionID: "c1"}, events.EventTimerRequest, map[string]any{"roomId": roomID})
	x.flush(t, roomID)

	assert.Equal(t, 0, x.hub.SweepIdle(x.ctx))
	x.clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, x.hub.SweepIdle(x.ctx))
}

func TestTimerOutboundOrder(t *testing.T) {
	state := models.NewRoomTimerState(roomID)
	state.IsRunning = true
	endAt := t0.Add(time.Minute)
	state.EndAt = &endAt

	outs, err := timerOutbound(roomID, timer.Finish(state), t0)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, events.EventTimerFinished, outs[0].Event.Type)
	assert.Equal(t, events.EventTimerSync, outs[1].Event.Type)

	outs, err = timerOutbound(roomID, timer.Result{State: state}, t0)
	require.NoError(t, err)
	assert.Empty(t, outs)
}
