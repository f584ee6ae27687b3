package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/samber/lo"
)

// JoinResult is the outcome of a join. Previous is set when the connection moved
// out of another room.
type JoinResult struct {
	Roster   models.Roster
	Previous *models.Roster
}

// Tracker tracks which connections are in which room.
// Entries are keyed by connection id; rosters are deduplicated by user id.
type Tracker struct {
	mu        sync.Mutex
	store     Store
	connRooms map[string]string
	emptyAt   map[string]time.Time
	clock     clockwork.Clock
}

// NewTracker creates a tracker over store.
func NewTracker(store Store, clock clockwork.Clock) *Tracker {
	return &Tracker{
		store:     store,
		connRooms: make(map[string]string),
		emptyAt:   make(map[string]time.Time),
		clock:     clock,
	}
}

// Join registers connectionID in roomID, leaving any room it was in before.
func (t *Tracker) Join(roomID, connectionID string, user models.Participant) JoinResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result JoinResult
	if prev, ok := t.connRooms[connectionID]; ok && prev != roomID {
		if roster, removed := t.removeLocked(prev, connectionID); removed {
			result.Previous = &roster
		}
	}

	p := t.store.GetOrCreate(roomID)
	p.Upsert(models.PresenceEntry{
		ConnectionID: connectionID,
		RoomID:       roomID,
		User:         Normalize(user, connectionID),
	})
	t.connRooms[connectionID] = roomID
	delete(t.emptyAt, roomID)

	result.Roster = rosterOf(roomID, p)
	return result
}

// Leave removes connectionID from roomID. A connection that has since moved to another
// room, or already left, is not touched.
func (t *Tracker) Leave(roomID, connectionID string) (models.Roster, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.connRooms[connectionID]; !ok || current != roomID {
		return models.Roster{}, false
	}
	return t.removeLocked(roomID, connectionID)
}

// Roster returns the current roster of a room.
func (t *Tracker) Roster(roomID string) models.Roster {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.store.Get(roomID)
	if !ok {
		return models.Roster{RoomID: roomID, Users: []models.Participant{}}
	}
	return rosterOf(roomID, p)
}

// Connections lists the connection ids currently in roomID, in join order.
func (t *Tracker) Connections(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.store.Get(roomID)
	if !ok {
		return nil
	}
	return lo.Map(p.Entries(), func(e models.PresenceEntry, _ int) string { return e.ConnectionID })
}

// IdleSince reports when a room last became empty. Rooms with live connections
// or never seen return false.
func (t *Tracker) IdleSince(roomID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.store.Get(roomID); ok && p.Len() > 0 {
		return time.Time{}, false
	}
	at, ok := t.emptyAt[roomID]
	return at, ok
}

// IdleRooms lists rooms that emptied and have not been forgotten.
func (t *Tracker) IdleRooms() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Keys(t.emptyAt)
}

// Forget drops bookkeeping for an empty room.
func (t *Tracker) Forget(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.store.Get(roomID); ok && p.Len() > 0 {
		return
	}
	t.store.Delete(roomID)
	delete(t.emptyAt, roomID)
}

func (t *Tracker) removeLocked(roomID, connectionID string) (models.Roster, bool) {
	delete(t.connRooms, connectionID)

	p, ok := t.store.Get(roomID)
	if !ok || !p.Remove(connectionID) {
		return models.Roster{}, false
	}
	if p.Len() == 0 {
		t.store.Delete(roomID)
		t.emptyAt[roomID] = t.clock.Now()
		return models.Roster{RoomID: roomID, Users: []models.Participant{}}, true
	}
	return rosterOf(roomID, p), true
}

func rosterOf(roomID string, p *RoomPresence) models.Roster {
	entries := p.Entries()
	hosts := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.User.IsHost {
			hosts[e.User.ID] = true
		}
	}

	users := lo.Map(
		lo.UniqBy(entries, func(e models.PresenceEntry) string { return e.User.ID }),
		func(e models.PresenceEntry, _ int) models.Participant {
			u := e.User
			u.IsHost = hosts[u.ID]
			return u
		},
	)
	return models.Roster{RoomID: roomID, Count: len(users), Users: users}
}

// Normalize fills defaults for anonymous or partially described users.
func Normalize(u models.Participant, connectionID string) models.Participant {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		u.ID = connectionID
	}
	if strings.TrimSpace(u.Name) == "" {
		u.Name = models.DefaultDisplayName
	}
	if strings.TrimSpace(u.AvatarURL) == "" {
		u.AvatarURL = models.DefaultAvatarURL
	}
	return u
}
