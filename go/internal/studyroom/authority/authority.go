package authority

import (
	"context"
	"errors"

	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/rs/zerolog/log"
)

// Decision is the tagged outcome of a host check.
type Decision int

const (
	// LookupFailed means the room record could not be read; callers must not mutate.
	LookupFailed Decision = iota
	Denied
	Authorized
)

func (d Decision) String() string {
	switch d {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return "lookup_failed"
	}
}

// Result carries the decision and, for LookupFailed, the underlying error.
type Result struct {
	Decision Decision
	Err      error
}

// Checker makes host decisions.
type Checker interface {
	Check(ctx context.Context, userID, roomID string) Result
}

// RoomReader is the slice of the room repository the authority needs.
type RoomReader interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
}

// HostAuthority decides whether a user is the host of a room.
type HostAuthority struct {
	rooms RoomReader
}

// New creates a HostAuthority backed by the durable room record.
func New(rooms RoomReader) *HostAuthority {
	return &HostAuthority{rooms: rooms}
}

// Check looks up the room and compares its host. Missing rooms are denied.
func (a *HostAuthority) Check(ctx context.Context, userID, roomID string) Result {
	if userID == "" || roomID == "" {
		return Result{Decision: Denied}
	}

	room, err := a.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			log.Debug().Str("room_id", roomID).Str("user_id", userID).Msg("host check on unknown room")
			return Result{Decision: Denied}
		}
		log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("host lookup failed")
		return Result{Decision: LookupFailed, Err: err}
	}

	if !room.IsHost(userID) {
		return Result{Decision: Denied}
	}
	return Result{Decision: Authorized}
}

// Gate runs fn only when userID is the host of roomID.
// onReject receives every non-authorized result and fn is never called for them.
func Gate(ctx context.Context, c Checker, userID, roomID string, onReject func(Result), fn func()) Result {
	res := c.Check(ctx, userID, roomID)
	if res.Decision != Authorized {
		if onReject != nil {
			onReject(res)
		}
		return res
	}
	fn()
	return res
}
