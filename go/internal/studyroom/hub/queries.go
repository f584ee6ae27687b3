package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/studyroom/timer"
	"github.com/rs/zerolog/log"
)

// TimerSnapshot returns the room's timer as clients would see it now. It runs on the
// room's mailbox so it never observes a half-applied transition.
func (h *Hub) TimerSnapshot(ctx context.Context, roomID string) (models.TimerSnapshot, error) {
	var snap models.TimerSnapshot
	err := h.call(ctx, roomID, "timer:snapshot", func(context.Context) {
		snap = timer.Snapshot(h.timers.GetOrInit(roomID), h.clock.Now())
	})
	return snap, err
}

// Roster returns the room's current deduplicated roster.
func (h *Hub) Roster(roomID string) models.Roster {
	return h.presence.Roster(roomID)
}

// PendingExpiry reports whether a natural finish is scheduled for the room.
func (h *Hub) PendingExpiry(roomID string) bool {
	return h.scheduler.Pending(roomID)
}

// HandleRoomChange rebroadcasts a room record that was changed outside the realtime layer.
// It satisfies rooms.ChangeHandler.
func (h *Hub) HandleRoomChange(ctx context.Context, change rooms.Change) error {
	return h.post(ctx, change.RoomID, "room:change", func(ctx context.Context) {
		room, err := h.rooms.GetRoom(ctx, change.RoomID)
		if err != nil {
			if errors.Is(err, rooms.ErrNotFound) {
				log.Debug().Str("room_id", change.RoomID).Msg("changed room no longer exists")
				return
			}
			log.Error().Err(err).Str("room_id", change.RoomID).Msg("failed to load changed room")
			return
		}

		switch change.Kind {
		case rooms.ChangeSettings:
			out, err := settingsOutbound(room, h.clock.Now())
			if err != nil {
				log.Error().Err(err).Str("room_id", room.ID).Msg("failed to build settings event")
				return
			}
			h.emit(out)
		case rooms.ChangeAnnouncement:
			h.broadcastAnnouncement(room.ID, room.Announcement)
		default:
			log.Warn().Err(fmt.Errorf("unknown change kind %q", change.Kind)).Str("room_id", room.ID).Msg("ignoring room change")
		}
	})
}
