package hub

import (
	"fmt"
	"time"

	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/studyroom/authority"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/mcdev12/studyroom/go/internal/studyroom/timer"
)

// Messages sent to a requester whose host-only command was rejected.
const (
	msgTimerDenied        = "Only the host can control the timer"
	msgSettingsDenied     = "Only the host can update settings"
	msgSettingsFailed     = "Failed to update settings"
	msgAnnouncementDenied = "Only the host can create announcements"
	msgDeleteDenied       = "Only the host can delete announcements"
	msgHostLookupFailed   = "Server error"
	msgJoinBeforeReacting = "Join the room before reacting"
	msgInvalidRequest     = "Invalid request"
)

// The functions below are pure: they take the current state and an event and return the
// new state plus the outbound events, in the order they must be delivered.

// applyTimerCommand runs a host timer command against state.
func applyTimerCommand(state models.RoomTimerState, eventType events.EventType, p *events.TimerControlPayload, userID string, now time.Time) timer.Result {
	switch eventType {
	case events.EventTimerStart:
		return timer.Start(state, timer.StartParams{Mode: p.Mode, DurationSec: p.DurationSec}, userID, now)
	case events.EventTimerPause:
		return timer.Pause(state, now)
	case events.EventTimerReset:
		return timer.Reset(state)
	default:
		return timer.Finish(state)
	}
}

// timerOutbound renders the broadcasts that follow a transition. No-ops broadcast nothing.
// A finish announces timer:finished before the resulting sync.
func timerOutbound(roomID string, res timer.Result, now time.Time) ([]events.Outbound, error) {
	if !res.Changed {
		return nil, nil
	}

	outs := make([]events.Outbound, 0, 2)
	if res.Finished {
		ev, err := events.NewRoomEvent(events.EventTimerFinished, roomID, events.FinishedPayload{RoomID: roomID}, now)
		if err != nil {
			return nil, err
		}
		outs = append(outs, events.ToRoom(roomID, ev))
	}

	ev, err := events.NewRoomEvent(events.EventTimerSync, roomID, timer.Snapshot(res.State, now), now)
	if err != nil {
		return nil, err
	}
	return append(outs, events.ToRoom(roomID, ev)), nil
}

// syncReply answers a timer request to the asking connection only.
func syncReply(state models.RoomTimerState, connectionID string, now time.Time) (events.Outbound, error) {
	ev, err := events.NewRoomEvent(events.EventTimerSync, state.RoomID, timer.Snapshot(state, now), now)
	if err != nil {
		return events.Outbound{}, err
	}
	return events.ToConnection(state.RoomID, connectionID, ev), nil
}

func rosterOutbound(roster models.Roster, now time.Time) (events.Outbound, error) {
	ev, err := events.NewRoomEvent(events.EventPresenceUpdate, roster.RoomID, roster, now)
	if err != nil {
		return events.Outbound{}, err
	}
	return events.ToRoom(roster.RoomID, ev), nil
}

func settingsOutbound(room *models.Room, now time.Time) (events.Outbound, error) {
	ev, err := events.NewRoomEvent(events.EventSettings, room.ID, events.SettingsPayload{RoomID: room.ID, Room: room.Settings}, now)
	if err != nil {
		return events.Outbound{}, err
	}
	return events.ToRoom(room.ID, ev), nil
}

// announcementOutbound renders the stored announcement, or a delete when none is present.
func announcementOutbound(roomID string, a models.Announcement, now time.Time) (events.Outbound, error) {
	var (
		ev  *events.RoomEvent
		err error
	)
	if a.Present() {
		ev, err = events.NewRoomEvent(events.EventAnnouncementUpdate, roomID, events.AnnouncementPayload{RoomID: roomID, Announcement: a}, now)
	} else {
		ev, err = events.NewRoomEvent(events.EventAnnouncementDelete, roomID, events.AnnouncementDeletedPayload{RoomID: roomID}, now)
	}
	if err != nil {
		return events.Outbound{}, err
	}
	return events.ToRoom(roomID, ev), nil
}

func reactionsOutbound(roomID string, reactions []models.Reaction, now time.Time) (events.Outbound, error) {
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	ev, err := events.NewRoomEvent(events.EventAnnouncementReact, roomID, events.ReactionsPayload{RoomID: roomID, Reactions: reactions}, now)
	if err != nil {
		return events.Outbound{}, err
	}
	return events.ToRoom(roomID, ev), nil
}

func errorReply(eventType events.EventType, roomID, connectionID, message string, now time.Time) (events.Outbound, error) {
	ev, err := events.NewRoomEvent(eventType, roomID, events.ErrorPayload{Message: message}, now)
	if err != nil {
		return events.Outbound{}, err
	}
	return events.ToConnection(roomID, connectionID, ev), nil
}

// errorChannel returns the error event type a rejected inbound event reports on.
func errorChannel(eventType events.EventType) events.EventType {
	switch eventType {
	case events.EventAnnouncementUpdated, events.EventAnnouncementDeleted, events.EventAnnouncementReacted:
		return events.EventAnnouncementError
	default:
		return events.EventTimerError
	}
}

// rejectionMessage maps a failed host check to the text shown to the requester.
func rejectionMessage(eventType events.EventType, res authority.Result) string {
	if res.Decision == authority.LookupFailed {
		return msgHostLookupFailed
	}
	switch eventType {
	case events.EventSettingsUpdate:
		return msgSettingsDenied
	case events.EventAnnouncementUpdated:
		return msgAnnouncementDenied
	case events.EventAnnouncementDeleted:
		return msgDeleteDenied
	default:
		return msgTimerDenied
	}
}

// hostOnly reports whether an inbound event type requires the host.
func hostOnly(eventType events.EventType) bool {
	switch eventType {
	case events.EventTimerStart, events.EventTimerPause, events.EventTimerReset, events.EventTimerFinish,
		events.EventSettingsUpdate, events.EventAnnouncementUpdated, events.EventAnnouncementDeleted:
		return true
	}
	return false
}

func roomOf(payload any) (string, error) {
	switch p := payload.(type) {
	case *events.JoinPayload:
		return p.RoomID, nil
	case *events.RoomPayload:
		return p.RoomID, nil
	case *events.TimerControlPayload:
		return p.RoomID, nil
	case *events.SettingsUpdatePayload:
		return p.RoomID, nil
	case *events.AnnouncementTextPayload:
		return p.RoomID, nil
	case *events.ReactionPayload:
		return p.RoomID, nil
	default:
		return "", fmt.Errorf("%w: unexpected payload %T", events.ErrInvalidPayload, payload)
	}
}
