package events

// EventType is the name of a realtime event on the wire.
type EventType string

// Client to server.
const (
	EventJoin                EventType = "room:join"
	EventTimerRequest        EventType = "room:timer:request"
	EventTimerStart          EventType = "room:timer:start"
	EventTimerPause          EventType = "room:timer:pause"
	EventTimerReset          EventType = "room:timer:reset"
	EventTimerFinish         EventType = "room:timer:finish"
	EventSettingsUpdate      EventType = "room:settings:update"
	EventAnnouncementUpdated EventType = "room:announcement:updated"
	EventAnnouncementDeleted EventType = "room:announcement:deleted"
	EventAnnouncementReacted EventType = "room:announcement:reacted"
)

// Server to clients.
const (
	EventPresenceUpdate     EventType = "presence:update"
	EventTimerSync          EventType = "room:timer:sync"
	EventTimerFinished      EventType = "room:timer:finished"
	EventTimerError         EventType = "room:timer:error"
	EventSettings           EventType = "room:settings"
	EventAnnouncementUpdate EventType = "room:announcement:update"
	EventAnnouncementDelete EventType = "room:announcement:delete"
	EventAnnouncementReact  EventType = "room:announcement:reaction"
	EventAnnouncementError  EventType = "room:announcement:error"
)

// Inbound reports whether t is accepted from clients.
func (t EventType) Inbound() bool {
	switch t {
	case EventJoin, EventTimerRequest, EventTimerStart, EventTimerPause, EventTimerReset,
		EventTimerFinish, EventSettingsUpdate, EventAnnouncementUpdated,
		EventAnnouncementDeleted, EventAnnouncementReacted:
		return true
	}
	return false
}
