package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidPayload wraps every decoding or validation failure of an inbound frame.
var ErrInvalidPayload = errors.New("invalid payload")

var validate = validator.New()

// ClientMessage is an inbound frame.
type ClientMessage struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RoomEvent is an outbound frame.
type RoomEvent struct {
	ID        string          `json:"id"`        // Event UUID
	RoomID    string          `json:"room_id"`   // Room identifier
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// NewRoomEvent marshals payload into a new outbound event.
func NewRoomEvent(eventType EventType, roomID string, payload any, at time.Time) (*RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &RoomEvent{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// Target says who receives an outbound event.
type Target int

const (
	TargetRoom Target = iota
	TargetConnection
)

// Outbound is an event addressed to a room or to a single connection.
type Outbound struct {
	Target       Target
	RoomID       string
	ConnectionID string
	Event        *RoomEvent
}

// ToRoom addresses event to every member of roomID.
func ToRoom(roomID string, event *RoomEvent) Outbound {
	return Outbound{Target: TargetRoom, RoomID: roomID, Event: event}
}

// ToConnection addresses event to one connection.
func ToConnection(roomID, connectionID string, event *RoomEvent) Outbound {
	return Outbound{Target: TargetConnection, RoomID: roomID, ConnectionID: connectionID, Event: event}
}

// DecodeClientMessage parses an inbound frame envelope.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !msg.Type.Inbound() {
		return ClientMessage{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidPayload, msg.Type)
	}
	return msg, nil
}

// ParsePayload decodes the data of an inbound frame into the payload struct for its type
// and validates it.
func ParsePayload(msg ClientMessage) (any, error) {
	var payload any
	switch msg.Type {
	case EventJoin:
		payload = &JoinPayload{}
	case EventTimerRequest, EventAnnouncementDeleted:
		payload = &RoomPayload{}
	case EventTimerStart, EventTimerPause, EventTimerReset, EventTimerFinish:
		payload = &TimerControlPayload{}
	case EventSettingsUpdate:
		payload = &SettingsUpdatePayload{}
	case EventAnnouncementUpdated:
		payload = &AnnouncementTextPayload{}
	case EventAnnouncementReacted:
		payload = &ReactionPayload{}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidPayload, msg.Type)
	}

	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(msg.Data, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

// PeekRoomID reads the room id of a frame whose payload may not validate.
// It returns "" when the data carries no usable room id.
func PeekRoomID(msg ClientMessage) string {
	var head struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(msg.Data, &head); err != nil {
		return ""
	}
	if validate.Var(head.RoomID, "required,max=128") != nil {
		return ""
	}
	return head.RoomID
}
