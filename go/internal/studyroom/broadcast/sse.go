package broadcast

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog/log"
)

// SSEMirror exposes each room as a read-only server-sent event stream for observers
// such as wall displays. Streams are created on first subscribe or first event.
// Clients connect with /sse?stream=<roomId>.
type SSEMirror struct {
	server *sse.Server
}

func NewSSEMirror() *SSEMirror {
	server := sse.New()
	server.AutoStream = true
	server.AutoReplay = false
	return &SSEMirror{server: server}
}

// Deliver publishes an event to its room stream. Wrap with RoomOnly to keep replies private.
func (m *SSEMirror) Deliver(out events.Outbound) {
	if out.Event == nil {
		return
	}

	data, err := json.Marshal(out.Event)
	if err != nil {
		log.Error().Err(err).Str("room_id", out.RoomID).Msg("failed to marshal SSE event")
		return
	}

	if !m.server.StreamExists(out.RoomID) {
		m.server.CreateStream(out.RoomID)
	}
	m.server.Publish(out.RoomID, &sse.Event{
		ID:    []byte(out.Event.ID),
		Event: []byte(out.Event.Type),
		Data:  data,
	})
}

// ServeHTTP serves the SSE endpoint.
func (m *SSEMirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.server.ServeHTTP(w, r)
}

func (m *SSEMirror) Close() {
	m.server.Close()
}
