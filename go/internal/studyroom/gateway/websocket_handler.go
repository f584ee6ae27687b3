package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/studyroom/go/internal/studyroom/hub"
	"github.com/rs/zerolog/log"
)

// HubStats exposes the hub's counters.
type HubStats interface {
	Snapshot() hub.Stats
}

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	identity          *IdentityVerifier
	hubStats          HubStats
}

// NewWebSocketHandler creates a new WebSocket handler. hubStats may be nil.
func NewWebSocketHandler(cm *ConnectionManager, identity *IdentityVerifier, hubStats HubStats) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		identity:          identity,
		hubStats:          hubStats,
	}
}

// HandleRoomConnection upgrades a client. The room is chosen later by room:join.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity.FromRequest(r)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrMissingToken) {
			log.Debug().Msg("websocket connection without token")
		} else {
			log.Warn().Err(err).Msg("websocket connection with invalid token")
		}
		http.Error(w, "unauthorized", status)
		return
	}

	// Upgrade writes its own error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r, identity); err != nil {
		log.Error().
			Err(err).
			Str("user_id", identity.UserID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

type statsResponse struct {
	ConnectionStats
	Hub *hub.Stats `json:"hub,omitempty"`
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{ConnectionStats: h.connectionManager.GetConnectionStats()}
	if h.hubStats != nil {
		s := h.hubStats.Snapshot()
		resp.Hub = &s
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
