package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// StateProvider serves read-only room state to HTTP clients.
type StateProvider interface {
	TimerSnapshot(ctx context.Context, roomID string) (models.TimerSnapshot, error)
	Roster(roomID string) models.Roster
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetTimer handles GET /api/rooms/{roomId}/timer
func (h *StateHandler) HandleGetTimer(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	snap, err := h.stateProvider.TimerSnapshot(r.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get timer state")
		http.Error(w, "Failed to get timer state", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

// HandleGetPresence handles GET /api/rooms/{roomId}/presence
func (h *StateHandler) HandleGetPresence(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.stateProvider.Roster(roomID))
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/{roomId}/timer", h.HandleGetTimer)
	mux.HandleFunc("GET /api/rooms/{roomId}/presence", h.HandleGetPresence)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
