package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/studyroom/announcement"
	"github.com/mcdev12/studyroom/go/internal/studyroom/authority"
	"github.com/mcdev12/studyroom/go/internal/studyroom/broadcast"
	"github.com/mcdev12/studyroom/go/internal/studyroom/hub"
	"github.com/mcdev12/studyroom/go/internal/studyroom/presence"
	"github.com/mcdev12/studyroom/go/internal/studyroom/timer"
	"github.com/rs/zerolog/log"
)

// Service is the study room realtime service: websocket transport, room hub and observers.
type Service struct {
	hub               *hub.Hub
	metrics           *hub.CounterMetrics
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	healthHandler     *HealthHandler
	sse               *broadcast.SSEMirror
	publisher         *broadcast.JetStreamPublisher
	wg                sync.WaitGroup
}

// Config holds configuration for the realtime service
type Config struct {
	ConnectionConfig ConnectionConfig
	HubConfig        hub.Config
	JWTSecret        string
	SSEEnabled       bool
	NATSEnabled      bool
	JetStreamConfig  broadcast.JetStreamConfig
}

// DefaultConfig returns default configuration for the realtime service
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		HubConfig:        hub.DefaultConfig(),
		SSEEnabled:       true,
		JetStreamConfig:  broadcast.DefaultJetStreamConfig(),
	}
}

// Deps are the collaborators the service runs on.
type Deps struct {
	Clock  clockwork.Clock
	Rooms  rooms.Repository
	Health map[string]Pinger
}

// NewService creates a new realtime service
func NewService(ctx context.Context, config Config, deps Deps) (*Service, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	tracker := presence.NewTracker(presence.NewMemoryStore(), deps.Clock)
	connectionManager := NewConnectionManager(config.ConnectionConfig, nil, tracker)

	s := &Service{
		metrics:           hub.NewCounterMetrics(),
		connectionManager: connectionManager,
	}

	sinks := []broadcast.Sink{connectionManager}
	if config.SSEEnabled {
		s.sse = broadcast.NewSSEMirror()
		sinks = append(sinks, broadcast.RoomOnly(s.sse))
	}
	if config.NATSEnabled {
		publisher, err := broadcast.NewJetStreamPublisher(ctx, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		s.publisher = publisher
		sinks = append(sinks, broadcast.RoomOnly(publisher))
	}

	fanout := broadcast.NewFanout(sinks...)
	log.Info().Int("sinks", fanout.Len()).Bool("sse", s.sse != nil).Bool("jetstream", s.publisher != nil).Msg("broadcast sinks configured")

	s.hub = hub.New(config.HubConfig, hub.Deps{
		Clock:       deps.Clock,
		Timers:      timer.NewMemoryStore(),
		Presence:    tracker,
		Authority:   authority.New(deps.Rooms),
		Rooms:       deps.Rooms,
		Board:       announcement.NewBoard(deps.Rooms, deps.Clock),
		Broadcaster: fanout,
		Metrics:     s.metrics,
	})
	connectionManager.dispatcher = s.hub

	health := map[string]Pinger{}
	for name, p := range deps.Health {
		health[name] = p
	}
	if s.publisher != nil {
		health["nats"] = s.publisher
	}

	s.wsHandler = NewWebSocketHandler(connectionManager, NewIdentityVerifier(config.JWTSecret), s.metrics)
	s.stateHandler = NewStateHandler(s.hub)
	s.healthHandler = NewHealthHandler(health)
	return s, nil
}

// Hub returns the room hub, e.g. to relay external room changes into it.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}

// Start runs the service until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting study room realtime service")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.connectionManager.Start(ctx)
	}()
	go func() {
		defer s.wg.Done()
		if err := s.hub.Run(ctx); err != nil {
			log.Error().Err(err).Msg("room hub failed")
		}
	}()

	if s.publisher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.publisher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("JetStream publisher failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("study room realtime service shutting down")
	s.wg.Wait()
	return s.Stop()
}

// Stop releases transports
func (s *Service) Stop() error {
	if s.sse != nil {
		s.sse.Close()
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	}
	log.Info().Msg("study room realtime service stopped")
	return nil
}

// RegisterRoutes registers the realtime HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	s.healthHandler.RegisterRoutes(mux)
	if s.sse != nil {
		mux.Handle("GET /sse", s.sse)
	}
	log.Info().Msg("study room routes registered")
}
