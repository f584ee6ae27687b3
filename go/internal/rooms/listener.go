package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ChangeKind identifies which part of a room record changed outside the realtime layer.
type ChangeKind string

const (
	ChangeSettings     ChangeKind = "settings"
	ChangeAnnouncement ChangeKind = "announcement"
)

// Change is the payload of a study_room_changes notification.
type Change struct {
	RoomID string     `json:"roomId"`
	Kind   ChangeKind `json:"kind"`
}

// ChangeHandler reacts to a room record change.
type ChangeHandler func(ctx context.Context, change Change) error

type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name to LISTEN on
	PingInterval  time.Duration // How often to ping the listener connection
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "study_room_changes",
		PingInterval:  90 * time.Second,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
	}
}

// Listener relays Postgres notifications about room records to a handler.
type Listener struct {
	listener *pq.Listener
	handler  ChangeHandler
	cfg      ListenerConfig
	clock    clockwork.Clock
}

// NewListener opens a LISTEN connection on cfg.NotifyChannel.
func NewListener(cfg ListenerConfig, handler ChangeHandler) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for room changes")

	return &Listener{listener: l, handler: handler, cfg: cfg, clock: clockwork.NewRealClock()}, nil
}

// Start blocks relaying notifications until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	l.relay(ctx, l.listener.Notify, l.listener.Ping)
	log.Info().Msg("room change listener shutting down")
	return l.Stop()
}

// relay hands every notification to the handler and pings the connection on an interval.
func (l *Listener) relay(ctx context.Context, notify <-chan *pq.Notification, ping func() error) {
	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case note := <-notify:
			if note == nil {
				// nil notification means the connection was re-established
				log.Info().Msg("room change listener reconnected")
				continue
			}
			if err := l.handle(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle room change")
			}
		case <-pingTicker.Chan():
			if err := ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Stop closes the LISTEN connection.
func (l *Listener) Stop() error {
	return l.listener.Close()
}

func (l *Listener) handle(ctx context.Context, extra string) error {
	change, err := ParseChange(extra)
	if err != nil {
		return err
	}
	log.Debug().
		Str("room_id", change.RoomID).
		Str("kind", string(change.Kind)).
		Msg("room change notification")
	return l.handler(ctx, change)
}

// ParseChange decodes a notification payload.
func ParseChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("invalid change payload: %w", err)
	}
	if c.RoomID == "" {
		return Change{}, fmt.Errorf("invalid change payload: missing roomId")
	}
	switch c.Kind {
	case ChangeSettings, ChangeAnnouncement:
	default:
		return Change{}, fmt.Errorf("invalid change payload: unknown kind %q", c.Kind)
	}
	return c, nil
}
