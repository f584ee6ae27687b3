package syncagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/rs/zerolog/log"
)

// Renderer shows derived state to the user.
type Renderer interface {
	Render(d Display)
	Notify(roomID string)
	Status(msg string)
}

// Config for a room watcher.
type Config struct {
	URL          string // websocket endpoint, e.g. ws://localhost:8080/ws/room
	Token        string // optional identity token
	RoomID       string
	User         events.JoinUserPayload
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:          "ws://localhost:8080/ws/room",
		TickInterval: 250 * time.Millisecond,
	}
}

// Agent keeps a client's view of one room's timer in step with the server.
type Agent struct {
	cfg      Config
	clock    clockwork.Clock
	renderer Renderer
	rec      *Reconciler
	dialer   *websocket.Dialer

	writeMu sync.Mutex
	conn    *websocket.Conn

	ticker clockwork.Ticker
}

func New(cfg Config, clock clockwork.Clock, renderer Renderer) *Agent {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Agent{
		cfg:      cfg,
		clock:    clock,
		renderer: renderer,
		rec:      NewReconciler(cfg.RoomID),
		dialer:   websocket.DefaultDialer,
	}
}

// Run connects, joins the room, asks for a snapshot and keeps rendering until ctx is done
// or the connection drops.
func (a *Agent) Run(ctx context.Context) error {
	target, err := a.endpoint()
	if err != nil {
		return err
	}

	conn, _, err := a.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.URL, err)
	}
	a.writeMu.Lock()
	a.conn = conn
	a.writeMu.Unlock()
	defer conn.Close()

	if err := a.Send(events.EventJoin, events.JoinPayload{RoomID: a.cfg.RoomID, User: a.cfg.User}); err != nil {
		return err
	}
	if err := a.Send(events.EventTimerRequest, events.RoomPayload{RoomID: a.cfg.RoomID}); err != nil {
		return err
	}

	log.Info().Str("room_id", a.cfg.RoomID).Str("url", a.cfg.URL).Msg("sync agent connected")

	frames := make(chan events.RoomEvent, 16)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go a.readLoop(conn, frames, readErr, done)

	defer a.stopTicker()
	for {
		select {
		case <-ctx.Done():
			a.writeMu.Lock()
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			a.writeMu.Unlock()
			return nil
		case err := <-readErr:
			return err
		case ev := <-frames:
			a.handle(ev)
		case <-a.tick():
			a.renderer.Render(a.rec.Display(a.clock.Now()))
		}
	}
}

// Send writes one client frame. Safe for concurrent use once Run has connected.
func (a *Agent) Send(eventType events.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	frame, err := json.Marshal(events.ClientMessage{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if a.conn == nil {
		return errors.New("not connected")
	}
	return a.conn.WriteMessage(websocket.TextMessage, frame)
}

// Control sends a host timer command for the agent's room.
func (a *Agent) Control(eventType events.EventType, mode models.TimerMode) error {
	return a.Send(eventType, events.TimerControlPayload{RoomID: a.cfg.RoomID, Mode: mode})
}

func (a *Agent) endpoint() (string, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if a.cfg.Token != "" {
		q := u.Query()
		q.Set("token", a.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (a *Agent) readLoop(conn *websocket.Conn, frames chan<- events.RoomEvent, errs chan<- error, done <-chan struct{}) {
	for {
		var ev events.RoomEvent
		if err := conn.ReadJSON(&ev); err != nil {
			errs <- fmt.Errorf("read: %w", err)
			return
		}
		select {
		case frames <- ev:
		case <-done:
			return
		}
	}
}

func (a *Agent) handle(ev events.RoomEvent) {
	switch ev.Type {
	case events.EventTimerSync:
		var snap models.TimerSnapshot
		if err := json.Unmarshal(ev.Data, &snap); err != nil {
			log.Warn().Err(err).Msg("bad timer snapshot")
			return
		}
		if !a.rec.Apply(snap) {
			return
		}
		if a.rec.Running() {
			a.startTicker()
		} else {
			a.stopTicker()
		}
		a.renderer.Render(a.rec.Display(a.clock.Now()))

	case events.EventTimerFinished:
		var p events.FinishedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			log.Warn().Err(err).Msg("bad finished payload")
			return
		}
		if a.rec.Finished(p.RoomID) {
			a.renderer.Notify(p.RoomID)
		}

	case events.EventTimerError, events.EventAnnouncementError:
		var p events.ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err == nil {
			a.renderer.Status(p.Message)
		}

	case events.EventPresenceUpdate:
		var roster models.Roster
		if err := json.Unmarshal(ev.Data, &roster); err == nil && roster.RoomID == a.cfg.RoomID {
			a.renderer.Status(fmt.Sprintf("%d in room", roster.Count))
		}

	default:
		log.Debug().Str("event_type", string(ev.Type)).Msg("ignoring event")
	}
}

func (a *Agent) startTicker() {
	if a.ticker == nil {
		a.ticker = a.clock.NewTicker(a.cfg.TickInterval)
	}
}

func (a *Agent) stopTicker() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
}

// tick is nil while stopped so the select blocks on it forever.
func (a *Agent) tick() <-chan time.Time {
	if a.ticker == nil {
		return nil
	}
	return a.ticker.Chan()
}
