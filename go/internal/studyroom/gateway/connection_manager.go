package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/mcdev12/studyroom/go/internal/studyroom/hub"
	"github.com/rs/zerolog/log"
)

// Dispatcher routes inbound frames of a connection. Both calls come from the
// connection's read goroutine only.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *hub.Session, raw []byte) error
	Leave(ctx context.Context, s *hub.Session) error
}

// Members resolves which connections are currently in a room.
type Members interface {
	Connections(roomID string) []string
}

// ConnectionManager manages WebSocket connections for study rooms
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	dispatcher Dispatcher
	members    Members

	// Event broadcasting
	broadcastCh chan events.Outbound
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// session is owned by readPump
	session *hub.Session
	// room is the last joined room, guarded by Manager.mu
	room string

	// Connection metadata
	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	QueueSize       int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		QueueSize:       1000,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, dispatcher Dispatcher, members Members) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		dispatcher:  dispatcher,
		members:     members,
		broadcastCh: make(chan events.Outbound, config.QueueSize),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case out := <-cm.broadcastCh:
			cm.handleBroadcast(out)
		}
	}
}

// Deliver queues an outbound event. It never blocks the caller.
func (cm *ConnectionManager) Deliver(out events.Outbound) {
	select {
	case cm.broadcastCh <- out:
	default:
		log.Warn().
			Str("room_id", out.RoomID).
			Str("event_type", string(out.Event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity Identity) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:      uuid.New().String(),
		Conn:    conn,
		Send:    make(chan []byte, cm.config.SendBufferSize),
		Manager: cm,
		session: &hub.Session{
			UserID:   identity.UserID,
			Verified: identity.Verified,
		},
		ConnectedAt: time.Now(),
	}
	connection.session.ConnectionID = connection.ID

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", identity.UserID).
		Bool("verified", identity.Verified).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and closes its send channel once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn.ID]; !exists {
		return
	}
	delete(cm.connections, conn.ID)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("room_id", conn.room).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) setRoom(conn *Connection, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn.room = roomID
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		cm.unregisterConnection(c)
	}
}

// handleBroadcast writes one outbound event to its recipients. Room membership is
// resolved at delivery time, so a connection sees every event emitted after its join.
func (cm *ConnectionManager) handleBroadcast(out events.Outbound) {
	if out.Event == nil {
		return
	}

	var ids []string
	if out.Target == events.TargetConnection {
		ids = []string{out.ConnectionID}
	} else {
		ids = cm.members.Connections(out.RoomID)
	}
	if len(ids) == 0 {
		return
	}

	// Marshal the event once
	eventData, err := json.Marshal(out.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	for _, id := range ids {
		conn, ok := cm.connections[id]
		if !ok {
			continue
		}
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		// Connection is slow/dead, close it
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(out.Event.Type)).
		Str("room_id", out.RoomID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// ConnectionStats is a point-in-time view of connected sockets.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		RoomConnections:  make(map[string]int),
	}
	for _, conn := range cm.connections {
		if conn.room != "" {
			stats.RoomConnections[conn.room]++
		}
	}
	stats.ActiveRooms = len(stats.RoomConnections)
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection and leaves the
// room when the socket goes away.
func (c *Connection) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		if err := c.Manager.dispatcher.Leave(context.Background(), c.session); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to leave room")
		}
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(ctx, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes messages received from the client
func (c *Connection) handleClientMessage(ctx context.Context, message []byte) {
	log.Debug().
		Str("connection_id", c.ID).
		Str("user_id", c.session.UserID).
		Int("bytes", len(message)).
		Msg("received client message")

	room := c.session.RoomID
	if err := c.Manager.dispatcher.Dispatch(ctx, c.session, message); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to dispatch client message")
	}
	if c.session.RoomID != room {
		c.Manager.setRoom(c, c.session.RoomID)
	}
}
