package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/farsight-labs/farsight-core/internal/device"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/config"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/logging"
	"github.com/farsight-labs/farsight-core/internal/relay"
)

// directoryWriteTimeout bounds advisory writes to the device directory so
// a wedged database can never hold a connection goroutine indefinitely.
const directoryWriteTimeout = 5 * time.Second

// wsBufferSize is the gorilla read/write buffer size per connection.
const wsBufferSize = 1024

// Hub tracks the transport lifecycle of every WebSocket connection.
//
// The hub owns connection teardown: it is the only place that closes a
// client's send channel, and it closes every remaining connection on
// shutdown. Routing decisions live in the relay router; the hub never
// inspects frames.
type Hub struct {
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one WebSocket connection, device or controller.
//
// It implements relay.Peer: outbound events are serialised once and
// queued to the write pump, so router dispatch never blocks on a slow
// connection.
type WSClient struct {
	srv  *Server
	conn *websocket.Conn
	send chan []byte

	// ident is fixed at accept time from the connection query parameters.
	ident device.Identity
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin enforcement happens in the CORS middleware, before the
		// request reaches the upgrade.
		return true
	},
}

// NewHub creates an empty hub. Connections register as they upgrade.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then tears down every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "role", client.ident.Role, "clients", h.ClientCount())
}

// Unregister removes a client. The send channel is closed only by the
// call that actually removed the client from the map, so a racing
// Unregister and shutdown cannot double-close it.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, owned := h.clients[client]
	if owned {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	if owned {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "role", client.ident.Role, "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll swaps the client map out under the lock, then closes the
// evicted connections. Closing the send channels lets the write pumps
// exit; closing the conns unblocks the read pumps.
func (h *Hub) closeAll() {
	h.mu.Lock()
	evicted := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for client := range evicted {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// handleWebSocket upgrades the HTTP connection and attaches it to the
// relay router.
//
// The connection's identity comes entirely from its query parameters:
// role=device marks a device agent (deviceId, deviceName), anything else
// is a controller dashboard. Devices that declare no deviceId receive a
// generated surrogate identifier, or a 400 before upgrade when anonymous
// devices are disabled. A device reconnecting under an identifier that is
// already registered displaces the older connection; the superseded
// connection is closed when registry.close_superseded is set.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ident := device.ResolveIdentity(r.URL.Query())
	if ident.Role == device.RoleDevice && ident.GeneratedID && !s.regCfg.AllowAnonymousDevices {
		writeBadRequest(w, device.ErrAnonymousDevice.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		srv:   s,
		conn:  conn,
		send:  make(chan []byte, s.wsCfg.SendBuffer),
		ident: ident,
	}

	s.hub.Register(client)

	superseded := s.router.Attach(client, ident)
	if superseded != nil {
		s.logger.Info("device reconnected, superseding previous connection",
			"device_id", ident.DeviceID,
			"closing_previous", s.regCfg.CloseSuperseded,
		)
		if s.regCfg.CloseSuperseded {
			superseded.Close()
		}
	}

	if ident.Role == device.RoleDevice {
		s.logger.Info("device registered",
			"device_id", ident.DeviceID,
			"device_name", ident.DisplayName,
			"generated_id", ident.GeneratedID,
		)
		s.recordRegistration(ident)
	}

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads frames from the WebSocket connection and feeds them to
// the relay router. It owns the detach path: when the read loop exits for
// any reason the client is removed from the hub and the router, and a
// device's directory row is stamped with its final last-seen time.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.srv.hub.Unregister(c)
		if c.srv.router.Detach(c) {
			c.srv.recordSeen(c.ident)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))

	// A connection is dead when a full ping interval plus the pong grace
	// passes without any traffic.
	idleLimit := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // deadline failures surface as read errors
	c.conn.SetReadDeadline(time.Now().Add(idleLimit))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleLimit))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.logger.Warn("websocket read error", "device_id", c.ident.DeviceID, "error", err)
			} else {
				c.srv.logger.Debug("websocket closed", "device_id", c.ident.DeviceID, "error", err)
			}
			return
		}
		// Any client frame counts as liveness, even when the agent never
		// answers protocol-level pings.
		//nolint:errcheck // deadline failures surface as read errors
		c.conn.SetReadDeadline(time.Now().Add(idleLimit))

		env, err := relay.ParseEnvelope(message)
		if err != nil {
			// A malformed frame never tears down the connection.
			c.srv.logger.Debug("discarding malformed frame", "device_id", c.ident.DeviceID, "error", err)
			continue
		}

		if env.Event == relay.EventHeartbeat && c.ident.Role == device.RoleDevice {
			c.srv.recordSeen(c.ident)
		}
		c.srv.router.HandleEvent(c, env.Event, env.Data)
	}
}

// write sends a single frame with a bounded deadline.
func (c *WSClient) write(messageType int, data []byte, wait time.Duration) error {
	//nolint:errcheck // a failed deadline surfaces as a write error
	c.conn.SetWriteDeadline(time.Now().Add(wait))
	return c.conn.WriteMessage(messageType, data)
}

// writePump drains the send channel to the connection and keeps the
// client alive with periodic pings. It exits when the channel closes
// (hub teardown) or any write fails.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	wait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // closing handshake on a connection being discarded
				c.write(websocket.CloseMessage, nil, wait)
				return
			}
			if err := c.write(websocket.TextMessage, message, wait); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil, wait); err != nil {
				return
			}
		}
	}
}

// SendEvent queues an event frame for delivery to this connection.
// Routes through trySend so router dispatch never blocks.
func (c *WSClient) SendEvent(event string, data any) {
	payload, err := relay.MarshalEvent(event, data)
	if err != nil {
		c.srv.logger.Error("failed to marshal outbound event", "event", event, "error", err)
		return
	}
	c.trySend(payload)
}

// Close tears down the underlying connection. The read pump notices and
// runs the full detach path.
func (c *WSClient) Close() {
	//nolint:errcheck // Best-effort close of a connection being discarded
	c.conn.Close()
}

// ID returns the resolved device identifier; empty for controllers.
func (c *WSClient) ID() string {
	return c.ident.DeviceID
}

// Role reports whether this connection is a device or a controller.
func (c *WSClient) Role() device.Role {
	return c.ident.Role
}

// trySend enqueues data without blocking. A full buffer drops the frame
// (slow consumer), and a channel closed mid-broadcast is absorbed via
// recover rather than locking every send.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel during teardown
	}()

	select {
	case c.send <- data:
	default:
	}
}

// recordRegistration upserts a device into the persistent directory.
// Directory writes are advisory: failures are logged, never surfaced to
// the connection, and routing proceeds regardless.
func (s *Server) recordRegistration(ident device.Identity) {
	if s.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryWriteTimeout)
	defer cancel()

	if err := s.directory.Upsert(ctx, ident.DeviceID, ident.DisplayName, time.Now().UTC()); err != nil {
		s.logger.Warn("device directory upsert failed", "device_id", ident.DeviceID, "error", err)
	}
}

// recordSeen stamps a device's directory row with the current time.
// A missing row (directory entry deleted mid-session) is not an error.
func (s *Server) recordSeen(ident device.Identity) {
	if s.directory == nil || ident.Role != device.RoleDevice {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryWriteTimeout)
	defer cancel()

	err := s.directory.MarkSeen(ctx, ident.DeviceID, time.Now().UTC())
	if err != nil && !errors.Is(err, device.ErrRecordNotFound) {
		s.logger.Warn("device directory update failed", "device_id", ident.DeviceID, "error", err)
	}
}
