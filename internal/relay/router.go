package relay

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/farsight-labs/farsight-core/internal/device"
)

// Logger defines the logging interface used by the Router.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Peer is a live connection participating in event routing.
//
// SendEvent (via device.ConnRef) must never block: transport
// implementations queue to a buffered channel and drop on overflow, so a
// slow or dead peer can never stall dispatch for the others. Peers are
// compared by identity.
type Peer interface {
	device.ConnRef

	// ID returns the resolved device identifier. Controllers without a
	// declared identity return "".
	ID() string

	// Role reports whether the peer is a device or a controller.
	Role() device.Role
}

// TelemetrySink receives routing telemetry measurements.
// Implementations must not block; the router calls these inline.
type TelemetrySink interface {
	WriteHeartbeatLatency(deviceID string, latencyMillis int64)
	WriteSessionEvent(deviceID, event string)
}

// PresencePublisher mirrors registry membership onto an external bus.
// Implementations must not block; the router calls these inline.
type PresencePublisher interface {
	PublishPresence(deviceID string, online bool)
	PublishRoster(roster []device.Session)
}

// Router dispatches inbound events across the connected peer set.
//
// Every event follows a fixed per-name policy: unicast to a registry
// target, broadcast to every peer except the sender, or broadcast to all
// peers including the sender. The router owns the peer set and the
// membership announcements; the device registry remains the single source
// of truth for which identity maps to which connection.
//
// Per-connection event ordering is preserved because each connection's
// read loop calls HandleEvent sequentially. Events from different
// connections are dispatched concurrently with no ordering guarantee.
type Router struct {
	registry  *device.Registry
	logger    Logger
	telemetry TelemetrySink
	presence  PresencePublisher

	// now is the router's clock. Tests substitute a fixed instant.
	now func() time.Time

	mu    sync.RWMutex
	peers map[Peer]struct{}

	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewRouter creates a router over the given session registry.
func NewRouter(registry *device.Registry) *Router {
	return &Router{
		registry: registry,
		logger:   noopLogger{},
		now:      time.Now,
		peers:    make(map[Peer]struct{}),
	}
}

// SetLogger sets the logger for the router.
func (rt *Router) SetLogger(logger Logger) {
	rt.logger = logger
}

// SetTelemetrySink attaches an optional telemetry sink.
func (rt *Router) SetTelemetrySink(sink TelemetrySink) {
	rt.telemetry = sink
}

// SetPresencePublisher attaches an optional presence publisher.
func (rt *Router) SetPresencePublisher(pub PresencePublisher) {
	rt.presence = pub
}

// Attach adds a peer to the routing set.
//
// Device peers are registered under their resolved identity; when that
// displaces an older connection the superseded ConnRef is returned so the
// caller can close it per policy. Controller peers immediately receive a
// roster snapshot addressed only to them. Every device attach announces
// the updated roster to all controllers.
func (rt *Router) Attach(peer Peer, ident device.Identity) (superseded device.ConnRef) {
	rt.mu.Lock()
	rt.peers[peer] = struct{}{}
	rt.mu.Unlock()

	switch ident.Role {
	case device.RoleDevice:
		superseded = rt.registry.Register(ident, peer)
		rt.announceRoster()
		if rt.presence != nil {
			rt.presence.PublishPresence(ident.DeviceID, true)
		}
		if rt.telemetry != nil {
			rt.telemetry.WriteSessionEvent(ident.DeviceID, "connect")
		}
	case device.RoleController:
		peer.SendEvent(EventDeviceListUpdate, rt.registry.Snapshot())
		rt.delivered.Add(1)
	}
	return superseded
}

// Detach removes a peer from the routing set.
//
// A device peer is unregistered only while it still owns its registry
// entry; a late disconnect from a superseded connection leaves the newer
// session untouched and announces nothing. Returns true when a registry
// entry was actually removed.
func (rt *Router) Detach(peer Peer) bool {
	rt.mu.Lock()
	_, existed := rt.peers[peer]
	delete(rt.peers, peer)
	rt.mu.Unlock()
	if !existed {
		return false
	}

	if peer.Role() != device.RoleDevice {
		return false
	}
	if !rt.registry.Unregister(peer.ID(), peer) {
		return false
	}

	rt.announceRoster()
	if rt.presence != nil {
		rt.presence.PublishPresence(peer.ID(), false)
	}
	if rt.telemetry != nil {
		rt.telemetry.WriteSessionEvent(peer.ID(), "disconnect")
	}
	return true
}

// HandleEvent dispatches one inbound event according to the routing table.
//
// No failure here ever surfaces to the sending peer: malformed payloads
// fall back to opaque pass-through, unknown unicast targets are a silent
// no-op, and unknown event names are dropped with a debug log.
func (rt *Router) HandleEvent(sender Peer, event string, data json.RawMessage) {
	rt.received.Add(1)

	if command, ok := CommandFor(event); ok {
		rt.routeCommand(sender, command, data)
		return
	}

	switch event {
	case EventAudioStream:
		rt.broadcastAll(EventAudioData, deviceWrapped{DeviceID: sender.ID(), Data: data})
	case EventVideoFrame:
		rt.broadcastAll(EventVideoData, deviceWrapped{DeviceID: sender.ID(), Data: data})
	case EventWebRTCOffer:
		rt.routeOffer(sender, data)
	case EventWebRTCAnswer:
		rt.broadcastExcept(sender, EventWebRTCAnswer, data)
	case EventWebRTCICECandidate:
		rt.routeCandidate(sender, data)
	case EventCameraReady, EventCameraStatus, EventCurrentConfig, EventStorageStats:
		rt.broadcastExcept(sender, event, data)
	case EventPermissionReport:
		rt.routePermissionReport(sender, data)
	case EventHeartbeat:
		rt.handleHeartbeat(sender, data)
	case EventLog:
		rt.routeLog(sender, data)
	default:
		rt.dropped.Add(1)
		rt.logger.Debug("dropping unknown event", "event", event, "from", sender.ID())
	}
}

// deviceWrapped attributes a relayed payload to its originating device.
type deviceWrapped struct {
	DeviceID string          `json:"deviceId"`
	Data     json.RawMessage `json:"data"`
}

// routeCommand delivers a renamed dashboard command.
//
// The payload is forwarded exactly as received; only the target address
// is read from it. A payload naming no target broadcasts to every other
// peer for compatibility with single-device deployments.
func (rt *Router) routeCommand(sender Peer, command string, data json.RawMessage) {
	if obj, ok := decodeObject(data); ok {
		if target := targetAddress(obj); target != "" {
			rt.unicast(target, command, data)
			return
		}
	}
	rt.broadcastExcept(sender, command, data)
}

// routeOffer relays an SDP offer. Parsed payloads are re-serialised from
// the decoded form, which also unwraps double-encoded offers; anything
// unparseable passes through raw to every other peer.
func (rt *Router) routeOffer(sender Peer, data json.RawMessage) {
	obj, ok := decodeObject(data)
	if !ok {
		rt.broadcastExcept(sender, EventWebRTCOffer, data)
		return
	}
	if target := targetAddress(obj); target != "" {
		rt.unicast(target, EventWebRTCOffer, obj)
		return
	}
	rt.broadcastExcept(sender, EventWebRTCOffer, obj)
}

// routeCandidate relays an ICE candidate. Targeted delivery sends only
// the candidate sub-field, re-encoded as a JSON string the way device
// agents expect; every fallback path forwards the original payload
// unmodified to the other peers.
func (rt *Router) routeCandidate(sender Peer, data json.RawMessage) {
	if obj, ok := decodeObject(data); ok {
		if target := targetAddress(obj); target != "" {
			if encoded, err := json.Marshal(obj["candidate"]); err == nil {
				rt.unicast(target, EventWebRTCICECandidate, string(encoded))
				return
			}
		}
	}
	rt.broadcastExcept(sender, EventWebRTCICECandidate, data)
}

// routePermissionReport stamps the sender's device identity onto the
// report and broadcasts it to every peer, the sender included. Object
// payloads gain a deviceId field in place; anything else is wrapped.
func (rt *Router) routePermissionReport(sender Peer, data json.RawMessage) {
	if obj, ok := decodeObject(data); ok {
		obj["deviceId"] = sender.ID()
		rt.broadcastAll(EventPermissionReport, obj)
		return
	}
	rt.broadcastAll(EventPermissionReport, deviceWrapped{DeviceID: sender.ID(), Data: data})
}

// pongResponse answers a heartbeat. All times are milliseconds since the
// Unix epoch; latency is the one-way receive delay as far as the two
// clocks agree.
type pongResponse struct {
	ServerTime int64 `json:"serverTime"`
	ClientTime int64 `json:"clientTime"`
	Latency    int64 `json:"latency"`
}

// handleHeartbeat replies pong_response to the sender alone and records
// liveness for registered devices. This is the only event that never
// reaches any other peer.
func (rt *Router) handleHeartbeat(sender Peer, data json.RawMessage) {
	now := rt.now().UTC()
	serverMillis := now.UnixMilli()

	var hb struct {
		Timestamp float64 `json:"timestamp"`
	}
	//nolint:errcheck // Absent or malformed timestamps leave the zero value
	json.Unmarshal(data, &hb)
	clientMillis := int64(hb.Timestamp)

	var latency int64
	if clientMillis > 0 {
		latency = serverMillis - clientMillis
		if latency < 0 {
			// Client clock runs ahead of ours; report zero rather
			// than a negative delay.
			latency = 0
		}
	}

	sender.SendEvent(EventPongResponse, pongResponse{
		ServerTime: serverMillis,
		ClientTime: clientMillis,
		Latency:    latency,
	})
	rt.delivered.Add(1)

	if sender.Role() == device.RoleDevice {
		rt.registry.TouchLastSeen(sender.ID(), now)
		if rt.telemetry != nil {
			rt.telemetry.WriteHeartbeatLatency(sender.ID(), latency)
		}
	}
}

// routeLog relays an agent log line to every peer as server_log, prefixed
// with the originating device identity. Non-string payloads are compacted
// to one line first.
func (rt *Router) routeLog(sender Peer, data json.RawMessage) {
	source := sender.ID()
	if source == "" {
		source = "unknown"
	}

	line, ok := decodeString(data)
	if !ok {
		line = compactJSON(data)
	}
	rt.broadcastAll(EventServerLog, "["+source+"] "+line)
}

// unicast delivers an event to the connection registered for a device ID.
// Unknown targets are a silent no-op; the protocol has no acknowledgement
// channel to report them on.
func (rt *Router) unicast(target, event string, data any) {
	session, ok := rt.registry.Lookup(target)
	if !ok {
		rt.dropped.Add(1)
		rt.logger.Debug("unicast target not connected", "event", event, "target", target)
		return
	}
	session.Conn.SendEvent(event, data)
	rt.delivered.Add(1)
}

// broadcastAll sends an event to every peer, the sender included.
func (rt *Router) broadcastAll(event string, data any) {
	for _, p := range rt.peerList() {
		p.SendEvent(event, data)
		rt.delivered.Add(1)
	}
}

// broadcastExcept sends an event to every peer but the sender.
func (rt *Router) broadcastExcept(sender Peer, event string, data any) {
	for _, p := range rt.peerList() {
		if p == sender {
			continue
		}
		p.SendEvent(event, data)
		rt.delivered.Add(1)
	}
}

// announceRoster pushes the current registry snapshot to every controller
// and mirrors it to the presence publisher when one is attached.
func (rt *Router) announceRoster() {
	roster := rt.registry.Snapshot()
	for _, p := range rt.peerList() {
		if p.Role() != device.RoleController {
			continue
		}
		p.SendEvent(EventDeviceListUpdate, roster)
		rt.delivered.Add(1)
	}
	if rt.presence != nil {
		rt.presence.PublishRoster(roster)
	}
}

// peerList snapshots the peer set under the read lock, releasing it
// before any sends so a peer's send path can never interleave with
// membership changes while the lock is held.
func (rt *Router) peerList() []Peer {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	out := make([]Peer, 0, len(rt.peers))
	for p := range rt.peers {
		out = append(out, p)
	}
	return out
}

// PeerCount returns the number of attached connections of both roles.
func (rt *Router) PeerCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.peers)
}

// RouterStats holds dispatch counters for the metrics endpoint.
type RouterStats struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsDropped   uint64 `json:"events_dropped"`
	Peers           int    `json:"peers"`
	Controllers     int    `json:"controllers"`
	Devices         int    `json:"devices"`
}

// Stats returns current routing statistics.
func (rt *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsReceived:  rt.received.Load(),
		EventsDelivered: rt.delivered.Load(),
		EventsDropped:   rt.dropped.Load(),
	}

	rt.mu.RLock()
	defer rt.mu.RUnlock()
	stats.Peers = len(rt.peers)
	for p := range rt.peers {
		if p.Role() == device.RoleDevice {
			stats.Devices++
		} else {
			stats.Controllers++
		}
	}
	return stats
}
