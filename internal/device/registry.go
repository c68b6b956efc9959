package device

import (
	"sort"
	"sync"
	"time"
)

// Logger is the subset of logging.Logger the registry needs. A no-op
// implementation stands in until SetLogger is called, so registry
// methods never nil-check.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry tracks live device sessions keyed by device identifier.
//
// It is the broker's source of truth for which devices are currently
// connected. Entries are created on registration and removed only when the
// owning connection disconnects; there is no timeout-based eviction.
//
// Invariants:
//   - At most one session per device ID. A re-registration under an
//     existing ID replaces the entry (newest connection wins).
//   - Unregister removes an entry only when the caller still owns it,
//     so a late disconnect from a replaced connection cannot evict the
//     replacement.
//   - Controllers never appear in the registry.
//
// All public methods are thread-safe. Reads return copies; callers can
// never mutate registry state through a returned Session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   noopLogger{},
	}
}

// SetLogger replaces the no-op logger. Call before the registry starts
// taking registrations.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register inserts or replaces the session for ident.DeviceID.
//
// When the ID is already registered the previous entry is unconditionally
// overwritten and its connection returned so the caller can close it. A nil
// return means no session was displaced. Registering the same connection
// again (metadata refresh) displaces nothing.
func (r *Registry) Register(ident Identity, conn ConnRef) (prev ConnRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[ident.DeviceID]; ok && existing.Conn != conn {
		prev = existing.Conn
	}

	r.sessions[ident.DeviceID] = &Session{
		ID:          ident.DeviceID,
		Name:        ident.DisplayName,
		Conn:        conn,
		Anonymous:   ident.GeneratedID,
		ConnectedAt: time.Now().UTC(),
	}

	if prev != nil {
		r.logger.Warn("device re-registered, superseding previous connection",
			"device_id", ident.DeviceID, "name", ident.DisplayName)
	} else {
		r.logger.Info("device registered",
			"device_id", ident.DeviceID, "name", ident.DisplayName)
	}
	return prev
}

// Unregister removes the session for id, but only if conn still owns it.
//
// Returns true when an entry was removed. A false return means either the
// ID was unknown or the entry now belongs to a newer connection; both are
// normal during reconnect races and require no action from the caller.
func (r *Registry) Unregister(id string, conn ConnRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sessions[id]
	if !ok {
		return false
	}
	if existing.Conn != conn {
		r.logger.Debug("stale disconnect ignored", "device_id", id)
		return false
	}

	delete(r.sessions, id)
	r.logger.Info("device unregistered", "device_id", id)
	return true
}

// Lookup retrieves the session for a device ID.
// The returned session is a copy; callers can safely retain it.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// FindByConn returns the device ID registered for a connection.
//
// A linear scan is deliberate: the session count is bounded by connected
// devices and the scan avoids maintaining a reverse index that the
// overwrite semantics of Register would complicate.
func (r *Registry) FindByConn(conn ConnRef) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, s := range r.sessions {
		if s.Conn == conn {
			return id, true
		}
	}
	return "", false
}

// Snapshot returns a copy of every live session, ordered by device ID.
// Consumers treat the result as a set; the ordering only makes output
// deterministic.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TouchLastSeen records liveness for a device at the given instant.
// Unknown IDs are ignored; liveness from controllers carries no state.
func (r *Registry) TouchLastSeen(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	at = at.UTC()
	s.LastSeen = &at
}

// Count returns the number of live device sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats holds registry counters for the metrics endpoint.
type Stats struct {
	Sessions  int `json:"sessions"`
	Anonymous int `json:"anonymous"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Sessions: len(r.sessions)}
	for _, s := range r.sessions {
		if s.Anonymous {
			stats.Anonymous++
		}
	}
	return stats
}
