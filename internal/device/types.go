package device

import "time"

// Role classifies a connection endpoint.
//
// Devices are monitored endpoints that stream media and telemetry into the
// broker. Controllers are operator dashboards that watch devices and issue
// commands. Only devices occupy registry entries.
type Role string

// Role constants.
const (
	RoleDevice     Role = "device"
	RoleController Role = "controller"
)

// ConnRef is an opaque reference to a live transport connection.
//
// The registry compares references by identity to guard against stale
// disconnect notifications; it never inspects the transport itself.
// Implementations must be comparable (pointer types are).
type ConnRef interface {
	// SendEvent queues an event for delivery. Implementations must never
	// block; on a full or closed buffer the event is dropped.
	SendEvent(event string, data any)

	// Close tears down the underlying connection. Called when a newer
	// registration supersedes this one.
	Close()
}

// Identity is the resolved identity of an accepted connection.
//
// For controllers only Role is meaningful. For devices DeviceID is the
// stable registry key and DisplayName the human-readable label.
type Identity struct {
	Role        Role
	DeviceID    string
	DisplayName string

	// GeneratedID marks a device that declared no identifier and was
	// assigned a surrogate one at accept time.
	GeneratedID bool
}

// Session is a live device registration.
//
// The JSON shape doubles as the roster entry pushed to controllers in
// device_list_update events.
type Session struct {
	ID          string     `json:"deviceId"`
	Name        string     `json:"deviceName"`
	Conn        ConnRef    `json:"-"`
	Anonymous   bool       `json:"-"`
	ConnectedAt time.Time  `json:"connectedAt"`
	LastSeen    *time.Time `json:"lastSeen"`
}

// clone returns an independent copy so registry internals never leak.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.LastSeen != nil {
		ls := *s.LastSeen
		cpy.LastSeen = &ls
	}
	return &cpy
}

// Record is a persisted device directory entry.
//
// The directory remembers every device identity that has ever registered,
// surviving broker restarts. Live connection state stays in the Registry.
type Record struct {
	ID              string     `json:"deviceId"`
	Name            string     `json:"deviceName"`
	FirstSeen       time.Time  `json:"firstSeen"`
	LastConnectedAt time.Time  `json:"lastConnectedAt"`
	LastSeen        *time.Time `json:"lastSeen,omitempty"`
	SessionCount    int        `json:"sessionCount"`
}
