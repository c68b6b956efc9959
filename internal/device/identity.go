package device

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Identity resolution constants.
const (
	// DefaultDeviceName labels devices that declare no deviceName.
	DefaultDeviceName = "Unknown Device"

	// maxNameLength bounds declared display names. Longer names are
	// truncated rather than rejected; the broker stays permissive.
	maxNameLength = 100

	// surrogatePrefix marks generated device identifiers.
	surrogatePrefix = "anon-"
)

// ResolveIdentity classifies a connection from its query parameters.
//
// A connection is a device if and only if it declares role=device. Every
// other value, including an absent role parameter, yields a controller.
// There is no third role and no rejection path: unrecognised roles fall
// through to controller.
//
// For devices, deviceId is the stable registry key and deviceName the
// display label (defaulted when absent). A device that declares no
// deviceId receives a generated surrogate identifier and is flagged
// GeneratedID so the caller can decide whether to admit it.
//
// Resolution is pure classification; no state is touched.
func ResolveIdentity(q url.Values) Identity {
	if q.Get("role") != string(RoleDevice) {
		return Identity{Role: RoleController}
	}

	ident := Identity{
		Role:        RoleDevice,
		DeviceID:    strings.TrimSpace(q.Get("deviceId")),
		DisplayName: sanitiseName(q.Get("deviceName")),
	}

	if ident.DeviceID == "" {
		ident.DeviceID = surrogatePrefix + GenerateID()
		ident.GeneratedID = true
	}

	return ident
}

// sanitiseName normalises a declared display name.
func sanitiseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDeviceName
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// GenerateID creates a new UUID string.
func GenerateID() string {
	return uuid.New().String()
}
