package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrSessionNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSessionNotFound is returned when a device ID has no live session.
	ErrSessionNotFound = errors.New("device: session not found")

	// ErrRecordNotFound is returned when a device ID has no directory record.
	ErrRecordNotFound = errors.New("device: record not found")

	// ErrAnonymousDevice is returned when a device declares no identifier
	// and anonymous registrations are disabled.
	ErrAnonymousDevice = errors.New("device: anonymous device not permitted")
)
