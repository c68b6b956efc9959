package relay

import "errors"

// Domain errors for the relay package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, relay.ErrBadEnvelope) {
//	    // drop the frame
//	}
var (
	// ErrBadEnvelope is returned when a wire frame is not valid JSON or
	// carries no event name. Such frames are dropped by the caller; the
	// sending peer is never notified.
	ErrBadEnvelope = errors.New("relay: malformed event envelope")
)
