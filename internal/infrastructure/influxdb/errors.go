package influxdb

import "errors"

var (
	// ErrNotConnected is returned by HealthCheck once the client has
	// been closed. Write methods drop points instead of erroring.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps failures of the initial ping in Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when the telemetry integration
	// is switched off in config. Callers treat it as "run without one".
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
