// Package api implements the HTTP and WebSocket surface of Farsight Core.
//
// This package provides:
//   - The WebSocket endpoint that devices and controller dashboards
//     connect to, bridging each connection into the relay router
//   - REST endpoints for live sessions, the persisted device directory,
//     health, and metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - TLS support for production deployments
//
// # Architecture
//
// The server owns the transport half of the broker. Each accepted
// WebSocket connection is classified by the device package's identity
// resolver, wrapped in a client with buffered read/write pumps, and
// attached to the relay router, which makes every routing decision from
// there on. The api package never interprets event payloads; it moves
// frames and enforces transport limits.
//
//	Device agents ─┐
//	               ├─ WebSocket ─ Hub/WSClient ─ relay.Router ─ device.Registry
//	Dashboards ────┘
//
// # Graceful Degradation
//
// The directory REST endpoints disappear when the SQLite directory is
// disabled, and the health/metrics endpoints report optional
// collaborators (MQTT, InfluxDB) as disabled rather than failing.
// Signalling never depends on any of them.
package api
