package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names. Tags stay low-cardinality: device IDs and gauge
// names only, never payload contents.
const (
	measurementHeartbeat = "heartbeat"
	measurementSessions  = "session_events"
	measurementGauges    = "gauges"
)

// WriteHeartbeatLatency records one round-trip latency sample from a
// device heartbeat. Called from the router's heartbeat path, so it
// enqueues and returns; the batch writer does the network work.
func (c *Client) WriteHeartbeatLatency(deviceID string, latencyMillis int64) {
	c.enqueue(write.NewPoint(
		measurementHeartbeat,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"latency_ms": latencyMillis},
		time.Now(),
	))
}

// WriteSessionEvent records a connect or disconnect transition, giving
// per-device churn over time.
func (c *Client) WriteSessionEvent(deviceID string, event string) {
	c.enqueue(write.NewPoint(
		measurementSessions,
		map[string]string{"device_id": deviceID, "event": event},
		map[string]interface{}{"count": 1},
		time.Now(),
	))
}

// WriteGauge records a broker-wide sampled value such as
// "connected_devices" or "connected_controllers".
func (c *Client) WriteGauge(name string, value int) {
	c.enqueue(write.NewPoint(
		measurementGauges,
		map[string]string{"gauge": name},
		map[string]interface{}{"value": value},
		time.Now(),
	))
}

// WritePoint records a custom measurement outside the fixed helpers.
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.enqueue(write.NewPoint(measurement, tags, fields, time.Now()))
}

// WritePointWithTime is WritePoint with an explicit timestamp, for data
// that arrives late or is backfilled.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	c.enqueue(write.NewPoint(measurement, tags, fields, at))
}

// enqueue hands a point to the batch writer unless the client is closed,
// in which case the point is dropped.
func (c *Client) enqueue(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
