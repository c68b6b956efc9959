package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/farsight-labs/farsight-core/internal/device"
	"github.com/farsight-labs/farsight-core/internal/relay"
)

const bytesPerMB = 1 << 20

// SystemMetrics is the /metrics response. Optional integrations report
// zero values when disabled, so the shape is stable across deployments.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Router        relay.RouterStats `json:"router"`
	Registry      device.Stats      `json:"registry"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	InfluxDB      InfluxDBMetrics   `json:"influxdb"`
	Database      DatabaseMetrics   `json:"database"`
}

// RuntimeMetrics reports Go runtime counters sampled at request time.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics reports hub connection counts.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics reports presence bridge connectivity.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// InfluxDBMetrics reports telemetry sink connectivity.
type InfluxDBMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains connection pool statistics. With the pool
// capped at one connection, WaitCount climbing is the signal that
// directory writes are contending.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// collectRuntime snapshots the Go runtime counters.
func collectRuntime() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
		MemoryTotalMB: float64(mem.TotalAlloc) / bytesPerMB,
		NumGC:         mem.NumGC,
	}
}

// handleMetrics assembles the full metrics snapshot. Collaborators that
// are nil (disabled integrations) contribute their zero value.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       collectRuntime(),
		Router:        s.router.Stats(),
		Registry:      s.sessions.GetStats(),
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}
	if s.influx != nil {
		metrics.InfluxDB.Connected = s.influx.IsConnected()
	}
	if s.db != nil {
		pool := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: pool.OpenConnections,
			InUse:           pool.InUse,
			Idle:            pool.Idle,
			WaitCount:       pool.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
