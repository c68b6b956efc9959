package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds collaborator probes during a health request.
const healthCheckTimeout = 2 * time.Second

// HealthStatus is the health endpoint response.
type HealthStatus struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// handleHealth reports broker health.
//
// Signalling is healthy as long as the process serves requests. Optional
// collaborators are probed individually and reported per component; a
// failing component degrades the overall status but the endpoint stays
// 200, since the broker keeps relaying without any of them.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := HealthStatus{
		Status:     "ok",
		Version:    s.version,
		Components: make(map[string]string),
	}

	check := func(name string, fn func(context.Context) error) {
		if fn == nil {
			status.Components[name] = "disabled"
			return
		}
		if err := fn(ctx); err != nil {
			status.Components[name] = err.Error()
			status.Status = "degraded"
			return
		}
		status.Components[name] = "ok"
	}

	var dbCheck, mqttCheck, influxCheck func(context.Context) error
	if s.db != nil {
		dbCheck = s.db.HealthCheck
	}
	if s.mqtt != nil {
		mqttCheck = s.mqtt.HealthCheck
	}
	if s.influx != nil {
		influxCheck = s.influx.HealthCheck
	}

	check("database", dbCheck)
	check("mqtt", mqttCheck)
	check("influxdb", influxCheck)

	writeJSON(w, http.StatusOK, status)
}
