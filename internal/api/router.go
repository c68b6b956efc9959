package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/farsight-labs/farsight-core/internal/dashboard"
)

// buildRouter assembles the chi router: global middleware, the signalling
// endpoint, the v1 REST surface, and (optionally) the embedded dashboard.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Middleware applies to every route, the WebSocket upgrade included.
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Signalling endpoint. Devices and dashboards both connect here;
	// the query parameters decide which role the connection gets.
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Live session endpoints (read-only views of the registry)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
		})

		// Persisted directory endpoints; absent when the directory is disabled
		if s.directory != nil {
			r.Route("/directory", func(r chi.Router) {
				r.Get("/", s.handleListDirectory)
				r.Get("/{id}", s.handleGetDirectoryRecord)
				r.Delete("/{id}", s.handleDeleteDirectoryRecord)
			})
		}
	})

	// Operator dashboard (embedded via go:embed), served at the root so
	// it works from a bare browser URL.
	if s.dashCfg.Enabled {
		r.Handle("/*", dashboard.Handler(s.dashCfg.Dir))
	}

	return r
}
