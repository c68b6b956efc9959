package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/farsight-labs/farsight-core/internal/device"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/config"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/database"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/influxdb"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/logging"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/mqtt"
	"github.com/farsight-labs/farsight-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// Sessions and Router are required; everything else degrades gracefully
// when absent. A nil Directory removes the directory REST endpoints, and
// nil MQTT/Influx/DB simply report as disabled in health and metrics.
type Deps struct {
	Config    config.ServerConfig
	WS        config.WebSocketConfig
	Registry  config.RegistryConfig
	Dashboard config.DashboardConfig
	Logger    *logging.Logger
	Sessions  *device.Registry
	Router    *relay.Router
	Directory device.Repository
	DB        *database.DB
	MQTT      *mqtt.Client
	Influx    *influxdb.Client
	Version   string
}

// Server is the HTTP and WebSocket server for Farsight Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
// All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.ServerConfig
	wsCfg     config.WebSocketConfig
	regCfg    config.RegistryConfig
	dashCfg   config.DashboardConfig
	logger    *logging.Logger
	sessions  *device.Registry
	router    *relay.Router
	directory device.Repository
	db        *database.DB
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("relay router is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		regCfg:    deps.Registry,
		dashCfg:   deps.Dashboard,
		logger:    deps.Logger,
		sessions:  deps.Sessions,
		router:    deps.Router,
		directory: deps.Directory,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It creates the WebSocket hub, builds the route table, and launches the
// HTTP listener in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startTime = time.Now()

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)

	handler := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("server starting", "address", s.server.Addr, "ws_path", s.wsCfg.Path)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server.
//
// It disconnects all WebSocket clients, then waits up to 10 seconds for
// in-flight requests to complete before forcefully closing the rest.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub teardown closes every connection)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("server not started")
	}

	return nil
}
