// Farsight Core - Real-Time Device Signalling Broker
//
// This is the main entry point for the Farsight Core application.
// Farsight Core connects monitored device endpoints to operator dashboards:
//   - Bidirectional command and telemetry routing over WebSocket
//   - Live audio/video frame relay and WebRTC signalling
//   - Persistent device directory surviving broker restarts
//
// For architecture details, see: docs/architecture/system-overview.md
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/farsight-labs/farsight-core/migrations"

	"github.com/farsight-labs/farsight-core/internal/api"
	"github.com/farsight-labs/farsight-core/internal/device"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/config"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/database"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/influxdb"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/logging"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/mqtt"
	"github.com/farsight-labs/farsight-core/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// gaugeInterval is how often connection gauges are sampled into the
// telemetry sink.
const gaugeInterval = 30 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Farsight Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the device directory database (optional). The broker routes
	// entirely from in-memory state; the directory only remembers device
	// identities across restarts.
	var db *database.DB
	var directory device.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		// Run migrations
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		directory = device.NewSQLiteRepository(db.DB)
	} else {
		log.Info("device directory disabled, identities will not survive restarts")
	}

	// Initialise the live session registry and the event router
	registry := device.NewRegistry()
	registry.SetLogger(log)

	router := relay.NewRouter(registry)
	router.SetLogger(log)

	// Connect to MQTT broker for presence mirroring (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// The presence bridge mirrors registry membership onto retained
		// MQTT topics. Declared after the client so its deferred Close
		// drains the queue before the client disconnects.
		presence := mqtt.NewPresenceBridge(mqttClient, byte(cfg.MQTT.QoS))
		presence.SetLogger(log)
		defer func() {
			log.Info("stopping presence bridge", "dropped", presence.Dropped())
			presence.Close()
		}()
		router.SetPresencePublisher(presence)
		log.Info("MQTT presence bridge started", "qos", cfg.MQTT.QoS)
	} else {
		log.Info("MQTT presence bridge disabled")
	}

	// Connect to InfluxDB for routing telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		router.SetTelemetrySink(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the HTTP/WebSocket server
	srv, err := api.New(api.Deps{
		Config:    cfg.Server,
		WS:        cfg.WebSocket,
		Registry:  cfg.Registry,
		Dashboard: cfg.Dashboard,
		Logger:    log,
		Sessions:  registry,
		Router:    router,
		Directory: directory,
		DB:        db,
		MQTT:      mqttClient,
		Influx:    influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting server: %w", startErr)
	}
	defer func() {
		log.Info("stopping server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping server", "error", closeErr)
		}
	}()
	log.Info("server listening",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"ws_path", cfg.WebSocket.Path,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Sample connection gauges into the telemetry sink
	if influxClient != nil {
		go sampleGauges(ctx, router, influxClient)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Server (stops accepting, closes live connections)
	// 2. InfluxDB (if enabled)
	// 3. Presence bridge, then MQTT (if enabled)
	// 4. Database (if enabled)

	log.Info("Farsight Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FARSIGHT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FARSIGHT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Every component is optional, so nil clients are skipped.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil if disabled)
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	// Check MQTT
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// sampleGauges periodically writes connection counts to the telemetry
// sink until the context is cancelled.
func sampleGauges(ctx context.Context, router *relay.Router, influxClient *influxdb.Client) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := router.Stats()
			influxClient.WriteGauge("connected_devices", stats.Devices)
			influxClient.WriteGauge("connected_controllers", stats.Controllers)
		}
	}
}
