// Telegate - IoT telemetry gateway
//
// This is the main entry point for the Telegate core process. It ingests
// device telemetry from MQTT, persists it to SQLite (optionally mirroring
// numeric fields to InfluxDB), and distributes live updates to authorized
// WebSocket clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/telegate/telegate/migrations"

	"github.com/telegate/telegate/internal/access"
	"github.com/telegate/telegate/internal/api"
	"github.com/telegate/telegate/internal/device"
	"github.com/telegate/telegate/internal/infrastructure/config"
	"github.com/telegate/telegate/internal/infrastructure/database"
	"github.com/telegate/telegate/internal/infrastructure/influxdb"
	"github.com/telegate/telegate/internal/infrastructure/logging"
	"github.com/telegate/telegate/internal/infrastructure/mqtt"
	"github.com/telegate/telegate/internal/telemetry"
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

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Telegate",
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

	// Open database
	db, err := database.Open(database.Config{
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

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// Connect to MQTT broker (optional: without a broker host the gateway
	// still serves stored telemetry over HTTP/WebSocket)
	var mqttClient *mqtt.Client
	if cfg.IngestionEnabled() {
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT transport started",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Warn("MQTT broker host not configured, telemetry ingestion disabled")
	}

	// Connect to InfluxDB (optional)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Event bus connects ingestion to the WebSocket hub
	bus := telemetry.NewBus()
	bus.SetLogger(log)

	// Telemetry store and ingestion pipeline
	telemetryRepo := telemetry.NewSQLiteRepository(db.DB)
	if mqttClient != nil {
		ingestor := telemetry.NewIngestor(
			mqttClient,
			cfg.MQTT.Topics.TelemetryPattern,
			byte(cfg.MQTT.QoS),
			deviceRegistry,
			telemetryRepo,
			bus,
		)
		ingestor.SetLogger(log)
		if influxClient != nil {
			ingestor.SetMetricsWriter(influxClient)
		}
		if startErr := ingestor.Start(ctx); startErr != nil {
			return fmt.Errorf("starting telemetry ingestion: %w", startErr)
		}
	}

	// Command publisher
	var commandTransport telemetry.CommandTransport
	if mqttClient != nil {
		commandTransport = mqttClient
	}
	commands := telemetry.NewPublisher(commandTransport, cfg.MQTT.Topics.CommandTemplate)
	commands.SetLogger(log)

	// Retention pruning (optional)
	if cfg.Database.RetentionDays > 0 {
		go pruneLoop(ctx, telemetryRepo, cfg.Database.RetentionDays, log)
	}

	// Access control oracle
	accessService := access.NewService(db.DB)

	// HTTP/WebSocket gateway
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: deviceRegistry,
		Bus:      bus,
		Access:   accessService,
		Commands: commands,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Telegate stopped")
	return nil
}

// pruneInterval is how often retention pruning runs.
const pruneInterval = time.Hour

// pruneLoop periodically deletes telemetry records older than the
// configured retention window.
func pruneLoop(ctx context.Context, repo telemetry.Repository, retentionDays int, log *logging.Logger) {
	age := time.Duration(retentionDays) * 24 * time.Hour
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.PruneOlderThan(ctx, age)
			if err != nil {
				log.Error("telemetry pruning failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("telemetry pruned", "deleted", deleted, "retention_days", retentionDays)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses TELEGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TELEGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// MQTT health is advisory at startup: the client reconnects in the
	// background, so a broker that is briefly down should not abort boot.
	if mqttClient != nil && !mqttClient.IsConnected() {
		log.Warn("MQTT broker not yet reachable, retrying in background")
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
