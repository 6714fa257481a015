// Haven Core - Rule Automation Engine
//
// This is the main entry point for the Haven Core application.
// Haven Core evaluates automation rules against a registry of smart
// devices, executes their actions in order, and reports progress over
// MQTT and WebSocket while runs are in flight.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ewhitter/haven-core/migrations"

	"github.com/ewhitter/haven-core/internal/api"
	"github.com/ewhitter/haven-core/internal/device"
	"github.com/ewhitter/haven-core/internal/events"
	"github.com/ewhitter/haven-core/internal/infrastructure/config"
	"github.com/ewhitter/haven-core/internal/infrastructure/database"
	"github.com/ewhitter/haven-core/internal/infrastructure/influxdb"
	"github.com/ewhitter/haven-core/internal/infrastructure/logging"
	"github.com/ewhitter/haven-core/internal/infrastructure/mqtt"
	"github.com/ewhitter/haven-core/internal/notify"
	"github.com/ewhitter/haven-core/internal/rules"
	"github.com/ewhitter/haven-core/internal/scheduler"
	"github.com/ewhitter/haven-core/internal/sensor"
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
	log.Info("starting Haven Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	// Open database and run migrations
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log)
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// Initialise rule registry
	ruleRegistry := rules.NewRegistry(rules.NewSQLiteRepository(db.DB))
	ruleRegistry.SetLogger(log)
	if refreshErr := ruleRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading rule registry: %w", refreshErr)
	}
	log.Info("rule registry initialised", "rules", ruleRegistry.RuleCount())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	qos := byte(cfg.MQTT.QoS)

	// Connect to InfluxDB (optional); sensor conditions fall back to an
	// in-memory store when telemetry persistence is disabled.
	var influxClient *influxdb.Client
	var sensorStore rules.SensorStore
	var telemetry sensor.TelemetryWriter
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
		sensorStore = sensor.NewInfluxStore(influxClient)
		telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled, using in-memory sensor store")
		memStore := sensor.NewMemoryStore()
		sensorStore = memStore
		telemetry = memStore
	}

	// Device command path
	controller := device.NewController(deviceRegistry, mqttClient, mqtt.Topics{}.Command, qos)
	controller.SetLogger(log)
	engineDevices := device.NewEngineAdapter(deviceRegistry, controller)

	// Notification channels
	dispatcher := buildDispatcher(cfg.Notifications, mqttClient, log)

	// WebSocket hub is shared between the API server and the event bus
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	bus := events.NewBus(mqttClient, hub, qos)

	// Rule engine
	engine := rules.NewCoordinator(ctx, ruleRegistry, engineDevices, sensorStore, dispatcher, bus)
	engine.SetLogger(log)
	engine.SetRetention(cfg.RetentionWindow())
	log.Info("rule engine initialised", "retention", cfg.RetentionWindow())

	// Telemetry ingest: state reports feed the registry, the sensor
	// store, and the live WebSocket relay.
	ingest := sensor.NewIngest(deviceRegistry, telemetry, qos)
	ingest.SetLogger(log)
	ingest.SetBroadcaster(hub)
	if startErr := ingest.Start(mqttClient); startErr != nil {
		return fmt.Errorf("starting telemetry ingest: %w", startErr)
	}

	// Scheduler: periodic schedule sweeps and execution pruning
	sched := scheduler.New(engine, ruleRegistry)
	sched.SetLogger(log)
	if startErr := sched.Start(cfg.Engine.SchedulerInterval, cfg.Engine.PruneInterval); startErr != nil {
		return fmt.Errorf("starting scheduler: %w", startErr)
	}
	defer func() {
		log.Info("stopping scheduler")
		sched.Stop()
	}()
	log.Info("scheduler started",
		"sweep", cfg.Engine.SchedulerInterval,
		"prune", cfg.Engine.PruneInterval,
	)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Devices:     deviceRegistry,
		Controller:  controller,
		Rules:       ruleRegistry,
		Engine:      engine,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, scheduler, InfluxDB (if enabled), MQTT, database.

	log.Info("Haven Core stopped")
	return nil
}

// buildDispatcher assembles the notification fan-out from config.
// The console channel is always registered so notification actions have
// at least one destination.
func buildDispatcher(cfg config.NotificationsConfig, mqttClient *mqtt.Client, log *logging.Logger) *notify.Dispatcher {
	channels := []notify.Channel{notify.NewConsoleChannel(log)}

	if cfg.MQTT.Enabled {
		channels = append(channels, notify.NewMQTTChannel(mqttClient, byte(cfg.MQTT.QoS)))
	}
	if cfg.Webhook.URL != "" {
		timeout := time.Duration(cfg.Webhook.Timeout) * time.Second
		channels = append(channels, notify.NewWebhookChannel(cfg.Webhook.URL, cfg.Webhook.Headers, timeout))
	}

	dispatcher := notify.NewDispatcher(channels...)
	dispatcher.SetLogger(log)
	log.Info("notification channels registered", "count", len(channels))
	return dispatcher
}

// getConfigPath returns the configuration file path.
// Uses HAVEN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HAVEN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
