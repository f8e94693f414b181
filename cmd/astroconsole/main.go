// astroconsole - INDI to websocket gateway
//
// astroconsole keeps one connection to an INDI server, mirrors its device
// model, and serves it to browser clients as JSON over websocket. Clients
// send switch and number commands back through the same session.
//
// Optional components, each enabled in the configuration file:
//   - a supervised local indiserver
//   - an MQTT mirror of the device model with command intake
//   - an InfluxDB time series of every property update
//   - a SQLite log of every forwarded command
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/astroconsole/internal/api"
	"github.com/nerrad567/astroconsole/internal/audit"
	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/gateway"
	"github.com/nerrad567/astroconsole/internal/indiserver"
	"github.com/nerrad567/astroconsole/internal/infrastructure/config"
	"github.com/nerrad567/astroconsole/internal/infrastructure/database"
	"github.com/nerrad567/astroconsole/internal/infrastructure/influxdb"
	"github.com/nerrad567/astroconsole/internal/infrastructure/logging"
	"github.com/nerrad567/astroconsole/internal/infrastructure/mqtt"
	"github.com/nerrad567/astroconsole/internal/layout"
	"github.com/nerrad567/astroconsole/internal/mirror"
	"github.com/nerrad567/astroconsole/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnv overrides the default configuration path when --config is not given.
const configEnv = "ASTROCONSOLE_CONFIG"

// task is a long-running component supervised by the errgroup.
type task struct {
	name string
	run  func(ctx context.Context) error
}

func main() {
	configFlag := flag.String("config", "", "configuration file (default $"+configEnv+" or "+config.DefaultPath+")")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, resolveConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath picks the flag value, then the environment, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return config.DefaultPath
}

// run wires every component and blocks until ctx is cancelled or a
// component fails.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Configuration file, which also holds the UI layout
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting astroconsole",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	hub := gateway.NewHub(log.With("component", "hub"))
	link := indi.NewLink(indi.Config{
		Address:           cfg.INDI.Address(),
		ReconnectInterval: cfg.GetReconnectInterval(),
		ConnectTimeout:    cfg.GetConnectTimeout(),
		MaxElementSize:    cfg.INDI.MaxElementSize,
	}, hub, log.With("component", "indi"))

	checks := make(map[string]api.HealthChecker)
	mirrors := make(map[string]api.DropCounter)
	tasks := []task{
		{"hub", hub.Run},
		{"indi link", link.Run},
	}

	// Command log (optional)
	var auditRepo audit.Repository
	var recorder mirror.Recorder
	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", db.Path())

		repo := audit.NewSQLiteRepository(db.DB)
		auditRepo, recorder = repo, repo
		checks["database"] = db
	} else {
		log.Info("command log disabled")
	}

	// MQTT mirror (optional)
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		m := mirror.NewMQTT(mqttClient, link, recorder, byte(cfg.MQTT.QoS), log) //nolint:gosec // QoS validated to 0-2
		hub.AddSink(m)
		mirrors["mqtt"] = m
		checks["mqtt"] = mqttClient
		tasks = append(tasks, task{"mqtt mirror", m.Run})
	} else {
		log.Info("MQTT mirror disabled")
	}

	// InfluxDB mirror (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
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

		m := mirror.NewInflux(influxClient, log)
		hub.AddSink(m)
		mirrors["influxdb"] = m
		checks["influxdb"] = influxClient
		tasks = append(tasks, task{"influxdb mirror", m.Run})
	} else {
		log.Info("InfluxDB mirror disabled")
	}

	// Local indiserver (optional)
	if cfg.INDI.Server.Enabled {
		sup := indiserver.New(indiserver.Config{
			Binary:       cfg.INDI.Server.Binary,
			Port:         cfg.INDI.Port,
			Drivers:      cfg.INDI.Server.Drivers,
			RestartDelay: time.Duration(cfg.INDI.Server.RestartDelay) * time.Second,
		}, log.With("component", "indiserver"))
		checks["indiserver"] = sup
		tasks = append(tasks, task{"indiserver", sup.Run})
	}

	server, err := api.New(api.Deps{
		Proxy:     cfg.Proxy,
		WebUI:     cfg.WebUI,
		WS:        cfg.WebSocket,
		Logger:    log,
		Hub:       hub,
		Commander: link,
		Layout:    layout.New(configPath),
		Audit:     auditRepo,
		Link:      link,
		Checks:    checks,
		Mirrors:   mirrors,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Bind before starting anything else so an address in use fails startup cleanly.
	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	for _, t := range tasks {
		g.Go(func() error {
			if err := t.run(gctx); err != nil {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
	}

	log.Info("initialisation complete",
		"proxy", server.ProxyAddr(),
		"webui", server.WebUIAddr(),
		"indi", cfg.INDI.Address(),
	)

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("astroconsole stopped")
	return nil
}

// openDatabase opens the SQLite file and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
