// Package app wires configuration, storage and the Open Collective provider
// for the collectivepay binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kelseyhightower/envconfig"

	"collectivepay/internal/common/database"
	"collectivepay/internal/common/events"
	"collectivepay/internal/common/nats"
	"collectivepay/internal/payment"
	"collectivepay/internal/providers/opencollective"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	Storage     string `envconfig:"STORAGE" default:"postgres"`

	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	CheckoutURL   string `envconfig:"CHECKOUT_URL" default:"/checkout"`
	SuccessURL    string `envconfig:"SUCCESS_URL" default:"/order/complete"`

	Database       database.Config
	NATS           nats.Config
	OpenCollective opencollective.Config
}

// Load reads the configuration from the environment and the optional
// event slug file.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	switch cfg.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	if cfg.OpenCollective.EventsFile != "" {
		slugs, err := opencollective.LoadEventSlugs(cfg.OpenCollective.EventsFile)
		if err != nil {
			return nil, err
		}
		cfg.OpenCollective.EventSlugs = slugs
	}

	return &cfg, nil
}

// NewLogger builds a logger writing to w.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// App holds the wired components. Close releases connections.
type App struct {
	Config     *Config
	Store      payment.Store
	DB         *database.DB
	NATS       *nats.Client
	Service    *payment.Service
	Reconciler *payment.Reconciler
	Client     *opencollective.Client
	Adapter    *opencollective.Adapter
}

// New connects storage and the optional event broker and builds the
// payment components on top of them.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg}

	switch cfg.Storage {
	case StorageMemory:
		logger.Warn("using in-memory payment store")
		a.Store = payment.NewMemoryStore()
	default:
		db, err := database.New(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.DB = db
		a.Store = payment.NewPostgresStore(db)
	}

	var publisher events.EventPublisher
	if cfg.NATS.URL != "" {
		client, err := nats.New(ctx, cfg.NATS, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.NATS = client
		if _, err := client.EnsureStream(ctx, cfg.NATS.Stream); err != nil {
			a.Close()
			return nil, err
		}
		publisher = nats.NewPublisher(client, logger)
	}

	a.Service = payment.NewService(a.Store, publisher, logger)
	a.Reconciler = payment.NewReconciler(a.Store, publisher, logger)
	a.Client = opencollective.NewClient(&cfg.OpenCollective, logger)
	a.Adapter = opencollective.NewAdapter(&cfg.OpenCollective, a.Store, a.Client, a.Reconciler, cfg.PublicBaseURL, logger)

	return a, nil
}

// Close releases the database pool and the NATS connection.
func (a *App) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// HealthCheck reports whether the backing services are reachable.
func (a *App) HealthCheck(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if a.NATS != nil {
		if err := a.NATS.HealthCheck(); err != nil {
			return err
		}
	}
	return nil
}
