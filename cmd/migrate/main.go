package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"collectivepay/internal/app"
	"collectivepay/internal/common/database"
	"collectivepay/migrations"
)

// Config holds migration configuration
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	Database database.Config
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the collectivepay database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd("up", "Apply all pending migrations", cobra.NoArgs, func(m *migrate.Migrate, _ []string) error {
		return m.Up()
	}))
	rootCmd.AddCommand(migrateCmd("down [n]", "Roll back n migrations (default 1)", cobra.MaximumNArgs(1), func(m *migrate.Migrate, args []string) error {
		n := 1
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			n = v
		}
		return m.Steps(-n)
	}))
	rootCmd.AddCommand(migrateCmd("force [version]", "Set the version without running migrations", cobra.ExactArgs(1), func(m *migrate.Migrate, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	}))
	rootCmd.AddCommand(migrateCmd("version", "Print the current schema version", cobra.NoArgs, func(*migrate.Migrate, []string) error {
		return nil
	}))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// migrateCmd builds a subcommand that runs fn against a migrator and logs the
// resulting schema version.
func migrateCmd(use, short string, args cobra.PositionalArgs, fn func(*migrate.Migrate, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg Config
			if err := envconfig.Process("", &cfg); err != nil {
				return fmt.Errorf("processing config: %w", err)
			}
			logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

			m, err := newMigrate(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := fn(m, args); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("%s: %w", cmd.Name(), err)
			}
			return logVersion(logger, m, cmd.Name())
		},
	}
}

func logVersion(logger *slog.Logger, m *migrate.Migrate, command string) error {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	logger.Info("migrations complete", "command", command, "version", version, "dirty", dirty)
	return nil
}

func newMigrate(databaseURL string) (*migrate.Migrate, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, driverURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// driverURL rewrites a postgres URL to the scheme registered by the pgx/v5 driver.
func driverURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}
