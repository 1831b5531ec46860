/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tutoring ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve   Start the HTTP API and the overdue scheduler
  sweep   Run one overdue sweep and exit (cron-friendly)

STARTUP SEQUENCE:
  1. Load .env (if present) into the environment
  2. Load configuration (--config YAML file, or TUTORLEDGER_* variables only)
  3. Configure the logger
  4. Open the SQLite store
  5. Build the event bus, metrics and the two engines
  6. Run the command

GLOBAL FLAGS:
  -c, --config   YAML configuration file (default: tutorledger.yaml)
                 Falls back to defaults + environment when the file is missing.

EXAMPLES:
  # Run with file database
  ./server serve --config ./tutorledger.yaml

  # Run with in-memory database
  TUTORLEDGER_DATABASE_DSN=":memory:" ./server serve

  # Nightly cron
  ./server sweep

SEE ALSO:
  - config/config.go: Configuration keys and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/tutoring-ledger/config"
	"github.com/warp/tutoring-ledger/factory"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/notify"
	"github.com/warp/tutoring-ledger/payout"
	"github.com/warp/tutoring-ledger/store/sqlite"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Billing and payroll ledger for a tutoring business",
	Long: `Turns validated tutoring sessions into parent invoices and teacher
payouts, tracks their lifecycle, and runs the overdue/reminder sweep.

Quick start:
  server serve      # Start the HTTP API
  server sweep      # Run one overdue sweep`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tutorledger.yaml", "config file path")
}

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *sqlite.Store
	metrics  *notify.Metrics
	bus      *notify.Bus
	invoices *invoice.Service
	payouts  *payout.Service
}

func newApp() (*app, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.Logging)

	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	payoutPolicy := cfg.PayoutPolicy()
	if cfg.Payroll.RulesFile != "" {
		payroll, err := factory.NewRuleFactory().LoadFile(cfg.Payroll.RulesFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		payroll.Apply(&payoutPolicy)
		logger.Info().
			Str("rules", payroll.ID).
			Int("bonuses", len(payroll.Rules.Bonuses)).
			Int("deductions", len(payroll.Rules.Deductions)).
			Msg("payroll rules loaded")
	}

	metrics := notify.NewMetrics()
	bus := notify.NewBus(logger, metrics)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		metrics:  metrics,
		bus:      bus,
		invoices: invoice.NewService(store, bus, cfg.InvoicePolicy(), logger),
		payouts:  payout.NewService(store, bus, payoutPolicy, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close database")
	}
}

// setupLogger configures zerolog from the logging section.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
