package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/tutoring-ledger/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the ledger HTTP API and the overdue scheduler.

Environment variables (override the config file):
  TUTORLEDGER_SERVER_PORT          - Server port (default: 8080)
  TUTORLEDGER_DATABASE_DSN         - SQLite path (default: tutorledger.db)
  TUTORLEDGER_SCHEDULER_ENABLED    - Run the overdue sweep on a ticker
  TUTORLEDGER_SCHEDULER_INTERVAL   - Sweep interval (default: 1h)
  TUTORLEDGER_LOG_LEVEL            - debug, info, warn, error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the server stops accepting connections, waits up to
  30s for active requests, stops the scheduler and closes the database.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	handler := api.NewHandler(a.invoices, a.payouts, a.logger)
	handler.DefaultTaxRate = a.cfg.DefaultTaxRate()

	opts := api.RouterOptions{CORSOrigins: a.cfg.Server.CORSOrigins}
	if a.cfg.Metrics.Enabled {
		opts.Metrics = a.metrics.Handler()
		opts.MetricsPath = a.cfg.Metrics.Path
	}
	router := api.NewRouter(handler, opts)

	scheduler := api.NewOverdueScheduler(a.invoices, a.logger)
	scheduler.Enabled = a.cfg.Scheduler.Enabled
	scheduler.Interval = a.cfg.Scheduler.Interval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}

	a.logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	a.logger.Info().Msg("server stopped")
	return nil
}
