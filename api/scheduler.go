/*
scheduler.go - Automated overdue sweep scheduler

PURPOSE:
  Periodically runs the invoice sweep: sent and pending invoices past
  their due date (plus grace period) become overdue, and reminders are
  scheduled at the configured day offsets.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start, then on every tick
  - The sweep itself is idempotent: a run on the same day changes nothing,
    so restarts and overlapping manual runs are safe

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(invoiceService, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - invoice/sweep.go: Sweep rules
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
)

// Sweeper runs one overdue sweep. *invoice.Service implements it.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (invoice.SweepReport, error)
}

// OverdueScheduler runs the invoice sweep on a ticker.
type OverdueScheduler struct {
	Sweeper  Sweeper
	Interval time.Duration
	Enabled  bool
	Clock    ledger.Clock
	Logger   zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun    time.Time
	lastReport invoice.SweepReport
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(sweeper Sweeper, logger zerolog.Logger) *OverdueScheduler {
	return &OverdueScheduler{
		Sweeper:  sweeper,
		Interval: 1 * time.Hour,
		Enabled:  true,
		Clock:    ledger.UTCNow,
		Logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info().Dur("interval", s.Interval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info().Msg("scheduler stopped")
}

func (s *OverdueScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow sweeps immediately and returns the report.
func (s *OverdueScheduler) RunNow(ctx context.Context) (invoice.SweepReport, error) {
	now := s.Clock()
	report, err := s.Sweeper.Sweep(ctx, now)
	if err != nil {
		s.Logger.Error().Err(err).Msg("overdue sweep failed")
		return report, err
	}

	s.mu.Lock()
	s.lastRun = now
	s.lastReport = report
	s.mu.Unlock()
	return report, nil
}

// LastRun returns when the last successful sweep ran and what it did.
func (s *OverdueScheduler) LastRun() (time.Time, invoice.SweepReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastReport
}

// NextRunTime returns when the next scheduled sweep will occur.
func (s *OverdueScheduler) NextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun.IsZero() {
		return s.Clock()
	}
	return s.lastRun.Add(s.Interval)
}
