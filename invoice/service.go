/*
service.go - Invoice lifecycle orchestration

PURPOSE:
  Wraps the pure Invoice state machine with persistence and notification:
  load → apply operation → save (optimistic) → publish events.
  Events are published only after the save succeeded, so a dispatcher
  never announces a change that was not stored.

IDEMPOTENT GENERATION:
  Generate refuses a second invoice for the same payer and period with
  *ledger.DuplicatePeriodError. A batch job that retries "generate invoices
  for March" after a crash therefore cannot double-bill anyone. The
  repository enforces the same rule on insert, which closes the race
  between the pre-check and the write.

CONCURRENCY:
  The Service holds no locks. Two callers recording payments on the same
  invoice race on Version: the second SaveInvoice fails with
  ledger.ErrConcurrentModification and the caller reloads and retries.

EXAMPLE:
  svc := invoice.NewService(repo, bus, invoice.DefaultPolicy(), logger)

  inv, err := svc.Generate(ctx, invoice.GenerateInput{...})
  inv, err = svc.MarkSent(ctx, inv.ID)
  inv, err = svc.RecordPayment(ctx, inv.ID, invoice.PaymentInput{Amount: 30000})

SEE ALSO:
  - invoice.go: State machine and money invariants
  - sweep.go: Overdue/reminder sweep
  - api/scheduler.go: Runs Sweep on a ticker
*/
package invoice

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/tutoring-ledger/ledger"
)

// Service runs invoice operations against a repository and an event sink.
type Service struct {
	Repo   Repository
	Events ledger.EventSink
	Policy Policy
	Clock  ledger.Clock
	Logger zerolog.Logger

	// NewID generates invoice and payment record IDs.
	NewID func() string
}

// NewService creates a Service with UTC wall clock and UUID identifiers.
func NewService(repo Repository, events ledger.EventSink, policy Policy, logger zerolog.Logger) *Service {
	if events == nil {
		events = ledger.DiscardSink{}
	}
	return &Service{
		Repo:   repo,
		Events: events,
		Policy: policy,
		Clock:  ledger.UTCNow,
		Logger: logger.With().Str("component", "invoice").Logger(),
		NewID:  uuid.NewString,
	}
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate bills a payer for a period.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*Invoice, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.Repo.InvoicesForPeriod(ctx, in.PayerID, in.Period)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing invoices: %w", err)
	}
	for _, inv := range existing {
		if BlocksPeriod(inv) {
			return nil, &ledger.DuplicatePeriodError{
				Scope:      fmt.Sprintf("payer %s for %s", in.PayerID, in.Period),
				ExistingID: inv.ID,
				Number:     inv.Number,
			}
		}
	}

	seq, err := s.Repo.NextSequence(ctx, ledger.SequenceScope(ledger.InvoicePrefix, in.PayerID, in.Period))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	number := ledger.InvoiceNumber(in.PayerID, in.Period.Year, int(in.Period.Month), seq)

	inv, err := Generate(in, s.NewID(), number, s.Policy, s.Clock())
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SaveInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	s.Logger.Info().
		Str("invoice", inv.Number).
		Str("payer", inv.PayerID).
		Int64("total", int64(inv.Total)).
		Msg("invoice generated")
	s.publish(ctx, ledger.EventInvoiceGenerated, inv, inv.Total, nil)
	return &inv, nil
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

// Get loads an invoice.
func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	return s.Repo.LoadInvoice(ctx, id)
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Invoice, error) {
	return s.Repo.ListInvoices(ctx, filter)
}

// MarkSent records delivery to the payer.
func (s *Service) MarkSent(ctx context.Context, id string) (*Invoice, error) {
	next, err := s.mutate(ctx, id, func(inv Invoice, at time.Time) (Invoice, error) {
		return inv.MarkSent(at)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.EventInvoiceSent, next, next.AmountDue, nil)
	return &next, nil
}

// MarkPending records a payment announced by the payer.
func (s *Service) MarkPending(ctx context.Context, id string) (*Invoice, error) {
	next, err := s.mutate(ctx, id, func(inv Invoice, at time.Time) (Invoice, error) {
		return inv.MarkPending(at)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// RecordPayment applies a payment. InvoicePaid is published exactly once,
// by the payment that settles the invoice.
func (s *Service) RecordPayment(ctx context.Context, id string, in PaymentInput) (*Invoice, error) {
	if in.ID == "" {
		in.ID = s.NewID()
	}
	var record PaymentRecord
	next, err := s.mutate(ctx, id, func(inv Invoice, at time.Time) (Invoice, error) {
		updated, rec, err := inv.RecordPayment(in, at)
		record = rec
		return updated, err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().
		Str("invoice", next.Number).
		Int64("amount", int64(record.Amount)).
		Int64("due", int64(next.AmountDue)).
		Msg("payment recorded")
	s.publish(ctx, ledger.EventPaymentRecorded, next, record.Amount, map[string]string{
		"payment_id": record.ID,
		"method":     string(record.Method),
		"reference":  record.Reference,
	})
	if next.Status == StatusPaid {
		s.publish(ctx, ledger.EventInvoicePaid, next, next.Total, nil)
	}
	return &next, nil
}

// Cancel voids an invoice.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*Invoice, error) {
	next, err := s.mutate(ctx, id, func(inv Invoice, at time.Time) (Invoice, error) {
		return inv.Cancel(reason, at)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.EventInvoiceCancelled, next, next.AmountDue, map[string]string{"reason": reason})
	return &next, nil
}

// OpenDispute puts an invoice on hold.
func (s *Service) OpenDispute(ctx context.Context, id, reason string) (*Invoice, error) {
	next, err := s.mutate(ctx, id, func(inv Invoice, at time.Time) (Invoice, error) {
		return inv.OpenDispute(reason, at)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.EventDisputeOpened, next, next.AmountDue, map[string]string{"reason": reason})
	return &next, nil
}

// ResolveDispute closes an open dispute.
func (s *Service) ResolveDispute(ctx context.Context, id, resolution string) (*Invoice, error) {
	next, err := s.mutate(ctx, id, func(inv Invoice, at time.Time) (Invoice, error) {
		return inv.ResolveDispute(resolution, at)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.EventDisputeResolved, next, next.AmountDue, map[string]string{"resolution": resolution})
	return &next, nil
}

// Archive soft-deletes a paid or cancelled invoice.
func (s *Service) Archive(ctx context.Context, id string) (*Invoice, error) {
	next, err := s.mutate(ctx, id, func(inv Invoice, at time.Time) (Invoice, error) {
		return inv.Archive(at)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// =============================================================================
// SWEEP
// =============================================================================

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Checked       int
	BecameOverdue int
	Reminders     int
	Conflicts     int
}

// Sweep runs the overdue transition and reminder schedule over every
// outstanding invoice. An invoice modified concurrently is skipped and
// picked up by the next run.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport
	candidates, err := s.Repo.ListInvoices(ctx, Filter{
		Statuses: []Status{StatusSent, StatusPending, StatusOverdue},
	})
	if err != nil {
		return report, fmt.Errorf("failed to list invoices: %w", err)
	}

	for _, inv := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		next, result := inv.Sweep(now, s.Policy)
		if !result.Changed() {
			continue
		}
		if err := s.Repo.SaveInvoice(ctx, next); err != nil {
			if ledger.IsRetryable(err) {
				report.Conflicts++
				s.Logger.Warn().Str("invoice", inv.Number).Msg("sweep skipped invoice modified concurrently")
				continue
			}
			return report, fmt.Errorf("failed to save invoice %s: %w", inv.ID, err)
		}

		if result.BecameOverdue {
			report.BecameOverdue++
			s.publish(ctx, ledger.EventInvoiceOverdue, next, next.AmountDue, map[string]string{
				"overdue_days": strconv.Itoa(result.OverdueDays),
			})
		}
		if result.RemindersDue > 0 {
			report.Reminders++
			s.publish(ctx, ledger.EventReminderDue, next, next.AmountDue, map[string]string{
				"reminder_count": strconv.Itoa(next.ReminderCount),
				"offset_days":    strconv.Itoa(result.Offset),
				"overdue_days":   strconv.Itoa(result.OverdueDays),
			})
		}
	}

	s.Logger.Info().
		Int("checked", report.Checked).
		Int("overdue", report.BecameOverdue).
		Int("reminders", report.Reminders).
		Int("conflicts", report.Conflicts).
		Msg("invoice sweep completed")
	return report, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) mutate(ctx context.Context, id string, op func(Invoice, time.Time) (Invoice, error)) (Invoice, error) {
	current, err := s.Repo.LoadInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	next, err := op(*current, s.Clock())
	if err != nil {
		return Invoice{}, err
	}
	if err := s.Repo.SaveInvoice(ctx, next); err != nil {
		return Invoice{}, fmt.Errorf("failed to save invoice: %w", err)
	}
	return next, nil
}

func (s *Service) publish(ctx context.Context, kind ledger.EventKind, inv Invoice, amount ledger.Money, meta map[string]string) {
	s.Events.Publish(ctx, ledger.Event{
		Kind:           kind,
		EntityID:       inv.ID,
		Number:         inv.Number,
		PartyID:        inv.PayerID,
		BeneficiaryIDs: append([]string(nil), inv.BeneficiaryIDs...),
		Amount:         amount,
		Balance:        inv.AmountDue,
		At:             inv.UpdatedAt,
		Meta:           meta,
	})
}
