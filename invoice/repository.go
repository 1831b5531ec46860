package invoice

import (
	"context"

	"github.com/warp/tutoring-ledger/ledger"
)

// Repository persists invoices. Implementations:
//   - ledger/store.Memory: in-memory, for tests and development
//   - store/sqlite.Store: SQLite
//
// SaveInvoice is an optimistic write: an invoice with Version 1 is inserted
// (failing with *ledger.DuplicatePeriodError when a non-cancelled invoice
// exists for the same payer and period), any other version replaces the
// stored revision Version-1 or fails with *ledger.ConflictError.
type Repository interface {
	ledger.Sequencer

	// LoadInvoice returns *ledger.NotFoundError for unknown IDs.
	LoadInvoice(ctx context.Context, id string) (*Invoice, error)
	SaveInvoice(ctx context.Context, inv Invoice) error

	// InvoicesForPeriod returns every invoice of a payer for a period,
	// cancelled and archived ones included.
	InvoicesForPeriod(ctx context.Context, payerID string, period ledger.BillingPeriod) ([]Invoice, error)
	ListInvoices(ctx context.Context, filter Filter) ([]Invoice, error)
}

// Filter narrows ListInvoices. Zero values match everything except archived
// invoices.
type Filter struct {
	PayerID         string
	Statuses        []Status
	Period          *ledger.BillingPeriod
	IncludeArchived bool
}

// Match applies the filter to one invoice.
func (f Filter) Match(inv Invoice) bool {
	if inv.Archived && !f.IncludeArchived {
		return false
	}
	if f.PayerID != "" && inv.PayerID != f.PayerID {
		return false
	}
	if f.Period != nil && inv.Period != *f.Period {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if inv.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// BlocksPeriod returns true if inv prevents generating another invoice for
// the same payer and period.
func BlocksPeriod(inv Invoice) bool {
	return inv.Status != StatusCancelled
}
