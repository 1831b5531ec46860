// Package store provides in-memory repository implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements invoice.Repository and payout.Repository.
type Memory struct {
	mu        sync.RWMutex
	invoices  map[string]invoice.Invoice
	payments  map[string]payout.Payment
	sequences map[string]int
}

var (
	_ invoice.Repository = (*Memory)(nil)
	_ payout.Repository  = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		invoices:  make(map[string]invoice.Invoice),
		payments:  make(map[string]payout.Payment),
		sequences: make(map[string]int),
	}
}

// NextSequence returns 1, 2, 3... per scope.
func (m *Memory) NextSequence(_ context.Context, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[scope]++
	return m.sequences[scope], nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) LoadInvoice(_ context.Context, id string) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "invoice", ID: id}
	}
	inv = copyInvoice(inv)
	return &inv, nil
}

// SaveInvoice inserts Version 1 and replaces later versions optimistically.
func (m *Memory) SaveInvoice(_ context.Context, inv invoice.Invoice) error {
	if err := inv.CheckInvariants(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.invoices[inv.ID]
	if inv.Version <= 1 {
		if exists {
			return &ledger.ConflictError{Entity: "invoice", ID: inv.ID, Expected: 0, Actual: stored.Version}
		}
		if invoice.BlocksPeriod(inv) {
			for _, other := range m.invoices {
				if other.PayerID == inv.PayerID && other.Period == inv.Period && invoice.BlocksPeriod(other) {
					return &ledger.DuplicatePeriodError{
						Scope:      "payer " + inv.PayerID + " for " + inv.Period.String(),
						ExistingID: other.ID,
						Number:     other.Number,
					}
				}
			}
		}
		m.invoices[inv.ID] = copyInvoice(inv)
		return nil
	}

	if !exists {
		return &ledger.NotFoundError{Entity: "invoice", ID: inv.ID}
	}
	if stored.Version != inv.Version-1 {
		return &ledger.ConflictError{Entity: "invoice", ID: inv.ID, Expected: inv.Version - 1, Actual: stored.Version}
	}
	m.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (m *Memory) InvoicesForPeriod(_ context.Context, payerID string, period ledger.BillingPeriod) ([]invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []invoice.Invoice
	for _, inv := range m.invoices {
		if inv.PayerID == payerID && inv.Period == period {
			result = append(result, copyInvoice(inv))
		}
	}
	sortInvoices(result)
	return result, nil
}

func (m *Memory) ListInvoices(_ context.Context, filter invoice.Filter) ([]invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []invoice.Invoice
	for _, inv := range m.invoices {
		if filter.Match(inv) {
			result = append(result, copyInvoice(inv))
		}
	}
	sortInvoices(result)
	return result, nil
}

// =============================================================================
// TEACHER PAYMENTS
// =============================================================================

func (m *Memory) LoadTeacherPayment(_ context.Context, id string) (*payout.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "payment", ID: id}
	}
	p = copyPayment(p)
	return &p, nil
}

// SaveTeacherPayment inserts Version 1 and replaces later versions optimistically.
func (m *Memory) SaveTeacherPayment(_ context.Context, p payout.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.payments[p.ID]
	if p.Version <= 1 {
		if exists {
			return &ledger.ConflictError{Entity: "payment", ID: p.ID, Expected: 0, Actual: stored.Version}
		}
		if payout.BlocksPeriod(p) {
			for _, other := range m.payments {
				if other.TeacherID == p.TeacherID && other.Period == p.Period && payout.BlocksPeriod(other) {
					return &ledger.DuplicatePeriodError{
						Scope:      "teacher " + p.TeacherID + " for " + p.Period.String(),
						ExistingID: other.ID,
						Number:     other.Number,
					}
				}
			}
		}
		m.payments[p.ID] = copyPayment(p)
		return nil
	}

	if !exists {
		return &ledger.NotFoundError{Entity: "payment", ID: p.ID}
	}
	if stored.Version != p.Version-1 {
		return &ledger.ConflictError{Entity: "payment", ID: p.ID, Expected: p.Version - 1, Actual: stored.Version}
	}
	m.payments[p.ID] = copyPayment(p)
	return nil
}

func (m *Memory) TeacherPaymentsForPeriod(_ context.Context, teacherID string, period ledger.BillingPeriod) ([]payout.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payout.Payment
	for _, p := range m.payments {
		if p.TeacherID == teacherID && p.Period == period {
			result = append(result, copyPayment(p))
		}
	}
	sortPayments(result)
	return result, nil
}

func (m *Memory) ListTeacherPayments(_ context.Context, filter payout.Filter) ([]payout.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payout.Payment
	for _, p := range m.payments {
		if filter.Match(p) {
			result = append(result, copyPayment(p))
		}
	}
	sortPayments(result)
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Callers get their own slices so a mutation outside the lock can't leak
// into stored state.
func copyInvoice(inv invoice.Invoice) invoice.Invoice {
	inv.BeneficiaryIDs = append([]string(nil), inv.BeneficiaryIDs...)
	inv.LineItems = append([]ledger.SessionCharge(nil), inv.LineItems...)
	inv.Payments = append([]invoice.PaymentRecord(nil), inv.Payments...)
	if inv.Dispute != nil {
		d := *inv.Dispute
		inv.Dispute = &d
	}
	return inv
}

func copyPayment(p payout.Payment) payout.Payment {
	p.Sessions = append([]ledger.SessionCharge(nil), p.Sessions...)
	p.Bonuses = append([]payout.Bonus(nil), p.Bonuses...)
	p.Deductions = append([]payout.Deduction(nil), p.Deductions...)
	return p
}

// Oldest first, number as tie breaker.
func sortInvoices(invs []invoice.Invoice) {
	sort.Slice(invs, func(i, j int) bool {
		a, b := invs[i].Timeline.CreatedAt, invs[j].Timeline.CreatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return invs[i].Number < invs[j].Number
	})
}

func sortPayments(ps []payout.Payment) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i].CalculatedAt, ps[j].CalculatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return ps[i].Number < ps[j].Number
	})
}
