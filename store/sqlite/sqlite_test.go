package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
	"github.com/warp/tutoring-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	t0    = time.Date(2025, time.March, 31, 10, 0, 0, 0, time.UTC)
	march = ledger.BillingPeriod{Year: 2025, Month: time.March}
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newInvoice(t *testing.T, id, payer string) invoice.Invoice {
	t.Helper()
	item := ledger.NewSessionCharge("s-"+id, 75000, 60)
	item.StudentID = "st-1"
	inv, err := invoice.Generate(invoice.GenerateInput{
		PayerID:   payer,
		Period:    march,
		LineItems: []ledger.SessionCharge{item},
		TaxRate:   decimal.NewFromInt(20),
	}, id, "INV-"+id, invoice.DefaultPolicy(), t0)
	require.NoError(t, err)
	return inv
}

func newPayment(t *testing.T, id, teacher string) payout.Payment {
	t.Helper()
	p, err := payout.Calculate(payout.CalculateInput{
		TeacherID:  teacher,
		Period:     march,
		Sessions:   []ledger.SessionCharge{ledger.NewSessionCharge("s-"+id, 30000, 90)},
		TaxRate:    decimal.NewFromInt(10),
		SocialRate: decimal.RequireFromString("5.5"),
		Bonuses:    []payout.Bonus{{Type: payout.BonusPunctuality, Amount: 2000}},
	}, id, "PAY-"+id, payout.DefaultPolicy(), t0)
	require.NoError(t, err)
	return p
}

// =============================================================================
// INVOICES
// =============================================================================

func TestStore_InvoiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	inv := newInvoice(t, "inv-1", "p1")
	sent, err := inv.MarkSent(t0.Add(time.Hour))
	require.NoError(t, err)
	paid, _, err := sent.RecordPayment(invoice.PaymentInput{ID: "rec-1", Amount: 30000, Method: invoice.MethodCard}, t0.Add(2*time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.SaveInvoice(ctx, inv))
	require.NoError(t, s.SaveInvoice(ctx, sent))
	require.NoError(t, s.SaveInvoice(ctx, paid))

	loaded, err := s.LoadInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Version)
	assert.Equal(t, invoice.StatusSent, loaded.Status)
	assert.Equal(t, ledger.Money(90000), loaded.Total)
	assert.Equal(t, ledger.Money(60000), loaded.AmountDue)
	assert.True(t, loaded.TaxRate.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, march, loaded.Period)
	assert.True(t, loaded.DueDate.Equal(inv.DueDate))
	assert.Equal(t, []string{"st-1"}, loaded.BeneficiaryIDs)
	require.Len(t, loaded.Payments, 1)
	assert.Equal(t, "rec-1", loaded.Payments[0].ID)
	assert.Equal(t, invoice.MethodCard, loaded.Payments[0].Method)
	assert.NoError(t, loaded.CheckInvariants())
}

func TestStore_InvoiceConflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	inv := newInvoice(t, "inv-1", "p1")
	require.NoError(t, s.SaveInvoice(ctx, inv))

	err := s.SaveInvoice(ctx, newInvoice(t, "inv-2", "p1"))
	var dup *ledger.DuplicatePeriodError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "inv-1", dup.ExistingID)
	assert.Equal(t, "INV-inv-1", dup.Number)

	sent, err := inv.MarkSent(t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveInvoice(ctx, sent))
	err = s.SaveInvoice(ctx, sent)
	var conflict *ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(2), conflict.Actual)

	ghost, err := newInvoice(t, "ghost", "p9").MarkSent(t0)
	require.NoError(t, err)
	assert.True(t, ledger.IsNotFound(s.SaveInvoice(ctx, ghost)))

	_, err = s.LoadInvoice(ctx, "missing")
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_CancelledInvoiceFreesPeriod(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	inv := newInvoice(t, "inv-1", "p1")
	require.NoError(t, s.SaveInvoice(ctx, inv))
	cancelled, err := inv.Cancel("wrong rate", t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveInvoice(ctx, cancelled))

	require.NoError(t, s.SaveInvoice(ctx, newInvoice(t, "inv-2", "p1")))

	forPeriod, err := s.InvoicesForPeriod(ctx, "p1", march)
	require.NoError(t, err)
	require.Len(t, forPeriod, 2)
	assert.Equal(t, "INV-inv-1", forPeriod[0].Number)
}

func TestStore_ListInvoices(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := newInvoice(t, "inv-a", "p1")
	b := newInvoice(t, "inv-b", "p2")
	require.NoError(t, s.SaveInvoice(ctx, a))
	require.NoError(t, s.SaveInvoice(ctx, b))
	cancelled, err := b.Cancel("x", t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveInvoice(ctx, cancelled))
	archived, err := cancelled.Archive(t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveInvoice(ctx, archived))

	visible, err := s.ListInvoices(ctx, invoice.Filter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "inv-a", visible[0].ID)

	all, err := s.ListInvoices(ctx, invoice.Filter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byStatus, err := s.ListInvoices(ctx, invoice.Filter{
		Statuses:        []invoice.Status{invoice.StatusCancelled, invoice.StatusPaid},
		IncludeArchived: true,
	})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "inv-b", byStatus[0].ID)

	april := ledger.BillingPeriod{Year: 2025, Month: time.April}
	none, err := s.ListInvoices(ctx, invoice.Filter{Period: &april})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestStore_PaymentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := newPayment(t, "pay-1", "t1")
	require.NoError(t, s.SaveTeacherPayment(ctx, p))

	validated, err := p.Validate("admin", "payslip:PAY-pay-1", t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveTeacherPayment(ctx, validated))

	loaded, err := s.LoadTeacherPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusValidated, loaded.Status)
	assert.Equal(t, "payslip:PAY-pay-1", loaded.PayslipRef)
	assert.True(t, loaded.SocialRate.Equal(decimal.RequireFromString("5.5")))
	assert.Equal(t, p.NetAmount(), loaded.NetAmount())
	require.Len(t, loaded.Bonuses, 1)
	assert.Equal(t, payout.BonusPunctuality, loaded.Bonuses[0].Type)
}

func TestStore_PaymentPeriodRules(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := newPayment(t, "pay-1", "t1")
	require.NoError(t, s.SaveTeacherPayment(ctx, p))

	err := s.SaveTeacherPayment(ctx, newPayment(t, "pay-2", "t1"))
	assert.ErrorIs(t, err, ledger.ErrDuplicatePeriod)

	rejected, err := p.Reject("wrong batch", t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveTeacherPayment(ctx, rejected))
	require.NoError(t, s.SaveTeacherPayment(ctx, newPayment(t, "pay-2", "t1")))

	err = s.SaveTeacherPayment(ctx, rejected)
	assert.True(t, ledger.IsRetryable(err))

	forPeriod, err := s.TeacherPaymentsForPeriod(ctx, "t1", march)
	require.NoError(t, err)
	assert.Len(t, forPeriod, 2)

	calculated, err := s.ListTeacherPayments(ctx, payout.Filter{TeacherID: "t1", Statuses: []payout.Status{payout.StatusCalculated}})
	require.NoError(t, err)
	require.Len(t, calculated, 1)
	assert.Equal(t, "pay-2", calculated[0].ID)
}

// =============================================================================
// SEQUENCES AND UTILITIES
// =============================================================================

func TestStore_NextSequence(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for want := 1; want <= 3; want++ {
		got, err := s.NextSequence(ctx, "PAY:t1:202503")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	other, err := s.NextSequence(ctx, "PAY:t2:202503")
	require.NoError(t, err)
	assert.Equal(t, 1, other)
}

func TestStore_ResetAndPing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveInvoice(ctx, newInvoice(t, "inv-1", "p1")))
	_, err := s.NextSequence(ctx, "INV:p1:202503")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	all, err := s.ListInvoices(ctx, invoice.Filter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Empty(t, all)
	seq, err := s.NextSequence(ctx, "INV:p1:202503")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
	assert.NoError(t, s.Ping(ctx))
}
