package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tutoring-ledger/api"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/ledger/store"
	"github.com/warp/tutoring-ledger/notify"
	"github.com/warp/tutoring-ledger/payout"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	router  http.Handler
	events  *notify.Recorder
	metrics *notify.Metrics
	now     time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		events:  &notify.Recorder{},
		metrics: notify.NewMetrics(),
		now:     time.Date(2025, time.March, 31, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return ts.now }
	repo := store.NewMemory()

	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}

	bus := notify.NewBus(zerolog.Nop(), ts.metrics)
	bus.Subscribe("*", func(ctx context.Context, e ledger.Event) error {
		ts.events.Publish(ctx, e)
		return nil
	})

	invoices := invoice.NewService(repo, bus, invoice.DefaultPolicy(), zerolog.Nop())
	invoices.Clock = clock
	invoices.NewID = newID
	payouts := payout.NewService(repo, bus, payout.DefaultPolicy(), zerolog.Nop())
	payouts.Clock = clock
	payouts.NewID = newID

	h := api.NewHandler(invoices, payouts, zerolog.Nop())
	h.Clock = clock
	ts.router = api.NewRouter(h, api.RouterOptions{Metrics: ts.metrics.Handler()})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func invoiceRequest() map[string]any {
	return map[string]any{
		"payer_id": "p1",
		"period":   "2025-03",
		"line_items": []map[string]any{{
			"session_id":       "sess-1",
			"student_id":       "st-1",
			"teacher_id":       "t1",
			"held_at":          "2025-03-12T15:00:00Z",
			"hourly_rate":      75000,
			"duration_minutes": 60,
		}},
	}
}

func payoutRequest() map[string]any {
	sessions := make([]map[string]any, 8)
	for i := range sessions {
		sessions[i] = map[string]any{
			"session_id":       fmt.Sprintf("sess-%d", i+1),
			"hourly_rate":      30000,
			"duration_minutes": 60,
		}
	}
	return map[string]any{
		"teacher_id": "t1",
		"period":     "2025-03",
		"sessions":   sessions,
		"bonuses":    []map[string]any{{"type": "performance", "amount": 50000, "reason": "exam results"}},
	}
}

func (ts *testServer) generate(t *testing.T) api.InvoiceDTO {
	t.Helper()
	rec := ts.do(t, "POST", "/api/invoices", invoiceRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[api.InvoiceDTO](t, rec)
}

func (ts *testServer) sent(t *testing.T) api.InvoiceDTO {
	t.Helper()
	inv := ts.generate(t)
	rec := ts.do(t, "POST", "/api/invoices/"+inv.ID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[api.InvoiceDTO](t, rec)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestGenerateInvoice(t *testing.T) {
	ts := newTestServer(t)

	inv := ts.generate(t)

	assert.Equal(t, "INV-p1-202503-001", inv.Number)
	assert.Equal(t, "generated", inv.Status)
	assert.Equal(t, int64(75000), inv.Total)
	assert.Equal(t, int64(75000), inv.AmountDue)
	assert.Equal(t, "750.00 EUR", inv.TotalDisplay)
	assert.Equal(t, "2025-03", inv.Period)
	assert.Equal(t, "2024-2025", inv.AcademicYear)
	assert.Equal(t, []string{"st-1"}, inv.BeneficiaryIDs)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, int64(75000), inv.LineItems[0].Amount)
	assert.False(t, inv.IsOverdue)
}

func TestGenerateInvoice_TaxDiscountAndDueDate(t *testing.T) {
	ts := newTestServer(t)
	req := invoiceRequest()
	req["tax_rate"] = 20
	req["discount_rate"] = "10"
	req["due_date"] = "2025-04-30"

	rec := ts.do(t, "POST", "/api/invoices", req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decodeBody[api.InvoiceDTO](t, rec)
	assert.Equal(t, int64(7500), inv.DiscountAmount)
	assert.Equal(t, int64(13500), inv.TaxAmount)
	assert.Equal(t, int64(81000), inv.Total)
	assert.True(t, strings.HasPrefix(inv.DueDate, "2025-04-30T23:59:59"), inv.DueDate)
}

func TestGenerateInvoice_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.generate(t)

	badPeriod := invoiceRequest()
	badPeriod["period"] = "March"
	noPayer := invoiceRequest()
	noPayer["payer_id"] = ""
	badDue := invoiceRequest()
	badDue["due_date"] = "30/04/2025"
	zeroTotal := invoiceRequest()
	zeroTotal["payer_id"] = "p2"
	zeroTotal["discount_rate"] = 100
	badHeldAt := invoiceRequest()
	badHeldAt["line_items"] = []map[string]any{{"session_id": "s", "hourly_rate": 1, "duration_minutes": 60, "held_at": "yesterday"}}

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"duplicate period", invoiceRequest(), http.StatusConflict},
		{"bad period", badPeriod, http.StatusBadRequest},
		{"missing payer", noPayer, http.StatusBadRequest},
		{"bad due date", badDue, http.StatusBadRequest},
		{"zero total", zeroTotal, http.StatusBadRequest},
		{"bad held_at", badHeldAt, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "POST", "/api/invoices", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeBody[api.ErrorResponse](t, rec)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGetInvoice_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/invoices/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentFlow(t *testing.T) {
	// GIVEN: a sent invoice of 750.00
	ts := newTestServer(t)
	inv := ts.sent(t)
	path := "/api/invoices/" + inv.ID + "/payments"

	// WHEN: paying 300.00
	rec := ts.do(t, "POST", path, map[string]any{"amount": 30000, "method": "cash"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	partial := decodeBody[api.InvoiceDTO](t, rec)
	assert.Equal(t, "sent", partial.Status)
	assert.Equal(t, int64(45000), partial.AmountDue)

	// WHEN: overpaying
	rec = ts.do(t, "POST", path, map[string]any{"amount": 50000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: paying the rest
	rec = ts.do(t, "POST", path, map[string]any{"amount": 45000, "reference": "TRX-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decodeBody[api.InvoiceDTO](t, rec)

	// THEN
	assert.Equal(t, "paid", paid.Status)
	assert.NotEmpty(t, paid.PaidAt)
	require.Len(t, paid.Payments, 2)
	assert.Equal(t, "TRX-1", paid.Payments[1].Reference)
	assert.Equal(t, 1, ts.events.Count(ledger.EventInvoicePaid))

	rec = ts.do(t, "POST", path, map[string]any{"amount": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, "POST", "/api/invoices/"+inv.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[api.InvoiceDTO](t, rec).Archived)
}

func TestPendingThenPaid(t *testing.T) {
	ts := newTestServer(t)
	inv := ts.sent(t)

	rec := ts.do(t, "POST", "/api/invoices/"+inv.ID+"/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decodeBody[api.InvoiceDTO](t, rec).Status)

	rec = ts.do(t, "POST", "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": 75000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", decodeBody[api.InvoiceDTO](t, rec).Status)
}

func TestDisputeFlow(t *testing.T) {
	ts := newTestServer(t)
	inv := ts.sent(t)
	base := "/api/invoices/" + inv.ID

	rec := ts.do(t, "POST", base+"/dispute", map[string]string{"reason": "hours do not match"})
	require.Equal(t, http.StatusOK, rec.Code)
	disputed := decodeBody[api.InvoiceDTO](t, rec)
	assert.Equal(t, "disputed", disputed.Status)
	require.NotNil(t, disputed.Dispute)
	assert.Equal(t, "hours do not match", disputed.Dispute.Reason)

	rec = ts.do(t, "POST", base+"/payments", map[string]any{"amount": 100})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, "POST", base+"/dispute", map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, "POST", base+"/resolve", map[string]string{"reason": "hours corrected"})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decodeBody[api.InvoiceDTO](t, rec)
	assert.Equal(t, "sent", resolved.Status)
	assert.NotEmpty(t, resolved.Dispute.ResolvedAt)
}

func TestCancelInvoice(t *testing.T) {
	ts := newTestServer(t)
	inv := ts.sent(t)

	rec := ts.do(t, "POST", "/api/invoices/"+inv.ID+"/cancel", map[string]string{"reason": "moved away"})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decodeBody[api.InvoiceDTO](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "moved away", cancelled.CancelReason)

	// the period is free again
	again := ts.generate(t)
	assert.Equal(t, "INV-p1-202503-002", again.Number)
}

func TestListInvoices(t *testing.T) {
	ts := newTestServer(t)
	ts.sent(t)
	other := invoiceRequest()
	other["payer_id"] = "p2"
	require.Equal(t, http.StatusCreated, ts.do(t, "POST", "/api/invoices", other).Code)

	rec := ts.do(t, "GET", "/api/invoices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.InvoiceDTO](t, rec), 2)

	rec = ts.do(t, "GET", "/api/invoices?status=sent,paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sent := decodeBody[[]api.InvoiceDTO](t, rec)
	require.Len(t, sent, 1)
	assert.Equal(t, "p1", sent[0].PayerID)

	rec = ts.do(t, "GET", "/api/invoices?payer_id=p2&period=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.InvoiceDTO](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/invoices?status=lost", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/invoices?period=2025", nil).Code)
}

// =============================================================================
// SWEEP AND AGING
// =============================================================================

func TestTriggerSweep(t *testing.T) {
	// GIVEN: a sent invoice, 10 days after its due date
	ts := newTestServer(t)
	inv := ts.sent(t)
	assert.True(t, strings.HasPrefix(inv.DueDate, "2025-04-15"), inv.DueDate)
	ts.now = time.Date(2025, time.April, 25, 12, 0, 0, 0, time.UTC)

	// WHEN
	rec := ts.do(t, "POST", "/api/admin/sweep", nil)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[api.SweepResponse](t, rec)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.BecameOverdue)
	assert.Equal(t, 1, report.Reminders)

	rec = ts.do(t, "GET", "/api/invoices/"+inv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overdue := decodeBody[api.InvoiceDTO](t, rec)
	assert.Equal(t, "overdue", overdue.Status)
	assert.True(t, overdue.IsOverdue)
	assert.Equal(t, 10, overdue.OverdueDays)
	assert.Equal(t, 2, overdue.ReminderCount)

	rec = ts.do(t, "GET", "/api/invoices/"+inv.ID+"/aging", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	aging := decodeBody[api.AgingDTO](t, rec)
	assert.Equal(t, 25, aging.AgeDays)
	assert.Equal(t, "0-30", aging.Bucket)
	assert.Equal(t, 10, aging.OverdueDays)
	assert.Equal(t, int64(75000), aging.AmountDue)
}

// =============================================================================
// PAYOUTS
// =============================================================================

func TestPayoutFlow(t *testing.T) {
	// GIVEN: 8 sessions of 300.00 and a 500.00 bonus
	ts := newTestServer(t)

	// WHEN: calculated
	rec := ts.do(t, "POST", "/api/payouts", payoutRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[api.PayoutDTO](t, rec)

	// THEN: 10% tax and 5% social on 2900.00
	assert.Equal(t, "PAY-t1-202503-001", p.Number)
	assert.Equal(t, int64(240000), p.BaseAmount)
	assert.Equal(t, int64(290000), p.GrossAmount)
	assert.Equal(t, int64(29000), p.TaxAmount)
	assert.Equal(t, int64(14500), p.SocialAmount)
	assert.Equal(t, int64(246500), p.NetAmount)
	assert.Equal(t, "2 465.00 EUR", p.NetDisplay)

	base := "/api/payouts/" + p.ID
	rec = ts.do(t, "POST", base+"/deductions", map[string]any{"type": "lateness", "amount": 10000, "reason": "late twice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(280000), decodeBody[api.PayoutDTO](t, rec).GrossAmount)

	rec = ts.do(t, "POST", base+"/process", map[string]string{"reference": "VIR-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, "POST", base+"/validate", map[string]string{"validator": "director"})
	require.Equal(t, http.StatusOK, rec.Code)
	validated := decodeBody[api.PayoutDTO](t, rec)
	assert.Equal(t, "validated", validated.Status)
	assert.Equal(t, "payslip:PAY-t1-202503-001", validated.PayslipRef)

	rec = ts.do(t, "POST", base+"/bonuses", map[string]any{"amount": 100})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, "POST", base+"/process", map[string]string{"method": "bank_transfer"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", base+"/process", map[string]string{"method": "bank_transfer", "reference": "VIR-2025-04"})
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decodeBody[api.PayoutDTO](t, rec)
	assert.Equal(t, "paid", paid.Status)
	assert.Equal(t, "VIR-2025-04", paid.PaymentReference)

	rec = ts.do(t, "POST", base+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCalculatePayout_Errors(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, "POST", "/api/payouts", payoutRequest()).Code)

	noSessions := payoutRequest()
	noSessions["teacher_id"] = "t2"
	noSessions["sessions"] = []map[string]any{}
	badPeriod := payoutRequest()
	badPeriod["period"] = "2025-3-1"
	badRate := payoutRequest()
	badRate["teacher_id"] = "t3"
	badRate["tax_rate"] = "150"

	assert.Equal(t, http.StatusConflict, ts.do(t, "POST", "/api/payouts", payoutRequest()).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "POST", "/api/payouts", noSessions).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "POST", "/api/payouts", badPeriod).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "POST", "/api/payouts", badRate).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", "/api/payouts/missing", nil).Code)
}

func TestRejectPayout_AllowsRecalculation(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "POST", "/api/payouts", payoutRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decodeBody[api.PayoutDTO](t, rec)

	rec = ts.do(t, "POST", "/api/payouts/"+p.ID+"/reject", map[string]string{"reason": "wrong sessions"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decodeBody[api.PayoutDTO](t, rec).Status)

	rec = ts.do(t, "POST", "/api/payouts", payoutRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "PAY-t1-202503-002", decodeBody[api.PayoutDTO](t, rec).Number)

	rec = ts.do(t, "GET", "/api/payouts?teacher_id=t1&status=calculated", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.PayoutDTO](t, rec), 1)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/payouts?status=lost", nil).Code)
}

func TestPayoutAdjustments_UnknownType(t *testing.T) {
	ts := newTestServer(t)

	gift := payoutRequest()
	gift["bonuses"] = []map[string]any{{"type": "gift", "amount": 1000}}
	rec := ts.do(t, "POST", "/api/payouts", gift)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = ts.do(t, "POST", "/api/payouts", payoutRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[api.PayoutDTO](t, rec)

	rec = ts.do(t, "POST", "/api/payouts/"+p.ID+"/bonuses", map[string]any{"type": "gift", "amount": 1000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, "POST", "/api/payouts/"+p.ID+"/deductions", map[string]any{"type": "fine", "amount": 1000, "reason": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/payouts/"+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(246500), decodeBody[api.PayoutDTO](t, rec).NetAmount)
}

func TestSuspendPayout(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "POST", "/api/payouts", payoutRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decodeBody[api.PayoutDTO](t, rec)

	rec = ts.do(t, "POST", "/api/payouts/"+p.ID+"/suspend", map[string]string{"reason": "contract review"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "POST", "/api/payouts/"+p.ID+"/suspend", map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, "POST", "/api/payouts", payoutRequest()).Code)
}

// =============================================================================
// STATISTICS AND INFRASTRUCTURE
// =============================================================================

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	inv := ts.sent(t)
	require.Equal(t, http.StatusOK, ts.do(t, "POST", "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": 75000}).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, "POST", "/api/payouts", payoutRequest()).Code)

	rec := ts.do(t, "GET", "/api/stats/invoices?top=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var invoiceStats struct {
		Count       int    `json:"count"`
		Billed      int64  `json:"billed"`
		PaymentRate string `json:"payment_rate"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&invoiceStats))
	assert.Equal(t, 1, invoiceStats.Count)
	assert.Equal(t, int64(75000), invoiceStats.Billed)
	assert.Equal(t, "100", invoiceStats.PaymentRate)

	rec = ts.do(t, "GET", "/api/stats/payouts?period=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payoutStats struct {
		Count int   `json:"count"`
		Net   int64 `json:"net"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payoutStats))
	assert.Equal(t, 1, payoutStats.Count)
	assert.Equal(t, int64(246500), payoutStats.Net)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/stats/invoices?top=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/stats/payouts?period=x", nil).Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.generate(t)

	rec := ts.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = ts.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tutorledger_events_total{kind="invoice.generated"} 1`)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://office.example.com")
	rec := httptest.NewRecorder()

	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
