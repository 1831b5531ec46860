/*
handlers.go - HTTP API handlers for the billing and payroll ledger

PURPOSE:
  Exposes the invoice and payout engines via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the services.

ENDPOINTS:
  Invoices:
    POST   /api/invoices                  Generate an invoice for payer+period
    GET    /api/invoices                  List (payer_id, status, period, include_archived)
    GET    /api/invoices/{id}             Get invoice details
    POST   /api/invoices/{id}/send        generated → sent
    POST   /api/invoices/{id}/pending     sent → pending
    POST   /api/invoices/{id}/payments    Record a payment
    POST   /api/invoices/{id}/cancel      Cancel with reason
    POST   /api/invoices/{id}/dispute     Open a dispute
    POST   /api/invoices/{id}/resolve     Resolve the open dispute
    POST   /api/invoices/{id}/archive     Archive a paid/cancelled invoice
    GET    /api/invoices/{id}/aging       Aging view

  Payouts:
    POST   /api/payouts                   Calculate a teacher payment
    GET    /api/payouts                   List (teacher_id, status, period, include_archived)
    GET    /api/payouts/{id}              Get payment details
    POST   /api/payouts/{id}/bonuses      Add a bonus (calculated only)
    POST   /api/payouts/{id}/deductions   Add a deduction (calculated only)
    POST   /api/payouts/{id}/validate     calculated → validated
    POST   /api/payouts/{id}/process      validated → paid
    POST   /api/payouts/{id}/reject       Reject with reason
    POST   /api/payouts/{id}/suspend      Suspend with reason
    POST   /api/payouts/{id}/archive      Archive a terminal payment

  Statistics:
    GET    /api/stats/invoices            Invoice portfolio statistics
    GET    /api/stats/payouts             Payroll statistics

  Admin:
    POST   /api/admin/sweep               Run the overdue sweep now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid amounts, missing references, no sessions
  - 404: Invoice or payment not found
  - 409: Invalid state, duplicate period, open dispute, concurrent modification
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Account management belongs to the
  surrounding application.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/errors.go: Error kinds
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
	"github.com/warp/tutoring-ledger/stats"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Invoices *invoice.Service
	Payouts  *payout.Service

	// DefaultTaxRate applies to invoices generated without a tax_rate.
	DefaultTaxRate decimal.Decimal

	Clock  ledger.Clock
	Logger zerolog.Logger
}

// NewHandler creates a new handler over the two services.
func NewHandler(invoices *invoice.Service, payouts *payout.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		Invoices:       invoices,
		Payouts:        payouts,
		DefaultTaxRate: decimal.Zero,
		Clock:          ledger.UTCNow,
		Logger:         logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GenerateInvoice bills a payer for one period.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoiceRequest
	if !decode(w, r, &req) {
		return
	}

	period, err := ledger.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}
	items, err := toSessionCharges(req.LineItems)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid line item", err)
		return
	}

	in := invoice.GenerateInput{
		PayerID:        req.PayerID,
		BeneficiaryIDs: req.BeneficiaryIDs,
		Period:         period,
		LineItems:      items,
		TaxRate:        h.DefaultTaxRate,
	}
	if req.TaxRate != nil {
		in.TaxRate = *req.TaxRate
	}
	if req.DiscountRate != nil {
		in.DiscountRate = *req.DiscountRate
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
			return
		}
		due = ledger.EndOfDay(due)
		in.DueDate = &due
	}

	inv, err := h.Invoices.Generate(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to generate invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv, h.Clock()))
}

// ListInvoices returns invoices matching the query filters.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := invoice.Filter{
		PayerID:         q.Get("payer_id"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	for _, s := range splitQuery(q.Get("status")) {
		status := invoice.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Unknown invoice status "+strconv.Quote(s), nil)
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if p := q.Get("period"); p != "" {
		period, err := ledger.ParsePeriod(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
		filter.Period = &period
	}

	invs, err := h.Invoices.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list invoices", err)
		return
	}

	now := h.Clock()
	dtos := make([]InvoiceDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvoiceDTO(inv, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns a single invoice.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv, h.Clock()))
}

// GetInvoiceAging returns the aging view of a single invoice.
func (h *Handler) GetInvoiceAging(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgingDTO(*inv, h.Clock()))
}

// SendInvoice marks an invoice as delivered to the payer.
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceOp(w, r, "Failed to send invoice", h.Invoices.MarkSent)
}

// MarkInvoicePending records a payment announced by the payer.
func (h *Handler) MarkInvoicePending(w http.ResponseWriter, r *http.Request) {
	h.invoiceOp(w, r, "Failed to mark invoice pending", h.Invoices.MarkPending)
}

// ArchiveInvoice hides a paid or cancelled invoice.
func (h *Handler) ArchiveInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceOp(w, r, "Failed to archive invoice", h.Invoices.Archive)
}

// RecordPayment applies a payment to an invoice.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !decode(w, r, &req) {
		return
	}

	inv, err := h.Invoices.RecordPayment(r.Context(), chi.URLParam(r, "id"), invoice.PaymentInput{
		ID:        req.ID,
		Amount:    ledger.Money(req.Amount),
		Method:    invoice.PaymentMethod(req.Method),
		Reference: req.Reference,
	})
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv, h.Clock()))
}

// CancelInvoice voids an invoice.
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceReasonOp(w, r, "Failed to cancel invoice", h.Invoices.Cancel)
}

// OpenDispute puts an invoice on hold.
func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	h.invoiceReasonOp(w, r, "Failed to open dispute", h.Invoices.OpenDispute)
}

// ResolveDispute closes an invoice's open dispute.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	h.invoiceReasonOp(w, r, "Failed to resolve dispute", h.Invoices.ResolveDispute)
}

// =============================================================================
// PAYOUT HANDLERS
// =============================================================================

// CalculatePayout computes a teacher's payment for one period.
func (h *Handler) CalculatePayout(w http.ResponseWriter, r *http.Request) {
	var req CalculatePayoutRequest
	if !decode(w, r, &req) {
		return
	}

	period, err := ledger.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}
	sessions, err := toSessionCharges(req.Sessions)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session", err)
		return
	}

	calc := payout.CalculateRequest{
		TeacherID:  req.TeacherID,
		Period:     period,
		Sessions:   sessions,
		TaxRate:    req.TaxRate,
		SocialRate: req.SocialRate,
	}
	for _, b := range req.Bonuses {
		calc.Bonuses = append(calc.Bonuses, toBonus(b))
	}
	for _, d := range req.Deductions {
		calc.Deductions = append(calc.Deductions, toDeduction(d))
	}

	p, err := h.Payouts.Calculate(r.Context(), calc)
	if err != nil {
		h.fail(w, r, "Failed to calculate payout", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayoutDTO(*p))
}

// ListPayouts returns payments matching the query filters.
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payout.Filter{
		TeacherID:       q.Get("teacher_id"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	for _, s := range splitQuery(q.Get("status")) {
		status := payout.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Unknown payout status "+strconv.Quote(s), nil)
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if p := q.Get("period"); p != "" {
		period, err := ledger.ParsePeriod(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
		filter.Period = &period
	}

	ps, err := h.Payouts.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list payouts", err)
		return
	}
	dtos := make([]PayoutDTO, len(ps))
	for i, p := range ps {
		dtos[i] = toPayoutDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayout returns a single payment.
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payouts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get payout", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// AddBonus adds a manual bonus to a calculated payment.
func (h *Handler) AddBonus(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Payouts.AddBonus(r.Context(), chi.URLParam(r, "id"), toBonus(req))
	if err != nil {
		h.fail(w, r, "Failed to add bonus", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// AddDeduction adds a manual deduction to a calculated payment.
func (h *Handler) AddDeduction(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Payouts.AddDeduction(r.Context(), chi.URLParam(r, "id"), toDeduction(req))
	if err != nil {
		h.fail(w, r, "Failed to add deduction", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// ValidatePayout approves a calculated payment.
func (h *Handler) ValidatePayout(w http.ResponseWriter, r *http.Request) {
	var req ValidatePayoutRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Payouts.Validate(r.Context(), chi.URLParam(r, "id"), req.Validator)
	if err != nil {
		h.fail(w, r, "Failed to validate payout", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// ProcessPayout records the transfer of a validated payment.
func (h *Handler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	var req ProcessPayoutRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Payouts.Process(r.Context(), chi.URLParam(r, "id"), req.Method, req.Reference)
	if err != nil {
		h.fail(w, r, "Failed to process payout", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// RejectPayout ends a payment for this cycle.
func (h *Handler) RejectPayout(w http.ResponseWriter, r *http.Request) {
	h.payoutReasonOp(w, r, "Failed to reject payout", h.Payouts.Reject)
}

// SuspendPayout puts a payment on hold for this cycle.
func (h *Handler) SuspendPayout(w http.ResponseWriter, r *http.Request) {
	h.payoutReasonOp(w, r, "Failed to suspend payout", h.Payouts.Suspend)
}

// ArchivePayout hides a terminal payment.
func (h *Handler) ArchivePayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payouts.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to archive payout", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// =============================================================================
// STATISTICS AND ADMIN
// =============================================================================

// InvoiceStats aggregates every invoice, archived ones included.
func (h *Handler) InvoiceStats(w http.ResponseWriter, r *http.Request) {
	topN, ok := topParam(w, r)
	if !ok {
		return
	}
	invs, err := h.Invoices.List(r.Context(), invoice.Filter{IncludeArchived: true})
	if err != nil {
		h.fail(w, r, "Failed to load invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Invoices(invs, h.Clock(), topN))
}

// PayoutStats aggregates every payment, archived ones included.
func (h *Handler) PayoutStats(w http.ResponseWriter, r *http.Request) {
	topN, ok := topParam(w, r)
	if !ok {
		return
	}
	filter := payout.Filter{IncludeArchived: true}
	if p := r.URL.Query().Get("period"); p != "" {
		period, err := ledger.ParsePeriod(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
		filter.Period = &period
	}
	ps, err := h.Payouts.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to load payouts", err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Payouts(ps, topN))
}

// TriggerSweep runs the overdue sweep immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	now := h.Clock()
	report, err := h.Invoices.Sweep(r.Context(), now)
	if err != nil {
		h.fail(w, r, "Failed to run sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepResponse(report, now))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) invoiceOp(w http.ResponseWriter, r *http.Request, message string,
	op func(ctx context.Context, id string) (*invoice.Invoice, error)) {
	inv, err := op(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv, h.Clock()))
}

func (h *Handler) invoiceReasonOp(w http.ResponseWriter, r *http.Request, message string,
	op func(ctx context.Context, id, reason string) (*invoice.Invoice, error)) {
	var req ReasonRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := op(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv, h.Clock()))
}

func (h *Handler) payoutReasonOp(w http.ResponseWriter, r *http.Request, message string,
	op func(ctx context.Context, id, reason string) (*payout.Payment, error)) {
	var req ReasonRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := op(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// fail maps a service error to its status code and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg(message)
	}
	writeError(w, status, message, err)
}

// errorStatus maps ledger error kinds to HTTP status codes. Conflicts are
// checked first: a duplicate period also matches ErrValidation.
func errorStatus(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func topParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("top")
	if s == "" {
		return stats.DefaultTopN, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "Invalid top (use a non-negative integer)", err)
		return 0, false
	}
	return n, true
}

func splitQuery(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toBonus(req AdjustmentRequest) payout.Bonus {
	return payout.Bonus{
		Type:      payout.BonusType(req.Type),
		Amount:    ledger.Money(req.Amount),
		Reason:    req.Reason,
		AwardedBy: req.AwardedBy,
	}
}

func toDeduction(req AdjustmentRequest) payout.Deduction {
	return payout.Deduction{
		Type:   payout.DeductionType(req.Type),
		Amount: ledger.Money(req.Amount),
		Reason: req.Reason,
	}
}

func toSweepResponse(report invoice.SweepReport, at time.Time) SweepResponse {
	return SweepResponse{
		Checked:       report.Checked,
		BecameOverdue: report.BecameOverdue,
		Reminders:     report.Reminders,
		Conflicts:     report.Conflicts,
		RanAt:         formatTime(at),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
