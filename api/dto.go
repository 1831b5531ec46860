/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract: amounts stay integer
  minor units, dates are RFC3339 strings, periods are "YYYY-MM", and values
  that depend on the clock (overdue days, age) are computed at read time.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Invoices:
    GenerateInvoiceRequest, RecordPaymentRequest, InvoiceDTO, AgingDTO

  Payouts:
    CalculatePayoutRequest, AdjustmentRequest, ValidatePayoutRequest,
    ProcessPayoutRequest, PayoutDTO

  Shared:
    SessionChargeDTO, ReasonRequest, SweepResponse, ErrorResponse

VALIDATION:
  Validation is done by the engines, not in DTOs. DTOs are pure data carriers;
  handlers only parse dates and periods.

SEE ALSO:
  - handlers.go: Uses these types
  - invoice/invoice.go, payout/payment.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
	"github.com/warp/tutoring-ledger/stats"
)

// =============================================================================
// SHARED
// =============================================================================

// SessionChargeDTO is one validated session, used both as an invoice line
// item and as a payout session. Amount is computed server-side.
type SessionChargeDTO struct {
	SessionID       string `json:"session_id"`
	StudentID       string `json:"student_id,omitempty"`
	TeacherID       string `json:"teacher_id,omitempty"`
	Subject         string `json:"subject,omitempty"`
	HeldAt          string `json:"held_at,omitempty"` // RFC3339
	HourlyRate      int64  `json:"hourly_rate"`
	DurationMinutes int    `json:"duration_minutes"`
	Amount          int64  `json:"amount,omitempty"`
}

// ReasonRequest carries the free-text reason of cancel, dispute, reject,
// suspend and resolve operations.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// SweepResponse reports an overdue sweep.
type SweepResponse struct {
	Checked       int    `json:"checked"`
	BecameOverdue int    `json:"became_overdue"`
	Reminders     int    `json:"reminders"`
	Conflicts     int    `json:"conflicts"`
	RanAt         string `json:"ran_at"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// INVOICES
// =============================================================================

// GenerateInvoiceRequest bills a payer for one month.
type GenerateInvoiceRequest struct {
	PayerID        string             `json:"payer_id"`
	BeneficiaryIDs []string           `json:"beneficiary_ids,omitempty"`
	Period         string             `json:"period"` // YYYY-MM
	LineItems      []SessionChargeDTO `json:"line_items"`
	TaxRate        *decimal.Decimal   `json:"tax_rate,omitempty"`
	DiscountRate   *decimal.Decimal   `json:"discount_rate,omitempty"`
	DueDate        string             `json:"due_date,omitempty"` // YYYY-MM-DD
}

// RecordPaymentRequest records money received from a payer.
type RecordPaymentRequest struct {
	ID        string `json:"id,omitempty"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// PaymentRecordDTO is one payment received against an invoice.
type PaymentRecordDTO struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Method     string `json:"method"`
	Reference  string `json:"reference,omitempty"`
	ReceivedAt string `json:"received_at"`
}

// DisputeDTO is the payer's objection to an invoice.
type DisputeDTO struct {
	Reason     string `json:"reason"`
	OpenedAt   string `json:"opened_at"`
	ResolvedAt string `json:"resolved_at,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// InvoiceDTO represents an invoice in API responses.
type InvoiceDTO struct {
	ID             string   `json:"id"`
	Number         string   `json:"number"`
	PayerID        string   `json:"payer_id"`
	BeneficiaryIDs []string `json:"beneficiary_ids"`
	Period         string   `json:"period"`
	AcademicYear   string   `json:"academic_year"`
	Status         string   `json:"status"`
	Currency       string   `json:"currency"`

	Subtotal       int64  `json:"subtotal"`
	DiscountRate   string `json:"discount_rate"`
	DiscountAmount int64  `json:"discount_amount"`
	TaxRate        string `json:"tax_rate"`
	TaxAmount      int64  `json:"tax_amount"`
	Total          int64  `json:"total"`
	AmountPaid     int64  `json:"amount_paid"`
	AmountDue      int64  `json:"amount_due"`
	TotalDisplay   string `json:"total_display"`

	LineItems []SessionChargeDTO `json:"line_items"`
	Payments  []PaymentRecordDTO `json:"payments"`
	Dispute   *DisputeDTO        `json:"dispute,omitempty"`

	CreatedAt     string `json:"created_at"`
	SentAt        string `json:"sent_at,omitempty"`
	PaidAt        string `json:"paid_at,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	DueDate       string `json:"due_date"`
	IsOverdue     bool   `json:"is_overdue"`
	OverdueDays   int    `json:"overdue_days"`
	ReminderCount int    `json:"reminder_count"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	Archived      bool   `json:"archived"`
	Version       int64  `json:"version"`
}

// AgingDTO is the aging view of one invoice.
type AgingDTO struct {
	InvoiceID   string `json:"invoice_id"`
	Number      string `json:"number"`
	Status      string `json:"status"`
	AgeDays     int    `json:"age_days"`
	Bucket      string `json:"bucket"`
	DueDate     string `json:"due_date"`
	IsOverdue   bool   `json:"is_overdue"`
	OverdueDays int    `json:"overdue_days"`
	AmountDue   int64  `json:"amount_due"`
}

// =============================================================================
// PAYOUTS
// =============================================================================

// CalculatePayoutRequest computes a teacher's pay for one month. Nil rates
// fall back to the configured payroll policy.
type CalculatePayoutRequest struct {
	TeacherID  string              `json:"teacher_id"`
	Period     string              `json:"period"` // YYYY-MM
	Sessions   []SessionChargeDTO  `json:"sessions"`
	TaxRate    *decimal.Decimal    `json:"tax_rate,omitempty"`
	SocialRate *decimal.Decimal    `json:"social_rate,omitempty"`
	Bonuses    []AdjustmentRequest `json:"bonuses,omitempty"`
	Deductions []AdjustmentRequest `json:"deductions,omitempty"`
}

// AdjustmentRequest is a manual bonus or deduction.
type AdjustmentRequest struct {
	Type      string `json:"type,omitempty"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
	AwardedBy string `json:"awarded_by,omitempty"`
}

// ValidatePayoutRequest approves a calculated payout.
type ValidatePayoutRequest struct {
	Validator string `json:"validator"`
}

// ProcessPayoutRequest records the transfer of a validated payout.
type ProcessPayoutRequest struct {
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference"`
}

// PayoutDTO represents a teacher payment in API responses. Amounts are
// derived from the stored inputs on every read.
type PayoutDTO struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	TeacherID    string `json:"teacher_id"`
	Period       string `json:"period"`
	AcademicYear string `json:"academic_year"`
	Status       string `json:"status"`
	Currency     string `json:"currency"`

	SessionCount int                `json:"session_count"`
	TotalMinutes int                `json:"total_minutes"`
	Sessions     []SessionChargeDTO `json:"sessions"`
	Bonuses      []payout.Bonus     `json:"bonuses"`
	Deductions   []payout.Deduction `json:"deductions"`

	BaseAmount      int64  `json:"base_amount"`
	TotalBonuses    int64  `json:"total_bonuses"`
	TotalDeductions int64  `json:"total_deductions"`
	GrossAmount     int64  `json:"gross_amount"`
	TaxRate         string `json:"tax_rate"`
	TaxAmount       int64  `json:"tax_amount"`
	SocialRate      string `json:"social_rate"`
	SocialAmount    int64  `json:"social_amount"`
	NetAmount       int64  `json:"net_amount"`
	NetDisplay      string `json:"net_display"`

	CalculatedAt     string `json:"calculated_at"`
	ValidatedAt      string `json:"validated_at,omitempty"`
	ValidatedBy      string `json:"validated_by,omitempty"`
	PayslipRef       string `json:"payslip_ref,omitempty"`
	PaidAt           string `json:"paid_at,omitempty"`
	PaymentMethod    string `json:"payment_method,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Archived         bool   `json:"archived"`
	Version          int64  `json:"version"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSessionCharge(dto SessionChargeDTO) (ledger.SessionCharge, error) {
	c := ledger.SessionCharge{
		SessionID:       dto.SessionID,
		StudentID:       dto.StudentID,
		TeacherID:       dto.TeacherID,
		Subject:         dto.Subject,
		HourlyRate:      ledger.Money(dto.HourlyRate),
		DurationMinutes: dto.DurationMinutes,
	}
	if dto.HeldAt != "" {
		t, err := time.Parse(time.RFC3339, dto.HeldAt)
		if err != nil {
			return ledger.SessionCharge{}, &ledger.ValidationError{Field: "held_at", Message: "expected RFC3339 timestamp"}
		}
		c.HeldAt = t.UTC()
	}
	c.Amount = c.ComputedAmount()
	return c, nil
}

func toSessionCharges(dtos []SessionChargeDTO) ([]ledger.SessionCharge, error) {
	out := make([]ledger.SessionCharge, 0, len(dtos))
	for _, dto := range dtos {
		c, err := toSessionCharge(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func toSessionChargeDTOs(charges []ledger.SessionCharge) []SessionChargeDTO {
	out := make([]SessionChargeDTO, len(charges))
	for i, c := range charges {
		out[i] = SessionChargeDTO{
			SessionID:       c.SessionID,
			StudentID:       c.StudentID,
			TeacherID:       c.TeacherID,
			Subject:         c.Subject,
			HeldAt:          formatTime(c.HeldAt),
			HourlyRate:      int64(c.HourlyRate),
			DurationMinutes: c.DurationMinutes,
			Amount:          int64(c.Amount),
		}
	}
	return out
}

func toInvoiceDTO(inv invoice.Invoice, now time.Time) InvoiceDTO {
	dto := InvoiceDTO{
		ID:             inv.ID,
		Number:         inv.Number,
		PayerID:        inv.PayerID,
		BeneficiaryIDs: append([]string{}, inv.BeneficiaryIDs...),
		Period:         inv.Period.String(),
		AcademicYear:   inv.AcademicYear,
		Status:         string(inv.Status),
		Currency:       inv.Currency,
		Subtotal:       int64(inv.Subtotal),
		DiscountRate:   inv.DiscountRate.String(),
		DiscountAmount: int64(inv.DiscountAmount),
		TaxRate:        inv.TaxRate.String(),
		TaxAmount:      int64(inv.TaxAmount),
		Total:          int64(inv.Total),
		AmountPaid:     int64(inv.AmountPaid),
		AmountDue:      int64(inv.AmountDue),
		TotalDisplay:   ledger.FormatMoney(inv.Total, inv.Currency),
		LineItems:      toSessionChargeDTOs(inv.LineItems),
		Payments:       make([]PaymentRecordDTO, len(inv.Payments)),
		CreatedAt:      formatTime(inv.Timeline.CreatedAt),
		SentAt:         formatTimePtr(inv.Timeline.SentAt),
		PaidAt:         formatTimePtr(inv.Timeline.PaidAt),
		CancelledAt:    formatTimePtr(inv.Timeline.CancelledAt),
		DueDate:        formatTime(inv.DueDate),
		IsOverdue:      inv.EvaluateOverdue(now),
		OverdueDays:    inv.OverdueDays(now),
		ReminderCount:  inv.ReminderCount,
		CancelReason:   inv.CancelReason,
		Archived:       inv.Archived,
		Version:        inv.Version,
	}
	if !dto.IsOverdue {
		dto.OverdueDays = 0
	}
	for i, p := range inv.Payments {
		dto.Payments[i] = PaymentRecordDTO{
			ID:         p.ID,
			Amount:     int64(p.Amount),
			Method:     string(p.Method),
			Reference:  p.Reference,
			ReceivedAt: formatTime(p.ReceivedAt),
		}
	}
	if inv.Dispute != nil {
		dto.Dispute = &DisputeDTO{
			Reason:     inv.Dispute.Reason,
			OpenedAt:   formatTime(inv.Dispute.OpenedAt),
			ResolvedAt: formatTimePtr(inv.Dispute.ResolvedAt),
			Resolution: inv.Dispute.Resolution,
		}
	}
	return dto
}

func toAgingDTO(inv invoice.Invoice, now time.Time) AgingDTO {
	age := inv.AgeDays(now)
	overdue := inv.EvaluateOverdue(now)
	dto := AgingDTO{
		InvoiceID: inv.ID,
		Number:    inv.Number,
		Status:    string(inv.Status),
		AgeDays:   age,
		Bucket:    stats.BucketFor(age),
		DueDate:   formatTime(inv.DueDate),
		IsOverdue: overdue,
		AmountDue: int64(inv.AmountDue),
	}
	if overdue {
		dto.OverdueDays = inv.OverdueDays(now)
	}
	return dto
}

func toPayoutDTO(p payout.Payment) PayoutDTO {
	w := p.Withholding()
	return PayoutDTO{
		ID:               p.ID,
		Number:           p.Number,
		TeacherID:        p.TeacherID,
		Period:           p.Period.String(),
		AcademicYear:     p.AcademicYear,
		Status:           string(p.Status),
		Currency:         p.Currency,
		SessionCount:     p.SessionCount(),
		TotalMinutes:     p.TotalMinutes(),
		Sessions:         toSessionChargeDTOs(p.Sessions),
		Bonuses:          append([]payout.Bonus{}, p.Bonuses...),
		Deductions:       append([]payout.Deduction{}, p.Deductions...),
		BaseAmount:       int64(w.Base),
		TotalBonuses:     int64(w.Bonuses),
		TotalDeductions:  int64(w.Deductions),
		GrossAmount:      int64(w.Gross),
		TaxRate:          p.TaxRate.String(),
		TaxAmount:        int64(w.Tax),
		SocialRate:       p.SocialRate.String(),
		SocialAmount:     int64(w.Social),
		NetAmount:        int64(w.Net),
		NetDisplay:       ledger.FormatMoney(w.Net, p.Currency),
		CalculatedAt:     formatTime(p.CalculatedAt),
		ValidatedAt:      formatTimePtr(p.ValidatedAt),
		ValidatedBy:      p.ValidatedBy,
		PayslipRef:       p.PayslipRef,
		PaidAt:           formatTimePtr(p.PaidAt),
		PaymentMethod:    p.PaymentMethod,
		PaymentReference: p.PaymentReference,
		Reason:           p.Reason,
		Archived:         p.Archived,
		Version:          p.Version,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
