/*
invoice.go - Invoice value type and its state machine

PURPOSE:
  An Invoice bills a payer (parent) for the sessions their children took in
  one billing month. Every operation here is a pure method: it checks the
  state machine, returns a NEW Invoice with Version+1 and never touches
  storage or sends notifications. The Service persists and emits events.

STATE MACHINE:
  draft → generated → sent → pending/overdue → paid
  cancelled and disputed are reachable from any non-terminal status.
  paid and cancelled are terminal. See status.go for the table.

MONEY INVARIANTS:
  - Subtotal == Σ line item amounts
  - Total == Subtotal - DiscountAmount + TaxAmount
  - AmountPaid + AmountDue == Total, at every version
  - AmountPaid == Σ confirmed payment amounts, and never decreases

DERIVED, NEVER STORED:
  "is overdue" and "overdue days" depend on the clock, so they are methods
  (EvaluateOverdue, OverdueDays) and not fields.

SEE ALSO:
  - service.go: Repository + event sink orchestration
  - sweep.go: Overdue transition and reminder schedule
  - ledger/money.go: Discount and tax formulas
*/
package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/ledger"
)

// =============================================================================
// INVOICE
// =============================================================================

type Invoice struct {
	ID     string `json:"id"`
	Number string `json:"number"`

	PayerID        string   `json:"payer_id"`
	BeneficiaryIDs []string `json:"beneficiary_ids"`

	Period       ledger.BillingPeriod `json:"period"`
	AcademicYear string               `json:"academic_year"`
	PeriodStart  time.Time            `json:"period_start"`
	PeriodEnd    time.Time            `json:"period_end"`

	Currency       string          `json:"currency"`
	Subtotal       ledger.Money    `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      ledger.Money    `json:"tax_amount"`
	DiscountRate   decimal.Decimal `json:"discount_rate"`
	DiscountAmount ledger.Money    `json:"discount_amount"`
	Total          ledger.Money    `json:"total"`
	AmountPaid     ledger.Money    `json:"amount_paid"`
	AmountDue      ledger.Money    `json:"amount_due"`

	LineItems []ledger.SessionCharge `json:"line_items"`
	Payments  []PaymentRecord        `json:"payments"`

	Status   Status   `json:"status"`
	Timeline Timeline `json:"timeline"`

	DueDate         time.Time  `json:"due_date"`
	GracePeriodDays int        `json:"grace_period_days"`
	ReminderCount   int        `json:"reminder_count"`
	LastReminderAt  *time.Time `json:"last_reminder_at,omitempty"`

	Dispute             *Dispute `json:"dispute,omitempty"`
	StatusBeforeDispute Status   `json:"status_before_dispute,omitempty"`

	CancelReason string     `json:"cancel_reason,omitempty"`
	Archived     bool       `json:"archived"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`

	// Version is the revision counter for optimistic concurrency control.
	// It starts at 1 and every mutation increments it.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Timeline records when each lifecycle step happened. Each field is set at
// most once.
type Timeline struct {
	CreatedAt        time.Time  `json:"created_at"`
	GeneratedAt      *time.Time `json:"generated_at,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	FirstReminderAt  *time.Time `json:"first_reminder_at,omitempty"`
	SecondReminderAt *time.Time `json:"second_reminder_at,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

// PaymentMethod is how a payer settled (part of) an invoice.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCard         PaymentMethod = "card"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCheck        PaymentMethod = "check"
	MethodOther        PaymentMethod = "other"
)

// PaymentRecord is one payment received against an invoice.
type PaymentRecord struct {
	ID         string        `json:"id"`
	Amount     ledger.Money  `json:"amount"`
	Method     PaymentMethod `json:"method"`
	Reference  string        `json:"reference,omitempty"`
	ReceivedAt time.Time     `json:"received_at"`
	Confirmed  bool          `json:"confirmed"`
}

// Dispute holds the payer's objection and how it was settled.
type Dispute struct {
	Reason     string     `json:"reason"`
	OpenedAt   time.Time  `json:"opened_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
}

// IsOpen returns true until the dispute is resolved.
func (d *Dispute) IsOpen() bool { return d != nil && d.ResolvedAt == nil }

// =============================================================================
// GENERATION
// =============================================================================

// GenerateInput is what a caller supplies to bill a payer for a period.
type GenerateInput struct {
	PayerID        string
	BeneficiaryIDs []string
	Period         ledger.BillingPeriod
	LineItems      []ledger.SessionCharge
	TaxRate        decimal.Decimal
	DiscountRate   decimal.Decimal

	// DueDate overrides the policy's payment terms when set.
	DueDate *time.Time
}

// Validate checks the input is well-formed.
func (in GenerateInput) Validate() error {
	if strings.TrimSpace(in.PayerID) == "" {
		return &ledger.ValidationError{Field: "payer_id", Message: "is required"}
	}
	if err := in.Period.Validate(); err != nil {
		return err
	}
	if len(in.LineItems) == 0 {
		return &ledger.ValidationError{Field: "line_items", Message: "at least one line item is required"}
	}
	seen := make(map[string]bool, len(in.LineItems))
	for i, item := range in.LineItems {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i, err)
		}
		if seen[item.SessionID] {
			return &ledger.ValidationError{Field: "line_items", Message: fmt.Sprintf("session %s billed twice", item.SessionID)}
		}
		seen[item.SessionID] = true
	}
	if err := ledger.ValidateRate("tax_rate", in.TaxRate); err != nil {
		return err
	}
	if err := ledger.ValidateRate("discount_rate", in.DiscountRate); err != nil {
		return err
	}
	// A zero total could never be paid.
	if total := in.breakdown(in.items()).Total; !total.IsPositive() {
		return &ledger.InvalidAmountError{Amount: total, Reason: "invoice total must be positive"}
	}
	return nil
}

// items returns the line items with amounts recomputed from rate and duration.
func (in GenerateInput) items() []ledger.SessionCharge {
	items := make([]ledger.SessionCharge, len(in.LineItems))
	for i, item := range in.LineItems {
		item.Amount = item.ComputedAmount()
		items[i] = item
	}
	return items
}

func (in GenerateInput) breakdown(items []ledger.SessionCharge) ledger.Breakdown {
	return ledger.ApplyDiscountThenTax(ledger.TotalAmount(items), in.DiscountRate, in.TaxRate)
}

// Generate builds a new invoice in status generated. The caller supplies the
// ID and number; the duplicate-period check belongs to the Service because
// it needs the repository.
func Generate(in GenerateInput, id, number string, policy Policy, at time.Time) (Invoice, error) {
	if err := in.Validate(); err != nil {
		return Invoice{}, err
	}

	items := in.items()
	breakdown := in.breakdown(items)

	beneficiaries := in.BeneficiaryIDs
	if len(beneficiaries) == 0 {
		beneficiaries = studentsOf(items)
	}

	due := ledger.DueDate(at, policy.PaymentTermDays)
	if in.DueDate != nil {
		due = in.DueDate.UTC()
	}

	inv := Invoice{
		ID:              id,
		Number:          number,
		PayerID:         in.PayerID,
		BeneficiaryIDs:  append([]string(nil), beneficiaries...),
		Period:          in.Period,
		AcademicYear:    in.Period.AcademicYearLabel(policy.AcademicYearStartMonth),
		PeriodStart:     in.Period.Start(),
		PeriodEnd:       in.Period.End(),
		Currency:        policy.Currency,
		Subtotal:        breakdown.Subtotal,
		TaxRate:         in.TaxRate,
		TaxAmount:       breakdown.Tax,
		DiscountRate:    in.DiscountRate,
		DiscountAmount:  breakdown.Discount,
		Total:           breakdown.Total,
		AmountPaid:      0,
		AmountDue:       breakdown.Total,
		LineItems:       items,
		Status:          StatusDraft,
		Timeline:        Timeline{CreatedAt: at},
		DueDate:         due,
		GracePeriodDays: policy.GracePeriodDays,
		Version:         1,
		UpdatedAt:       at,
	}

	if err := inv.transition(StatusGenerated, "generate"); err != nil {
		return Invoice{}, err
	}
	inv.Timeline.GeneratedAt = timePtr(at)
	return inv, nil
}

func studentsOf(items []ledger.SessionCharge) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, item := range items {
		if item.StudentID != "" && !seen[item.StudentID] {
			seen[item.StudentID] = true
			ids = append(ids, item.StudentID)
		}
	}
	return ids
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// MarkSent records that the invoice was delivered to the payer.
func (inv Invoice) MarkSent(at time.Time) (Invoice, error) {
	if inv.Status != StatusGenerated {
		return Invoice{}, inv.stateError("mark sent")
	}
	next := inv.clone()
	if err := next.transition(StatusSent, "mark sent"); err != nil {
		return Invoice{}, err
	}
	next.Timeline.SentAt = timePtr(at)
	next.touch(at)
	return next, nil
}

// MarkPending records that the payer announced a payment that has not yet
// arrived.
func (inv Invoice) MarkPending(at time.Time) (Invoice, error) {
	if inv.Status != StatusSent {
		return Invoice{}, inv.stateError("mark pending")
	}
	next := inv.clone()
	if err := next.transition(StatusPending, "mark pending"); err != nil {
		return Invoice{}, err
	}
	next.touch(at)
	return next, nil
}

// PaymentInput describes money received from the payer.
type PaymentInput struct {
	ID        string
	Amount    ledger.Money
	Method    PaymentMethod
	Reference string
}

// RecordPayment applies a confirmed payment. A partial payment keeps the
// current status; the payment that brings AmountDue to zero moves the
// invoice to paid.
func (inv Invoice) RecordPayment(in PaymentInput, at time.Time) (Invoice, PaymentRecord, error) {
	if inv.Dispute.IsOpen() || inv.Status == StatusDisputed {
		return Invoice{}, PaymentRecord{}, &ledger.DisputeOpenError{InvoiceID: inv.ID, Reason: inv.disputeReason()}
	}
	if !inv.Status.AcceptsPayment() || inv.Archived {
		return Invoice{}, PaymentRecord{}, inv.stateError("record payment on")
	}
	if in.Amount <= 0 {
		return Invoice{}, PaymentRecord{}, &ledger.InvalidAmountError{Amount: in.Amount, Limit: inv.AmountDue, Reason: "must be positive"}
	}
	if in.Amount > inv.AmountDue {
		return Invoice{}, PaymentRecord{}, &ledger.InvalidAmountError{
			Amount: in.Amount,
			Limit:  inv.AmountDue,
			Reason: fmt.Sprintf("exceeds amount due %d", inv.AmountDue),
		}
	}
	method := in.Method
	if method == "" {
		method = MethodOther
	}

	next := inv.clone()
	record := PaymentRecord{
		ID:         in.ID,
		Amount:     in.Amount,
		Method:     method,
		Reference:  in.Reference,
		ReceivedAt: at,
		Confirmed:  true,
	}
	if record.ID == "" {
		record.ID = fmt.Sprintf("%s-p%d", inv.ID, len(inv.Payments)+1)
	}
	next.Payments = append(next.Payments, record)
	next.AmountPaid += in.Amount
	next.AmountDue = next.Total - next.AmountPaid

	if next.AmountDue == 0 {
		if err := next.transition(StatusPaid, "settle"); err != nil {
			return Invoice{}, PaymentRecord{}, err
		}
		next.Timeline.PaidAt = timePtr(at)
	}
	next.touch(at)
	return next, record, nil
}

// Cancel voids the invoice. Money fields are frozen as they are.
func (inv Invoice) Cancel(reason string, at time.Time) (Invoice, error) {
	if inv.Status.IsTerminal() {
		return Invoice{}, inv.stateError("cancel")
	}
	next := inv.clone()
	if err := next.transition(StatusCancelled, "cancel"); err != nil {
		return Invoice{}, err
	}
	next.CancelReason = reason
	next.Timeline.CancelledAt = timePtr(at)
	if next.Dispute.IsOpen() {
		next.Dispute.ResolvedAt = timePtr(at)
		next.Dispute.Resolution = "cancelled"
	}
	next.touch(at)
	return next, nil
}

// OpenDispute puts the invoice on hold. Payment progress is untouched and
// payments are refused until the dispute is resolved.
func (inv Invoice) OpenDispute(reason string, at time.Time) (Invoice, error) {
	if strings.TrimSpace(reason) == "" {
		return Invoice{}, &ledger.ValidationError{Field: "reason", Message: "is required"}
	}
	if inv.Status == StatusDisputed {
		return Invoice{}, &ledger.DisputeOpenError{InvoiceID: inv.ID, Reason: inv.disputeReason()}
	}
	if inv.Status.IsTerminal() {
		return Invoice{}, inv.stateError("dispute")
	}
	next := inv.clone()
	before := next.Status
	if err := next.transition(StatusDisputed, "dispute"); err != nil {
		return Invoice{}, err
	}
	next.StatusBeforeDispute = before
	next.Dispute = &Dispute{Reason: reason, OpenedAt: at}
	next.touch(at)
	return next, nil
}

// ResolveDispute closes the dispute and restores the status held before it.
func (inv Invoice) ResolveDispute(resolution string, at time.Time) (Invoice, error) {
	if inv.Status != StatusDisputed || !inv.Dispute.IsOpen() {
		return Invoice{}, inv.stateError("resolve dispute on")
	}
	if strings.TrimSpace(resolution) == "" {
		return Invoice{}, &ledger.ValidationError{Field: "resolution", Message: "is required"}
	}
	next := inv.clone()
	restore := next.StatusBeforeDispute
	if restore == "" {
		restore = StatusSent
	}
	if err := next.transition(restore, "resolve dispute on"); err != nil {
		return Invoice{}, err
	}
	d := *next.Dispute
	d.ResolvedAt = timePtr(at)
	d.Resolution = resolution
	next.Dispute = &d
	next.StatusBeforeDispute = ""
	next.touch(at)
	return next, nil
}

// Archive hides a settled or cancelled invoice. Invoices are never deleted.
func (inv Invoice) Archive(at time.Time) (Invoice, error) {
	if !inv.Status.IsTerminal() || inv.Archived {
		return Invoice{}, inv.stateError("archive")
	}
	next := inv.clone()
	next.Archived = true
	next.ArchivedAt = timePtr(at)
	next.touch(at)
	return next, nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// EvaluateOverdue returns true iff now is past the due date and the invoice
// can still be collected. It does not change the status; see Sweep.
func (inv Invoice) EvaluateOverdue(now time.Time) bool {
	if inv.Status.IsTerminal() {
		return false
	}
	return now.After(inv.DueDate)
}

// OverdueDays returns whole calendar days past the due date, 0 before it.
func (inv Invoice) OverdueDays(now time.Time) int {
	return max(0, ledger.DaysBetween(inv.DueDate, now))
}

// AgeDays returns calendar days since the invoice was created.
func (inv Invoice) AgeDays(now time.Time) int {
	return max(0, ledger.DaysBetween(inv.Timeline.CreatedAt, now))
}

// ConfirmedPayments sums confirmed payment records.
func (inv Invoice) ConfirmedPayments() ledger.Money {
	var total ledger.Money
	for _, p := range inv.Payments {
		if p.Confirmed {
			total += p.Amount
		}
	}
	return total
}

// CheckInvariants verifies the money and timeline invariants. Repositories
// call it before saving.
func (inv Invoice) CheckInvariants() error {
	if inv.Subtotal != ledger.TotalAmount(inv.LineItems) {
		return fmt.Errorf("invoice %s: subtotal %d != line items %d", inv.ID, inv.Subtotal, ledger.TotalAmount(inv.LineItems))
	}
	if inv.Total != inv.Subtotal-inv.DiscountAmount+inv.TaxAmount {
		return fmt.Errorf("invoice %s: total %d != subtotal - discount + tax", inv.ID, inv.Total)
	}
	if inv.AmountPaid+inv.AmountDue != inv.Total {
		return fmt.Errorf("invoice %s: paid %d + due %d != total %d", inv.ID, inv.AmountPaid, inv.AmountDue, inv.Total)
	}
	if inv.AmountPaid != inv.ConfirmedPayments() {
		return fmt.Errorf("invoice %s: paid %d != confirmed payments %d", inv.ID, inv.AmountPaid, inv.ConfirmedPayments())
	}
	if inv.AmountPaid < 0 || inv.AmountDue < 0 {
		return fmt.Errorf("invoice %s: negative amounts", inv.ID)
	}
	steps := []*time.Time{
		&inv.Timeline.CreatedAt, inv.Timeline.GeneratedAt, inv.Timeline.SentAt,
		inv.Timeline.FirstReminderAt, inv.Timeline.SecondReminderAt,
	}
	var last time.Time
	for _, step := range steps {
		if step == nil {
			continue
		}
		if step.Before(last) {
			return fmt.Errorf("invoice %s: timeline out of order", inv.ID)
		}
		last = *step
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (inv *Invoice) transition(to Status, op string) error {
	if !CanTransition(inv.Status, to) {
		return inv.stateError(op)
	}
	inv.Status = to
	return nil
}

func (inv Invoice) stateError(op string) error {
	return &ledger.StateError{Entity: "invoice", ID: inv.ID, Status: string(inv.Status), Operation: op}
}

func (inv Invoice) disputeReason() string {
	if inv.Dispute == nil {
		return ""
	}
	return inv.Dispute.Reason
}

func (inv *Invoice) touch(at time.Time) {
	inv.Version++
	inv.UpdatedAt = at
}

// clone copies the slices and pointers a mutation may change, so the
// receiver stays untouched.
func (inv Invoice) clone() Invoice {
	next := inv
	next.BeneficiaryIDs = append([]string(nil), inv.BeneficiaryIDs...)
	next.LineItems = append([]ledger.SessionCharge(nil), inv.LineItems...)
	next.Payments = append([]PaymentRecord(nil), inv.Payments...)
	if inv.Dispute != nil {
		d := *inv.Dispute
		next.Dispute = &d
	}
	return next
}

func timePtr(t time.Time) *time.Time { return &t }
