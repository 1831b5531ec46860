package ledger

import (
	"context"
	"time"
)

// =============================================================================
// DOMAIN EVENTS - Emitted after a state transition has been saved
// =============================================================================

// EventKind names a domain event. Kinds are dot-separated so sinks can
// subscribe to a whole family ("invoice.*").
type EventKind string

const (
	EventInvoiceGenerated EventKind = "invoice.generated"
	EventInvoiceSent      EventKind = "invoice.sent"
	EventPaymentRecorded  EventKind = "invoice.payment_recorded"
	EventInvoicePaid      EventKind = "invoice.paid"
	EventInvoiceOverdue   EventKind = "invoice.overdue"
	EventReminderDue      EventKind = "invoice.reminder_due"
	EventInvoiceCancelled EventKind = "invoice.cancelled"
	EventDisputeOpened    EventKind = "invoice.dispute_opened"
	EventDisputeResolved  EventKind = "invoice.dispute_resolved"

	EventPaymentCalculated EventKind = "payout.calculated"
	EventPaymentValidated  EventKind = "payout.validated"
	EventPaymentProcessed  EventKind = "payout.processed"
	EventPaymentRejected   EventKind = "payout.rejected"
	EventPaymentSuspended  EventKind = "payout.suspended"
)

// Event carries what a notification dispatcher needs: which entry changed,
// who is involved and the amounts at stake.
type Event struct {
	Kind     EventKind
	EntityID string // invoice or payment ID
	Number   string // invoice or payment number
	PartyID  string // payer or teacher
	// BeneficiaryIDs lists the students an invoice bills for.
	BeneficiaryIDs []string
	Amount         Money // amount of this event (payment received, net pay, ...)
	Balance        Money // amount still due after the event, for invoices
	At             time.Time
	Meta           map[string]string
}

// EventSink receives domain events. Engines call it after the change has
// been saved; delivery (push, email, SMS) is the sink's business.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// DiscardSink drops every event.
type DiscardSink struct{}

func (DiscardSink) Publish(context.Context, Event) {}
