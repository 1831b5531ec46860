package invoice

// Status is the single active state of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusGenerated Status = "generated"
	StatusSent      Status = "sent"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft, StatusGenerated, StatusSent, StatusPending,
	StatusOverdue, StatusPaid, StatusDisputed, StatusCancelled,
}

// transitions is the invoice state machine. A disputed invoice returns to
// the status it held before the dispute, which ResolveDispute checks itself.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusGenerated, StatusCancelled, StatusDisputed},
	StatusGenerated: {StatusSent, StatusCancelled, StatusDisputed},
	StatusSent:      {StatusPending, StatusOverdue, StatusPaid, StatusCancelled, StatusDisputed},
	StatusPending:   {StatusOverdue, StatusPaid, StatusCancelled, StatusDisputed},
	StatusOverdue:   {StatusPaid, StatusCancelled, StatusDisputed},
	StatusDisputed:  {StatusDraft, StatusGenerated, StatusSent, StatusPending, StatusOverdue, StatusCancelled},
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for paid and cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// AcceptsPayment returns true for the statuses RecordPayment works in.
func (s Status) AcceptsPayment() bool {
	return s == StatusSent || s == StatusPending || s == StatusOverdue
}

// IsOutstanding returns true while money may still be collected.
func (s Status) IsOutstanding() bool {
	return !s.IsTerminal() && s != StatusDraft
}

// Valid returns true for a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}
