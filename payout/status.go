package payout

// Status is the single active state of a teacher payment.
type Status string

const (
	StatusCalculated Status = "calculated"
	StatusValidated  Status = "validated"
	StatusPaid       Status = "paid"
	StatusRejected   Status = "rejected"
	StatusSuspended  Status = "suspended"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusCalculated, StatusValidated, StatusPaid, StatusRejected, StatusSuspended}

var transitions = map[Status][]Status{
	StatusCalculated: {StatusValidated, StatusRejected, StatusSuspended},
	StatusValidated:  {StatusPaid, StatusRejected, StatusSuspended},
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

// IsTerminal returns true for paid, rejected and suspended. A rejected or
// suspended payment is never reopened; a corrected calculation creates a
// new payment.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusRejected || s == StatusSuspended
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
