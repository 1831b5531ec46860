package ledger

import (
	"fmt"
	"strings"
)

// Document number prefixes.
const (
	InvoicePrefix = "INV"
	PaymentPrefix = "PAY"
)

// InvoiceNumber formats INV-{payerId}-{YYYYMM}-{seq:03d}.
func InvoiceNumber(payerID string, year, month, sequence int) string {
	return documentNumber(InvoicePrefix, payerID, year, month, sequence)
}

// PaymentNumber formats PAY-{teacherId}-{YYYYMM}-{seq:03d}.
func PaymentNumber(teacherID string, year, month, sequence int) string {
	return documentNumber(PaymentPrefix, teacherID, year, month, sequence)
}

func documentNumber(prefix, entityID string, year, month, sequence int) string {
	return fmt.Sprintf("%s-%s-%04d%02d-%03d", prefix, entityID, year, month, sequence)
}

// SequenceScope is the key a Sequencer counts under: one counter per
// document kind, entity and period.
func SequenceScope(prefix, entityID string, period BillingPeriod) string {
	return strings.Join([]string{prefix, entityID, period.Key()}, ":")
}
