package models

// InvoiceStatus mirrors the billing collaborator's invoice lifecycle. The
// engine only observes these values; it never writes them.
type InvoiceStatus string

const (
	InvoiceIssued   InvoiceStatus = "ISSUED"
	InvoicePartial  InvoiceStatus = "PARTIAL"
	InvoicePaid     InvoiceStatus = "PAID"
	InvoiceVoid     InvoiceStatus = "VOID"
	InvoiceRefunded InvoiceStatus = "REFUNDED"
)

// ReleasesStock reports whether the status clears the payment gate.
func (s InvoiceStatus) ReleasesStock() bool {
	return s == InvoicePaid
}

// CancelsOrder reports whether the status should cancel an order that has
// not started dispensing yet.
func (s InvoiceStatus) CancelsOrder() bool {
	return s == InvoiceVoid || s == InvoiceRefunded
}
