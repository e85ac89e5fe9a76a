package models

import "time"

// OrderState enumerates fulfillment order lifecycle states.
type OrderState string

const (
	OrderUnbilled       OrderState = "UNBILLED"
	OrderPendingPayment OrderState = "PENDING_PAYMENT"
	OrderReady          OrderState = "READY"
	OrderDispensing     OrderState = "DISPENSING"
	OrderCompleted      OrderState = "COMPLETED"
	OrderCancelled      OrderState = "CANCELLED"
)

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// FulfillmentOrder is one prescription's outstanding request: what to
// dispense, how much, and whether the linked invoice has cleared. State is
// mutated only through the dispense coordinator and billing sync.
type FulfillmentOrder struct {
	ID                string     `bson:"_id" json:"id"`
	MedicationID      string     `bson:"medication_id" json:"medication_id"`
	RequiredQuantity  int        `bson:"required_quantity" json:"required_quantity"`
	RemainingQuantity int        `bson:"remaining_quantity" json:"remaining_quantity"`
	InvoiceID         string     `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"`
	State             OrderState `bson:"state" json:"state"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at" json:"updated_at"`
}
