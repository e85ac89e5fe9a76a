package models

import "time"

// AllocationLine assigns part of a requested quantity to a specific batch.
type AllocationLine struct {
	BatchID  string `bson:"batch_id" json:"batch_id" binding:"required"`
	Quantity int    `bson:"quantity" json:"quantity" binding:"required"`
}

// AllocationCheck is the planner's verdict on a set of allocation lines.
type AllocationCheck struct {
	Complete       bool `json:"complete"`
	TotalAllocated int  `json:"total_allocated"`
}

// DispenseRecord is the immutable audit entry for one committed stock
// movement. Records are append-only; nothing in the engine updates or
// deletes them once written.
type DispenseRecord struct {
	ID            string           `bson:"_id" json:"id"`
	OrderID       string           `bson:"order_id" json:"order_id"`
	Lines         []AllocationLine `bson:"lines" json:"lines"`
	TotalQuantity int              `bson:"total_quantity" json:"total_quantity"`
	DispensedBy   string           `bson:"dispensed_by" json:"dispensed_by"`
	DispensedAt   time.Time        `bson:"dispensed_at" json:"dispensed_at"`
}
