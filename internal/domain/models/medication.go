package models

import "time"

// Medication is a catalog entry for a dispensable product. Batches reference
// it by ID; a medication is never deleted while batches exist.
type Medication struct {
	ID               string    `bson:"_id" json:"id"`
	Name             string    `bson:"name" json:"name"`
	ReorderThreshold int       `bson:"reorder_threshold" json:"reorder_threshold"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
}

// Batch is a tracked lot of a medication with its own expiry and remaining
// quantity. QuantityOnHand never goes below zero; a batch that reaches zero
// stays visible for audit but is excluded from allocation candidates.
type Batch struct {
	ID             string    `bson:"_id" json:"id"`
	MedicationID   string    `bson:"medication_id" json:"medication_id"`
	BatchNumber    string    `bson:"batch_number" json:"batch_number"`
	Expiry         time.Time `bson:"expiry" json:"expiry"`
	QuantityOnHand int       `bson:"quantity_on_hand" json:"quantity_on_hand"`
	UnitCost       Cost      `bson:"unit_cost" json:"unit_cost"`
	ReceivedAt     time.Time `bson:"received_at" json:"received_at"`
}

// Expired reports whether the batch is past its expiry at the given instant.
func (b Batch) Expired(at time.Time) bool {
	return b.Expiry.Before(at)
}

// StockLevel summarizes a medication's on-hand position across batches.
type StockLevel struct {
	MedicationID     string `json:"medication_id"`
	TotalOnHand      int    `json:"total_on_hand"`
	ReorderThreshold int    `json:"reorder_threshold"`
	LowStock         bool   `json:"low_stock"`
}
