// Package repository defines the storage contract shared by the ledger
// implementations. Conditional updates (state compare-and-set, guarded batch
// decrement) are part of the contract so that the coordinator's concurrency
// guarantees hold regardless of the backing store.
package repository

import (
	"context"

	"github.com/clinicore/dispensary/internal/domain/models"
)

// Store is the durable ledger behind the catalog and the dispense
// coordinator.
type Store interface {
	// InsertMedication registers a new catalog entry.
	InsertMedication(ctx context.Context, med models.Medication) error

	// GetMedication returns models.ErrNotFound for unknown IDs.
	GetMedication(ctx context.Context, id string) (models.Medication, error)

	// ListMedications returns every catalog entry.
	ListMedications(ctx context.Context) ([]models.Medication, error)

	// InsertBatch stores a received batch. It fails with
	// models.ErrDuplicateBatchNumber when the batch number is already in
	// use for the same medication.
	InsertBatch(ctx context.Context, batch models.Batch) error

	// GetBatch returns models.ErrNotFound for unknown IDs.
	GetBatch(ctx context.Context, id string) (models.Batch, error)

	// ListBatchesByMedication returns all batches for a medication ordered
	// by ascending expiry date, then batch number.
	ListBatchesByMedication(ctx context.Context, medicationID string) ([]models.Batch, error)

	// DecrementBatch subtracts qty from the batch's quantity on hand only
	// when at least qty units remain. It fails with
	// models.ErrStaleAllocation when the guard does not hold, leaving the
	// batch untouched. The check and the subtraction are a single atomic
	// update.
	DecrementBatch(ctx context.Context, batchID string, qty int) error

	// IncrementBatch credits qty back to a batch. Used to unwind a partial
	// commit; it must not fail for existing batches.
	IncrementBatch(ctx context.Context, batchID string, qty int) error

	// InsertOrder stores a new fulfillment order.
	InsertOrder(ctx context.Context, order models.FulfillmentOrder) error

	// GetOrder returns models.ErrNotFound for unknown IDs.
	GetOrder(ctx context.Context, id string) (models.FulfillmentOrder, error)

	// ListOrdersByState returns orders currently in the given state.
	ListOrdersByState(ctx context.Context, state models.OrderState) ([]models.FulfillmentOrder, error)

	// TransitionOrder moves an order from one state to another as a single
	// compare-and-set. It fails with models.ErrInvalidTransition when the
	// order is not in the expected source state, and models.ErrNotFound
	// when it does not exist.
	TransitionOrder(ctx context.Context, id string, from, to models.OrderState) error

	// LinkOrderInvoice attaches an invoice and moves the order from
	// UNBILLED to PENDING_PAYMENT in one conditional update.
	LinkOrderInvoice(ctx context.Context, id, invoiceID string) error

	// FinalizeOrder leaves the DISPENSING critical section: it sets the
	// final state and the remaining quantity, guarded on the order still
	// being in DISPENSING.
	FinalizeOrder(ctx context.Context, id string, state models.OrderState, remaining int) error

	// InsertDispenseRecord appends one immutable dispense record.
	InsertDispenseRecord(ctx context.Context, rec models.DispenseRecord) error

	// ListDispensesByOrder returns the order's dispense records in commit
	// order.
	ListDispensesByOrder(ctx context.Context, orderID string) ([]models.DispenseRecord, error)
}
