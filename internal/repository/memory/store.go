// Package memory provides a mutex-guarded in-memory Store. It backs tests
// and single-process deployments; every conditional update honors the same
// contract as the MongoDB implementation.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/clinicore/dispensary/internal/domain/models"
)

// Store keeps the full ledger in process memory.
type Store struct {
	mu          sync.Mutex
	medications map[string]models.Medication
	batches     map[string]models.Batch
	orders      map[string]models.FulfillmentOrder
	dispenses   []models.DispenseRecord
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		medications: make(map[string]models.Medication),
		batches:     make(map[string]models.Batch),
		orders:      make(map[string]models.FulfillmentOrder),
	}
}

// InsertMedication registers a new catalog entry.
func (s *Store) InsertMedication(_ context.Context, med models.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.medications[med.ID] = med
	return nil
}

// GetMedication looks up a medication by ID.
func (s *Store) GetMedication(_ context.Context, id string) (models.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	med, ok := s.medications[id]
	if !ok {
		return models.Medication{}, models.ErrNotFound
	}
	return med, nil
}

// ListMedications returns all catalog entries sorted by name.
func (s *Store) ListMedications(_ context.Context) ([]models.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Medication, 0, len(s.medications))
	for _, med := range s.medications {
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// InsertBatch stores a received batch, rejecting duplicate batch numbers
// within the same medication.
func (s *Store) InsertBatch(_ context.Context, batch models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.batches {
		if existing.MedicationID == batch.MedicationID && existing.BatchNumber == batch.BatchNumber {
			return models.ErrDuplicateBatchNumber
		}
	}

	s.batches[batch.ID] = batch
	return nil
}

// GetBatch looks up a batch by ID.
func (s *Store) GetBatch(_ context.Context, id string) (models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return models.Batch{}, models.ErrNotFound
	}
	return batch, nil
}

// ListBatchesByMedication returns batches ordered by expiry, then batch
// number.
func (s *Store) ListBatchesByMedication(_ context.Context, medicationID string) ([]models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Batch
	for _, batch := range s.batches {
		if batch.MedicationID == medicationID {
			out = append(out, batch)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Expiry.Equal(out[j].Expiry) {
			return out[i].Expiry.Before(out[j].Expiry)
		}
		return out[i].BatchNumber < out[j].BatchNumber
	})

	return out, nil
}

// DecrementBatch performs the guarded check-then-decrement under the store
// lock.
func (s *Store) DecrementBatch(_ context.Context, batchID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return models.ErrNotFound
	}
	if batch.QuantityOnHand < qty {
		return models.ErrStaleAllocation
	}

	batch.QuantityOnHand -= qty
	s.batches[batchID] = batch
	return nil
}

// IncrementBatch credits quantity back to a batch.
func (s *Store) IncrementBatch(_ context.Context, batchID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return models.ErrNotFound
	}

	batch.QuantityOnHand += qty
	s.batches[batchID] = batch
	return nil
}

// InsertOrder stores a new fulfillment order.
func (s *Store) InsertOrder(_ context.Context, order models.FulfillmentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = order
	return nil
}

// GetOrder looks up an order by ID.
func (s *Store) GetOrder(_ context.Context, id string) (models.FulfillmentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.FulfillmentOrder{}, models.ErrNotFound
	}
	return order, nil
}

// ListOrdersByState returns orders in the given state.
func (s *Store) ListOrdersByState(_ context.Context, state models.OrderState) ([]models.FulfillmentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.FulfillmentOrder
	for _, order := range s.orders {
		if order.State == state {
			out = append(out, order)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TransitionOrder compare-and-sets the order state.
func (s *Store) TransitionOrder(_ context.Context, id string, from, to models.OrderState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.ErrNotFound
	}
	if order.State != from {
		return models.ErrInvalidTransition
	}

	order.State = to
	s.orders[id] = order
	return nil
}

// LinkOrderInvoice attaches an invoice to an UNBILLED order.
func (s *Store) LinkOrderInvoice(_ context.Context, id, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.ErrNotFound
	}
	if order.State != models.OrderUnbilled {
		return models.ErrInvalidTransition
	}

	order.InvoiceID = invoiceID
	order.State = models.OrderPendingPayment
	s.orders[id] = order
	return nil
}

// FinalizeOrder leaves the DISPENSING critical section.
func (s *Store) FinalizeOrder(_ context.Context, id string, state models.OrderState, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.ErrNotFound
	}
	if order.State != models.OrderDispensing {
		return models.ErrInvalidTransition
	}

	order.State = state
	order.RemainingQuantity = remaining
	s.orders[id] = order
	return nil
}

// InsertDispenseRecord appends one dispense record.
func (s *Store) InsertDispenseRecord(_ context.Context, rec models.DispenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dispenses = append(s.dispenses, rec)
	return nil
}

// ListDispensesByOrder returns records for one order in commit order.
func (s *Store) ListDispensesByOrder(_ context.Context, orderID string) ([]models.DispenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.DispenseRecord
	for _, rec := range s.dispenses {
		if rec.OrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}
