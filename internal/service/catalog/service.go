// Package catalog manages the medication catalog: registering medications,
// receiving batches and answering stock-level questions.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/domain/models"
	"github.com/clinicore/dispensary/internal/repository"
)

// Service implements catalog operations on top of the ledger store.
type Service struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a new catalog service instance.
func NewService(store repository.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// CreateMedication registers a new catalog entry with its reorder threshold.
func (s *Service) CreateMedication(ctx context.Context, name string, reorderThreshold int) (models.Medication, error) {
	if name == "" {
		return models.Medication{}, fmt.Errorf("medication name must not be empty")
	}
	if reorderThreshold < 0 {
		return models.Medication{}, models.ErrInvalidQuantity
	}

	med := models.Medication{
		ID:               uuid.NewString(),
		Name:             name,
		ReorderThreshold: reorderThreshold,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.store.InsertMedication(ctx, med); err != nil {
		return models.Medication{}, fmt.Errorf("create medication: %w", err)
	}

	s.logger.Info("medication registered", zap.String("medication_id", med.ID), zap.String("name", med.Name))
	return med, nil
}

// GetMedication returns one catalog entry.
func (s *Service) GetMedication(ctx context.Context, medicationID string) (models.Medication, error) {
	return s.store.GetMedication(ctx, medicationID)
}

// ListMedications returns the full catalog.
func (s *Service) ListMedications(ctx context.Context) ([]models.Medication, error) {
	return s.store.ListMedications(ctx)
}

// ListBatches returns a medication's batches ordered by ascending expiry,
// then batch number. The ordering biases manual selection toward
// soonest-to-expire stock without enforcing it.
func (s *Service) ListBatches(ctx context.Context, medicationID string) ([]models.Batch, error) {
	if _, err := s.store.GetMedication(ctx, medicationID); err != nil {
		return nil, err
	}
	return s.store.ListBatchesByMedication(ctx, medicationID)
}

// AllocationCandidates returns the batches eligible for allocation: the
// catalog ordering with emptied batches filtered out.
func (s *Service) AllocationCandidates(ctx context.Context, medicationID string) ([]models.Batch, error) {
	batches, err := s.ListBatches(ctx, medicationID)
	if err != nil {
		return nil, err
	}

	candidates := batches[:0]
	for _, batch := range batches {
		if batch.QuantityOnHand > 0 {
			candidates = append(candidates, batch)
		}
	}
	return candidates, nil
}

// TotalOnHand sums quantity on hand across a medication's batches.
func (s *Service) TotalOnHand(ctx context.Context, medicationID string) (int, error) {
	batches, err := s.ListBatches(ctx, medicationID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, batch := range batches {
		total += batch.QuantityOnHand
	}
	return total, nil
}

// StockLevel reports the on-hand position against the reorder threshold.
func (s *Service) StockLevel(ctx context.Context, medicationID string) (models.StockLevel, error) {
	med, err := s.store.GetMedication(ctx, medicationID)
	if err != nil {
		return models.StockLevel{}, err
	}

	total, err := s.TotalOnHand(ctx, medicationID)
	if err != nil {
		return models.StockLevel{}, err
	}

	return models.StockLevel{
		MedicationID:     med.ID,
		TotalOnHand:      total,
		ReorderThreshold: med.ReorderThreshold,
		LowStock:         total <= med.ReorderThreshold,
	}, nil
}

// IsLowStock reports whether the medication's total on hand has fallen to or
// below its reorder threshold.
func (s *Service) IsLowStock(ctx context.Context, medicationID string) (bool, error) {
	level, err := s.StockLevel(ctx, medicationID)
	if err != nil {
		return false, err
	}
	return level.LowStock, nil
}

// Receive records a newly arrived batch of stock.
func (s *Service) Receive(ctx context.Context, medicationID, batchNumber string, expiry time.Time, quantity int, unitCost decimal.Decimal) (models.Batch, error) {
	if quantity <= 0 {
		return models.Batch{}, models.ErrInvalidQuantity
	}
	if batchNumber == "" {
		return models.Batch{}, fmt.Errorf("batch number must not be empty")
	}

	if _, err := s.store.GetMedication(ctx, medicationID); err != nil {
		return models.Batch{}, err
	}

	batch := models.Batch{
		ID:             uuid.NewString(),
		MedicationID:   medicationID,
		BatchNumber:    batchNumber,
		Expiry:         expiry,
		QuantityOnHand: quantity,
		UnitCost:       models.NewCost(unitCost),
		ReceivedAt:     s.now().UTC(),
	}

	if err := s.store.InsertBatch(ctx, batch); err != nil {
		return models.Batch{}, err
	}

	s.logger.Info("batch received",
		zap.String("medication_id", medicationID),
		zap.String("batch_number", batchNumber),
		zap.Int("quantity", quantity))

	return batch, nil
}
