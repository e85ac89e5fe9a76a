// Package dispense owns the fulfillment order lifecycle and the commit
// protocol that releases stock. It enforces the payment gate, re-validates
// plans against live ledger quantities and guarantees that no interleaving
// of concurrent commits can over-dispense a batch.
package dispense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/domain/models"
	"github.com/clinicore/dispensary/internal/repository"
	"github.com/clinicore/dispensary/internal/repository/sheets"
	"github.com/clinicore/dispensary/internal/service/allocation"
)

// Coordinator drives order state transitions and atomic dispense commits.
type Coordinator struct {
	store  repository.Store
	audit  sheets.AuditSink
	logger *zap.Logger
	now    func() time.Time
}

// NewCoordinator wires a dispense coordinator. A nil audit sink disables the
// external audit log.
func NewCoordinator(store repository.Store, audit sheets.AuditSink, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = sheets.NopAuditSink{}
	}
	return &Coordinator{store: store, audit: audit, logger: logger, now: time.Now}
}

// CreateOrder opens a new fulfillment order in the UNBILLED state.
func (c *Coordinator) CreateOrder(ctx context.Context, medicationID string, requiredQuantity int) (models.FulfillmentOrder, error) {
	if requiredQuantity <= 0 {
		return models.FulfillmentOrder{}, models.ErrInvalidQuantity
	}
	if _, err := c.store.GetMedication(ctx, medicationID); err != nil {
		return models.FulfillmentOrder{}, err
	}

	now := c.now().UTC()
	order := models.FulfillmentOrder{
		ID:                uuid.NewString(),
		MedicationID:      medicationID,
		RequiredQuantity:  requiredQuantity,
		RemainingQuantity: requiredQuantity,
		State:             models.OrderUnbilled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := c.store.InsertOrder(ctx, order); err != nil {
		return models.FulfillmentOrder{}, fmt.Errorf("create order: %w", err)
	}

	c.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("medication_id", medicationID),
		zap.Int("required_quantity", requiredQuantity))

	return order, nil
}

// GetOrder returns one fulfillment order.
func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (models.FulfillmentOrder, error) {
	return c.store.GetOrder(ctx, orderID)
}

// ListPendingPayment returns orders whose payment gate is still closed,
// oldest first. The billing poller feeds these to SyncInvoiceStatus.
func (c *Coordinator) ListPendingPayment(ctx context.Context) ([]models.FulfillmentOrder, error) {
	return c.store.ListOrdersByState(ctx, models.OrderPendingPayment)
}

// LinkInvoice attaches the billing reference and moves the order into
// PENDING_PAYMENT.
func (c *Coordinator) LinkInvoice(ctx context.Context, orderID, invoiceID string) error {
	if invoiceID == "" {
		return fmt.Errorf("invoice id must not be empty")
	}

	if err := c.store.LinkOrderInvoice(ctx, orderID, invoiceID); err != nil {
		return err
	}

	c.logger.Info("invoice linked", zap.String("order_id", orderID), zap.String("invoice_id", invoiceID))
	return nil
}

// SyncInvoiceStatus applies an observed invoice status to an order awaiting
// payment. PAID opens the payment gate; VOID and REFUNDED cancel the order
// before dispensing starts. Any other status leaves the order untouched.
func (c *Coordinator) SyncInvoiceStatus(ctx context.Context, orderID string, status models.InvoiceStatus) error {
	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State != models.OrderPendingPayment {
		return nil
	}

	switch {
	case status.ReleasesStock():
		err = c.store.TransitionOrder(ctx, orderID, models.OrderPendingPayment, models.OrderReady)
	case status.CancelsOrder():
		err = c.store.TransitionOrder(ctx, orderID, models.OrderPendingPayment, models.OrderCancelled)
	default:
		return nil
	}

	// A concurrent sync already applied the same observation.
	if errors.Is(err, models.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Info("invoice status applied",
		zap.String("order_id", orderID),
		zap.String("invoice_status", string(status)))
	return nil
}

// Cancel cancels an order from any non-terminal state. An order whose commit
// is in flight cannot be cancelled.
func (c *Coordinator) Cancel(ctx context.Context, orderID string) error {
	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State.Terminal() || order.State == models.OrderDispensing {
		return models.ErrInvalidTransition
	}

	if err := c.store.TransitionOrder(ctx, orderID, order.State, models.OrderCancelled); err != nil {
		return err
	}

	c.logger.Info("order cancelled", zap.String("order_id", orderID))
	return nil
}

// Propose builds an advisory allocation plan for the order's outstanding
// quantity from the catalog's expiry-ordered batches. Purely informational;
// nothing is reserved.
func (c *Coordinator) Propose(ctx context.Context, orderID string) ([]models.AllocationLine, error) {
	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	candidates, err := c.store.ListBatchesByMedication(ctx, order.MedicationID)
	if err != nil {
		return nil, err
	}

	return allocation.Propose(order.RemainingQuantity, candidates), nil
}

// ListDispenses returns the order's committed dispense records.
func (c *Coordinator) ListDispenses(ctx context.Context, orderID string) ([]models.DispenseRecord, error) {
	if _, err := c.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return c.store.ListDispensesByOrder(ctx, orderID)
}

// Commit executes an allocation plan against the live ledger.
//
// Preconditions, each a distinct failure checked in order: the order must be
// READY (ErrNotPayable), the plan must hold against current quantities
// (ErrStaleAllocation), and a plan short of the outstanding quantity needs
// allowPartial (ErrIncompleteAllocation). The READY→DISPENSING transition is
// a compare-and-set, so at most one commit per order enters the critical
// section; batch decrements are individually guarded so concurrent commits
// from other orders can never drive a batch negative. Any failure past the
// DISPENSING marker re-credits the decremented batches and returns the order
// to READY.
func (c *Coordinator) Commit(ctx context.Context, orderID string, lines []models.AllocationLine, actorID string, allowPartial bool) (models.DispenseRecord, error) {
	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.DispenseRecord{}, err
	}
	if order.State != models.OrderReady {
		return models.DispenseRecord{}, models.ErrNotPayable
	}

	live, err := c.store.ListBatchesByMedication(ctx, order.MedicationID)
	if err != nil {
		return models.DispenseRecord{}, fmt.Errorf("%w: %v", models.ErrCommitFailed, err)
	}

	check, err := allocation.Validate(lines, order.RemainingQuantity, live)
	if errors.Is(err, models.ErrOverAllocation) {
		// The plan held when proposed but live stock has moved on.
		return models.DispenseRecord{}, models.ErrStaleAllocation
	}
	if err != nil {
		return models.DispenseRecord{}, err
	}

	if !check.Complete && !allowPartial {
		return models.DispenseRecord{}, models.ErrIncompleteAllocation
	}

	// Enter the critical section. A concurrent commit on the same order
	// loses the CAS and reports the order as not dispensable.
	if err := c.store.TransitionOrder(ctx, orderID, models.OrderReady, models.OrderDispensing); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return models.DispenseRecord{}, models.ErrNotPayable
		}
		return models.DispenseRecord{}, fmt.Errorf("%w: %v", models.ErrCommitFailed, err)
	}

	applied, err := c.decrementAll(ctx, lines)
	if err != nil {
		c.rollback(ctx, orderID, applied)
		if errors.Is(err, models.ErrStaleAllocation) {
			return models.DispenseRecord{}, models.ErrStaleAllocation
		}
		return models.DispenseRecord{}, fmt.Errorf("%w: %v", models.ErrCommitFailed, err)
	}

	rec := models.DispenseRecord{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		Lines:         lines,
		TotalQuantity: check.TotalAllocated,
		DispensedBy:   actorID,
		DispensedAt:   c.now().UTC(),
	}

	if err := c.store.InsertDispenseRecord(ctx, rec); err != nil {
		c.rollback(ctx, orderID, applied)
		return models.DispenseRecord{}, fmt.Errorf("%w: %v", models.ErrCommitFailed, err)
	}

	remaining := order.RemainingQuantity - check.TotalAllocated
	if remaining < 0 {
		remaining = 0
	}

	finalState := models.OrderReady
	if remaining == 0 || allowPartial {
		// allowPartial finalizes an under-fulfilled order; the remaining
		// quantity stays on the record for audit.
		finalState = models.OrderCompleted
	}

	if err := c.store.FinalizeOrder(ctx, orderID, finalState, remaining); err != nil {
		return rec, fmt.Errorf("%w: %v", models.ErrCommitFailed, err)
	}

	if err := c.audit.AppendDispense(ctx, rec); err != nil {
		// The durable record is already written; the external log is
		// best-effort.
		c.logger.Warn("audit sink append failed", zap.String("record_id", rec.ID), zap.Error(err))
	}

	c.logger.Info("dispense committed",
		zap.String("order_id", orderID),
		zap.String("record_id", rec.ID),
		zap.Int("total_quantity", rec.TotalQuantity),
		zap.Int("remaining_quantity", remaining),
		zap.String("final_state", string(finalState)))

	return rec, nil
}

// decrementAll applies the guarded decrements one line at a time, returning
// the lines that succeeded so a failure can be unwound.
func (c *Coordinator) decrementAll(ctx context.Context, lines []models.AllocationLine) ([]models.AllocationLine, error) {
	var applied []models.AllocationLine
	for _, line := range lines {
		if err := c.store.DecrementBatch(ctx, line.BatchID, line.Quantity); err != nil {
			return applied, err
		}
		applied = append(applied, line)
	}
	return applied, nil
}

// rollback re-credits decremented batches and returns the order to READY.
// Nothing of a failed commit may remain in the ledger.
func (c *Coordinator) rollback(ctx context.Context, orderID string, applied []models.AllocationLine) {
	for _, line := range applied {
		if err := c.store.IncrementBatch(ctx, line.BatchID, line.Quantity); err != nil {
			c.logger.Error("rollback credit failed",
				zap.String("order_id", orderID),
				zap.String("batch_id", line.BatchID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
		}
	}

	if err := c.store.TransitionOrder(ctx, orderID, models.OrderDispensing, models.OrderReady); err != nil {
		c.logger.Error("rollback transition failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
