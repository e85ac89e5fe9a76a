package dispense

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/domain/models"
	"github.com/clinicore/dispensary/internal/repository/memory"
	"github.com/clinicore/dispensary/internal/service/catalog"
)

type fixture struct {
	store   *memory.Store
	catalog *catalog.Service
	coord   *Coordinator
}

func newFixture() fixture {
	store := memory.NewStore()
	return fixture{
		store:   store,
		catalog: catalog.NewService(store, zap.NewNop()),
		coord:   NewCoordinator(store, nil, zap.NewNop()),
	}
}

func (f fixture) medication(t *testing.T, name string) models.Medication {
	t.Helper()
	med, err := f.catalog.CreateMedication(context.Background(), name, 5)
	if err != nil {
		t.Fatalf("create medication: %v", err)
	}
	return med
}

func (f fixture) receive(t *testing.T, medID, batchNumber string, expiry time.Time, qty int) models.Batch {
	t.Helper()
	batch, err := f.catalog.Receive(context.Background(), medID, batchNumber, expiry, qty, decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("receive batch %s: %v", batchNumber, err)
	}
	return batch
}

func (f fixture) readyOrder(t *testing.T, medID string, required int) models.FulfillmentOrder {
	t.Helper()
	ctx := context.Background()

	order, err := f.coord.CreateOrder(ctx, medID, required)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.coord.LinkInvoice(ctx, order.ID, "inv-"+order.ID); err != nil {
		t.Fatalf("link invoice: %v", err)
	}
	if err := f.coord.SyncInvoiceStatus(ctx, order.ID, models.InvoicePaid); err != nil {
		t.Fatalf("sync invoice status: %v", err)
	}

	order, err = f.coord.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if order.State != models.OrderReady {
		t.Fatalf("expected READY order, got %s", order.State)
	}
	return order
}

func (f fixture) batchQty(t *testing.T, batchID string) int {
	t.Helper()
	batch, err := f.store.GetBatch(context.Background(), batchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	return batch.QuantityOnHand
}

func TestCommitSpansTwoBatchesAndCompletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Amoxicillin 500mg")
	soon := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	b1 := f.receive(t, med.ID, "B1", soon, 10)
	b2 := f.receive(t, med.ID, "B2", soon.AddDate(0, 6, 0), 20)

	order := f.readyOrder(t, med.ID, 25)

	lines, err := f.coord.Propose(ctx, order.ID)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	want := []models.AllocationLine{{BatchID: b1.ID, Quantity: 10}, {BatchID: b2.ID, Quantity: 15}}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("expected plan %v, got %v", want, lines)
	}

	rec, err := f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", false)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if rec.TotalQuantity != 25 {
		t.Fatalf("expected total 25, got %d", rec.TotalQuantity)
	}

	if got := f.batchQty(t, b1.ID); got != 0 {
		t.Fatalf("expected B1 drained, got %d", got)
	}
	if got := f.batchQty(t, b2.ID); got != 5 {
		t.Fatalf("expected B2 at 5, got %d", got)
	}

	order, _ = f.coord.GetOrder(ctx, order.ID)
	if order.State != models.OrderCompleted {
		t.Fatalf("expected COMPLETED, got %s", order.State)
	}
	if order.RemainingQuantity != 0 {
		t.Fatalf("expected no remaining quantity, got %d", order.RemainingQuantity)
	}

	records, err := f.coord.ListDispenses(ctx, order.ID)
	if err != nil {
		t.Fatalf("list dispenses: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one dispense record, got %d", len(records))
	}
}

func TestCommitRejectsUnpaidOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Amoxicillin 500mg")
	b := f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 30)

	order, err := f.coord.CreateOrder(ctx, med.ID, 25)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.coord.LinkInvoice(ctx, order.ID, "inv-1"); err != nil {
		t.Fatalf("link invoice: %v", err)
	}
	// Invoice observed as ISSUED, gate stays closed.
	if err := f.coord.SyncInvoiceStatus(ctx, order.ID, models.InvoiceIssued); err != nil {
		t.Fatalf("sync invoice status: %v", err)
	}

	lines := []models.AllocationLine{{BatchID: b.ID, Quantity: 25}}
	if _, err := f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", false); !errors.Is(err, models.ErrNotPayable) {
		t.Fatalf("expected ErrNotPayable, got %v", err)
	}

	if got := f.batchQty(t, b.ID); got != 30 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
}

func TestCommitRejectsIncompletePlanWithoutConfirmation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Metformin 850mg")
	b := f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 15)
	order := f.readyOrder(t, med.ID, 25)

	lines := []models.AllocationLine{{BatchID: b.ID, Quantity: 15}}
	if _, err := f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", false); !errors.Is(err, models.ErrIncompleteAllocation) {
		t.Fatalf("expected ErrIncompleteAllocation, got %v", err)
	}

	if got := f.batchQty(t, b.ID); got != 15 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
	order, _ = f.coord.GetOrder(ctx, order.ID)
	if order.State != models.OrderReady {
		t.Fatalf("expected state unchanged READY, got %s", order.State)
	}
}

func TestCommitAcceptsExplicitPartialFulfillment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Metformin 850mg")
	b := f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 15)
	order := f.readyOrder(t, med.ID, 25)

	lines := []models.AllocationLine{{BatchID: b.ID, Quantity: 15}}
	rec, err := f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", true)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if rec.TotalQuantity != 15 {
		t.Fatalf("expected 15 dispensed, got %d", rec.TotalQuantity)
	}

	order, _ = f.coord.GetOrder(ctx, order.ID)
	if order.State != models.OrderCompleted {
		t.Fatalf("expected COMPLETED, got %s", order.State)
	}
	if order.RemainingQuantity != 10 {
		t.Fatalf("expected under-fulfillment of 10 recorded, got %d", order.RemainingQuantity)
	}
}

func TestCommitDetectsStaleAllocation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Ibuprofen 400mg")
	b := f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 20)
	order := f.readyOrder(t, med.ID, 20)

	lines, err := f.coord.Propose(ctx, order.ID)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	// Another order drains part of the batch after the proposal.
	if err := f.store.DecrementBatch(ctx, b.ID, 5); err != nil {
		t.Fatalf("concurrent decrement: %v", err)
	}

	if _, err := f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", false); !errors.Is(err, models.ErrStaleAllocation) {
		t.Fatalf("expected ErrStaleAllocation, got %v", err)
	}

	order, _ = f.coord.GetOrder(ctx, order.ID)
	if order.State != models.OrderReady {
		t.Fatalf("expected order back in READY, got %s", order.State)
	}
	if got := f.batchQty(t, b.ID); got != 15 {
		t.Fatalf("expected only the concurrent decrement applied, got %d", got)
	}
}

func TestCommitRejectsEmptyPlan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Ibuprofen 400mg")
	f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 20)
	order := f.readyOrder(t, med.ID, 10)

	if _, err := f.coord.Commit(ctx, order.ID, nil, "pharmacist-1", false); !errors.Is(err, models.ErrEmptyPlan) {
		t.Fatalf("expected ErrEmptyPlan, got %v", err)
	}
}

func TestCommitRefusesSecondDispense(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Amoxicillin 500mg")
	b := f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 40)
	order := f.readyOrder(t, med.ID, 20)

	lines := []models.AllocationLine{{BatchID: b.ID, Quantity: 20}}
	if _, err := f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", false); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	if _, err := f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", false); !errors.Is(err, models.ErrNotPayable) {
		t.Fatalf("expected ErrNotPayable on re-dispense, got %v", err)
	}
	if got := f.batchQty(t, b.ID); got != 20 {
		t.Fatalf("expected single decrement, got %d", got)
	}
}

func TestConcurrentCommitsNeverOverdraw(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Paracetamol 500mg")
	b := f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 50)

	// Five orders of ten units each, exactly matching the stock.
	const orders = 5
	const perOrder = 10

	ids := make([]string, orders)
	for i := range ids {
		ids[i] = f.readyOrder(t, med.ID, perOrder).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, orders)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			lines := []models.AllocationLine{{BatchID: b.ID, Quantity: perOrder}}
			_, errs[i] = f.coord.Commit(ctx, id, lines, "pharmacist-1", false)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}
	if got := f.batchQty(t, b.ID); got != 0 {
		t.Fatalf("expected batch drained to exactly 0, got %d", got)
	}
}

func TestConcurrentCommitsOnSameOrderDispenseOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Paracetamol 500mg")
	b := f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 100)
	order := f.readyOrder(t, med.ID, 10)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lines := []models.AllocationLine{{BatchID: b.ID, Quantity: 10}}
			_, errs[i] = f.coord.Commit(ctx, order.ID, lines, "pharmacist-1", false)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, models.ErrNotPayable):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful commit, got %d", successes)
	}
	if got := f.batchQty(t, b.ID); got != 90 {
		t.Fatalf("expected one decrement of 10, got on-hand %d", got)
	}
}

func TestSyncInvoiceStatusCancelsOnVoid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Amoxicillin 500mg")
	order, err := f.coord.CreateOrder(ctx, med.ID, 10)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.coord.LinkInvoice(ctx, order.ID, "inv-1"); err != nil {
		t.Fatalf("link invoice: %v", err)
	}

	if err := f.coord.SyncInvoiceStatus(ctx, order.ID, models.InvoiceVoid); err != nil {
		t.Fatalf("sync: %v", err)
	}

	order, _ = f.coord.GetOrder(ctx, order.ID)
	if order.State != models.OrderCancelled {
		t.Fatalf("expected CANCELLED, got %s", order.State)
	}
}

func TestSyncInvoiceStatusIgnoresNonPendingOrders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Amoxicillin 500mg")
	order, err := f.coord.CreateOrder(ctx, med.ID, 10)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Still UNBILLED; a PAID observation means nothing yet.
	if err := f.coord.SyncInvoiceStatus(ctx, order.ID, models.InvoicePaid); err != nil {
		t.Fatalf("sync: %v", err)
	}

	order, _ = f.coord.GetOrder(ctx, order.ID)
	if order.State != models.OrderUnbilled {
		t.Fatalf("expected UNBILLED, got %s", order.State)
	}
}

func TestLinkInvoiceOnlyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Amoxicillin 500mg")
	order, err := f.coord.CreateOrder(ctx, med.ID, 10)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := f.coord.LinkInvoice(ctx, order.ID, "inv-1"); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := f.coord.LinkInvoice(ctx, order.ID, "inv-2"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelFromNonTerminalStates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	med := f.medication(t, "Amoxicillin 500mg")
	f.receive(t, med.ID, "B1", time.Now().AddDate(1, 0, 0), 30)
	order := f.readyOrder(t, med.ID, 10)

	if err := f.coord.Cancel(ctx, order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	order, _ = f.coord.GetOrder(ctx, order.ID)
	if order.State != models.OrderCancelled {
		t.Fatalf("expected CANCELLED, got %s", order.State)
	}

	if err := f.coord.Cancel(ctx, order.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on cancelled order, got %v", err)
	}
}

func TestCreateOrderRejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture()
	med := f.medication(t, "Amoxicillin 500mg")

	if _, err := f.coord.CreateOrder(context.Background(), med.ID, 0); !errors.Is(err, models.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}
