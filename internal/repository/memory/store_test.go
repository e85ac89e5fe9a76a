package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinicore/dispensary/internal/domain/models"
)

func seedBatch(t *testing.T, s *Store, id string, qty int) {
	t.Helper()
	err := s.InsertBatch(context.Background(), models.Batch{
		ID:             id,
		MedicationID:   "med-1",
		BatchNumber:    id,
		Expiry:         time.Now().AddDate(1, 0, 0),
		QuantityOnHand: qty,
	})
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
}

func TestInsertBatchRejectsDuplicateNumberPerMedication(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := models.Batch{ID: "b1", MedicationID: "med-1", BatchNumber: "LOT-1"}
	if err := s.InsertBatch(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := models.Batch{ID: "b2", MedicationID: "med-1", BatchNumber: "LOT-1"}
	if err := s.InsertBatch(ctx, dup); !errors.Is(err, models.ErrDuplicateBatchNumber) {
		t.Fatalf("expected ErrDuplicateBatchNumber, got %v", err)
	}

	otherMed := models.Batch{ID: "b3", MedicationID: "med-2", BatchNumber: "LOT-1"}
	if err := s.InsertBatch(ctx, otherMed); err != nil {
		t.Fatalf("insert on other medication: %v", err)
	}
}

func TestDecrementBatchGuardsQuantity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedBatch(t, s, "b1", 10)

	if err := s.DecrementBatch(ctx, "b1", 11); !errors.Is(err, models.ErrStaleAllocation) {
		t.Fatalf("expected ErrStaleAllocation, got %v", err)
	}
	if err := s.DecrementBatch(ctx, "b1", 10); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	batch, err := s.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.QuantityOnHand != 0 {
		t.Fatalf("expected 0 on hand, got %d", batch.QuantityOnHand)
	}

	if err := s.DecrementBatch(ctx, "b1", 1); !errors.Is(err, models.ErrStaleAllocation) {
		t.Fatalf("expected ErrStaleAllocation on drained batch, got %v", err)
	}
}

func TestDecrementBatchUnderContention(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedBatch(t, s, "b1", 50)

	const workers = 20
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.DecrementBatch(ctx, "b1", 10); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 5 {
		t.Fatalf("expected exactly 5 successful decrements, got %d", count)
	}

	batch, _ := s.GetBatch(ctx, "b1")
	if batch.QuantityOnHand != 0 {
		t.Fatalf("expected batch drained to exactly 0, got %d", batch.QuantityOnHand)
	}
}

func TestTransitionOrderCompareAndSet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	order := models.FulfillmentOrder{ID: "o1", State: models.OrderReady}
	if err := s.InsertOrder(ctx, order); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	if err := s.TransitionOrder(ctx, "o1", models.OrderReady, models.OrderDispensing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	// Second CAS from READY must lose.
	if err := s.TransitionOrder(ctx, "o1", models.OrderReady, models.OrderDispensing); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.TransitionOrder(ctx, "missing", models.OrderReady, models.OrderDispensing); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBatchesByMedicationOrdering(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	early := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 3, 0)

	insert := func(id, number string, expiry time.Time) {
		err := s.InsertBatch(ctx, models.Batch{ID: id, MedicationID: "med-1", BatchNumber: number, Expiry: expiry})
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	insert("b1", "LOT-Z", early)
	insert("b2", "LOT-A", late)
	insert("b3", "LOT-A2", early)

	batches, err := s.ListBatchesByMedication(ctx, "med-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	got := []string{batches[0].BatchNumber, batches[1].BatchNumber, batches[2].BatchNumber}
	want := []string{"LOT-A2", "LOT-Z", "LOT-A"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFinalizeOrderRequiresDispensing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.InsertOrder(ctx, models.FulfillmentOrder{ID: "o1", State: models.OrderReady}); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	if err := s.FinalizeOrder(ctx, "o1", models.OrderCompleted, 0); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := s.TransitionOrder(ctx, "o1", models.OrderReady, models.OrderDispensing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := s.FinalizeOrder(ctx, "o1", models.OrderCompleted, 3); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	order, _ := s.GetOrder(ctx, "o1")
	if order.State != models.OrderCompleted || order.RemainingQuantity != 3 {
		t.Fatalf("unexpected order after finalize: %+v", order)
	}
}

func TestLinkOrderInvoiceOnlyFromUnbilled(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.InsertOrder(ctx, models.FulfillmentOrder{ID: "o1", State: models.OrderUnbilled}); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	if err := s.LinkOrderInvoice(ctx, "o1", "inv-1"); err != nil {
		t.Fatalf("link: %v", err)
	}
	order, _ := s.GetOrder(ctx, "o1")
	if order.State != models.OrderPendingPayment || order.InvoiceID != "inv-1" {
		t.Fatalf("unexpected order after link: %+v", order)
	}

	if err := s.LinkOrderInvoice(ctx, "o1", "inv-2"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
