// Package mongodb implements the ledger Store on MongoDB. Conditional
// updates (order state CAS, guarded batch decrement) map to single
// FindOneAndUpdate calls so that each check-and-mutate pair is atomic on the
// server.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinicore/dispensary/internal/domain/models"
)

const (
	medicationsColl = "medications"
	batchesColl     = "batches"
	ordersColl      = "orders"
	dispensesColl   = "dispense_records"
)

// Store is the MongoDB-backed ledger.
type Store struct {
	client *mongo.Client
	dbName string
}

// NewStore connects to MongoDB, verifies the connection and ensures the
// unique batch-number index.
func NewStore(ctx context.Context, uri string, dbName string) (*Store, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &Store{client: client, dbName: dbName}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll(batchesColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "medication_id", Value: 1}, {Key: "batch_number", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create batch number index: %w", err)
	}
	return nil
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.client.Database(s.dbName).Collection(name)
}

// InsertMedication registers a new catalog entry.
func (s *Store) InsertMedication(ctx context.Context, med models.Medication) error {
	if _, err := s.coll(medicationsColl).InsertOne(ctx, med); err != nil {
		return fmt.Errorf("failed to insert medication: %w", err)
	}
	return nil
}

// GetMedication looks up a medication by ID.
func (s *Store) GetMedication(ctx context.Context, id string) (models.Medication, error) {
	var med models.Medication
	err := s.coll(medicationsColl).FindOne(ctx, bson.M{"_id": id}).Decode(&med)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Medication{}, models.ErrNotFound
	}
	if err != nil {
		return models.Medication{}, fmt.Errorf("failed to load medication: %w", err)
	}
	return med, nil
}

// ListMedications returns all catalog entries sorted by name.
func (s *Store) ListMedications(ctx context.Context) ([]models.Medication, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.coll(medicationsColl).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}

	var meds []models.Medication
	if err := cursor.All(ctx, &meds); err != nil {
		return nil, fmt.Errorf("failed to decode medications: %w", err)
	}
	return meds, nil
}

// InsertBatch stores a received batch; the unique index turns concurrent
// duplicates into ErrDuplicateBatchNumber.
func (s *Store) InsertBatch(ctx context.Context, batch models.Batch) error {
	_, err := s.coll(batchesColl).InsertOne(ctx, batch)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrDuplicateBatchNumber
	}
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// GetBatch looks up a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id string) (models.Batch, error) {
	var batch models.Batch
	err := s.coll(batchesColl).FindOne(ctx, bson.M{"_id": id}).Decode(&batch)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Batch{}, models.ErrNotFound
	}
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to load batch: %w", err)
	}
	return batch, nil
}

// ListBatchesByMedication returns batches ordered by expiry, then batch
// number.
func (s *Store) ListBatchesByMedication(ctx context.Context, medicationID string) ([]models.Batch, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expiry", Value: 1}, {Key: "batch_number", Value: 1}})
	cursor, err := s.coll(batchesColl).Find(ctx, bson.M{"medication_id": medicationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	var batches []models.Batch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, fmt.Errorf("failed to decode batches: %w", err)
	}
	return batches, nil
}

// DecrementBatch subtracts qty only when enough stock remains; the filter
// and the $inc run as one atomic update.
func (s *Store) DecrementBatch(ctx context.Context, batchID string, qty int) error {
	filter := bson.M{"_id": batchID, "quantity_on_hand": bson.M{"$gte": qty}}
	update := bson.M{"$inc": bson.M{"quantity_on_hand": -qty}}

	err := s.coll(batchesColl).FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Distinguish a missing batch from an insufficient one.
		if _, getErr := s.GetBatch(ctx, batchID); getErr != nil {
			return getErr
		}
		return models.ErrStaleAllocation
	}
	if err != nil {
		return fmt.Errorf("failed to decrement batch: %w", err)
	}
	return nil
}

// IncrementBatch credits quantity back to a batch.
func (s *Store) IncrementBatch(ctx context.Context, batchID string, qty int) error {
	update := bson.M{"$inc": bson.M{"quantity_on_hand": qty}}
	err := s.coll(batchesColl).FindOneAndUpdate(ctx, bson.M{"_id": batchID}, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to credit batch: %w", err)
	}
	return nil
}

// InsertOrder stores a new fulfillment order.
func (s *Store) InsertOrder(ctx context.Context, order models.FulfillmentOrder) error {
	if _, err := s.coll(ordersColl).InsertOne(ctx, order); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrder looks up an order by ID.
func (s *Store) GetOrder(ctx context.Context, id string) (models.FulfillmentOrder, error) {
	var order models.FulfillmentOrder
	err := s.coll(ordersColl).FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.FulfillmentOrder{}, models.ErrNotFound
	}
	if err != nil {
		return models.FulfillmentOrder{}, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

// ListOrdersByState returns orders in the given state, oldest first.
func (s *Store) ListOrdersByState(ctx context.Context, state models.OrderState) ([]models.FulfillmentOrder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.coll(ordersColl).Find(ctx, bson.M{"state": state}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	var orders []models.FulfillmentOrder
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// TransitionOrder compare-and-sets the order state.
func (s *Store) TransitionOrder(ctx context.Context, id string, from, to models.OrderState) error {
	filter := bson.M{"_id": id, "state": from}
	update := bson.M{"$set": bson.M{"state": to}, "$currentDate": bson.M{"updated_at": true}}

	err := s.coll(ordersColl).FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to transition order: %w", err)
	}
	return nil
}

// LinkOrderInvoice attaches an invoice to an UNBILLED order.
func (s *Store) LinkOrderInvoice(ctx context.Context, id, invoiceID string) error {
	filter := bson.M{"_id": id, "state": models.OrderUnbilled}
	update := bson.M{
		"$set":         bson.M{"invoice_id": invoiceID, "state": models.OrderPendingPayment},
		"$currentDate": bson.M{"updated_at": true},
	}

	err := s.coll(ordersColl).FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to link invoice: %w", err)
	}
	return nil
}

// FinalizeOrder leaves the DISPENSING critical section.
func (s *Store) FinalizeOrder(ctx context.Context, id string, state models.OrderState, remaining int) error {
	filter := bson.M{"_id": id, "state": models.OrderDispensing}
	update := bson.M{
		"$set":         bson.M{"state": state, "remaining_quantity": remaining},
		"$currentDate": bson.M{"updated_at": true},
	}

	err := s.coll(ordersColl).FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to finalize order: %w", err)
	}
	return nil
}

// InsertDispenseRecord appends one immutable dispense record.
func (s *Store) InsertDispenseRecord(ctx context.Context, rec models.DispenseRecord) error {
	if _, err := s.coll(dispensesColl).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert dispense record: %w", err)
	}
	return nil
}

// ListDispensesByOrder returns records for one order in commit order.
func (s *Store) ListDispensesByOrder(ctx context.Context, orderID string) ([]models.DispenseRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "dispensed_at", Value: 1}})
	cursor, err := s.coll(dispensesColl).Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispense records: %w", err)
	}

	var records []models.DispenseRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode dispense records: %w", err)
	}
	return records, nil
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
