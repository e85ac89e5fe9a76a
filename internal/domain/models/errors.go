package models

import "errors"

// Fulfillment error taxonomy. All are local and non-fatal; callers decide
// whether to retry, escalate, or confirm.
var (
	// ErrDuplicateBatchNumber indicates the batch number already exists for
	// the medication.
	ErrDuplicateBatchNumber = errors.New("duplicate batch number")

	// ErrInvalidQuantity indicates a non-positive quantity was supplied.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrOverAllocation indicates an allocation line exceeds the batch's
	// last-known quantity on hand.
	ErrOverAllocation = errors.New("allocation exceeds batch quantity on hand")

	// ErrEmptyPlan indicates an allocation plan with no effective quantity.
	ErrEmptyPlan = errors.New("allocation plan is empty")

	// ErrNotPayable indicates the order is not in a dispensable state,
	// either because the invoice has not cleared or because a dispense is
	// already in flight or completed.
	ErrNotPayable = errors.New("order is not ready for dispensing")

	// ErrStaleAllocation indicates live batch quantities dropped below the
	// plan since it was proposed. Callers should re-propose.
	ErrStaleAllocation = errors.New("allocation is stale against live stock")

	// ErrIncompleteAllocation indicates the plan covers less than the
	// required quantity and the caller did not accept a partial dispense.
	ErrIncompleteAllocation = errors.New("allocation does not cover required quantity")

	// ErrCommitFailed indicates an unexpected storage failure during commit.
	// No partial ledger mutation survives it.
	ErrCommitFailed = errors.New("dispense commit failed")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates an order state change that the
	// lifecycle does not permit.
	ErrInvalidTransition = errors.New("invalid order state transition")
)
