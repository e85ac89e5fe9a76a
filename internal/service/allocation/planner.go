// Package allocation holds the pure planning functions that turn a required
// quantity and a set of candidate batches into (batch, quantity) lines.
// Nothing here touches storage; callers may invoke these freely and
// concurrently.
package allocation

import (
	"github.com/clinicore/dispensary/internal/domain/models"
)

// Propose greedily consumes candidates in the order supplied until the
// required quantity is covered or candidates run out. The caller controls
// priority; the catalog's expiry ordering is the usual default. A plan whose
// total falls short of required is a valid partial plan, not an error.
func Propose(required int, candidates []models.Batch) []models.AllocationLine {
	if required <= 0 {
		return nil
	}

	var lines []models.AllocationLine
	outstanding := required

	for _, batch := range candidates {
		if outstanding == 0 {
			break
		}
		if batch.QuantityOnHand <= 0 {
			continue
		}

		take := batch.QuantityOnHand
		if take > outstanding {
			take = outstanding
		}

		lines = append(lines, models.AllocationLine{BatchID: batch.ID, Quantity: take})
		outstanding -= take
	}

	return lines
}

// Validate classifies an allocation plan against the supplied last-known
// batch quantities. Operators may hand-pick batches instead of accepting a
// proposal, so every line is checked individually.
func Validate(lines []models.AllocationLine, required int, candidates []models.Batch) (models.AllocationCheck, error) {
	onHand := make(map[string]int, len(candidates))
	for _, batch := range candidates {
		onHand[batch.ID] = batch.QuantityOnHand
	}

	total := 0
	for _, line := range lines {
		if line.Quantity <= 0 {
			return models.AllocationCheck{}, models.ErrInvalidQuantity
		}

		available, ok := onHand[line.BatchID]
		if !ok || line.Quantity > available {
			return models.AllocationCheck{}, models.ErrOverAllocation
		}
		// Repeated lines against one batch draw from the same pool.
		onHand[line.BatchID] = available - line.Quantity

		total += line.Quantity
	}

	if total == 0 {
		return models.AllocationCheck{}, models.ErrEmptyPlan
	}

	return models.AllocationCheck{
		Complete:       total >= required,
		TotalAllocated: total,
	}, nil
}
