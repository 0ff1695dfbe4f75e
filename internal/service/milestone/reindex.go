package milestone

import (
	"context"

	"timeline-service/internal/model"
	"timeline-service/pkg/metrics"
)

// reindex makes room for moved at its new order by sliding the neighbours
// between its old and new slot one step in a single bulk update.
// It returns the number of rows shifted.
func reindex(ctx context.Context, tx Tx, previousOrder int, moved *model.Milestone) (int64, error) {
	if moved.Order == previousOrder {
		return 0, nil
	}

	conflict, err := detectConflict(ctx, tx, moved)
	if err != nil {
		return 0, err
	}
	if conflict == nil {
		return 0, nil
	}

	from, to, delta, direction := shiftRange(previousOrder, moved.Order)
	n, err := tx.ShiftOrders(ctx, moved.TimelineID, moved.ID, from, to, delta)
	if err != nil {
		return 0, persistenceErr("shift orders", err)
	}
	metrics.IncrementOrderShift(direction)
	return n, nil
}

func detectConflict(ctx context.Context, tx Tx, moved *model.Milestone) (*ConflictError, error) {
	n, err := tx.CountAtOrder(ctx, moved.TimelineID, moved.Order, moved.ID)
	if err != nil {
		return nil, persistenceErr("count order occupants", err)
	}
	if n == 0 {
		return nil, nil
	}
	return &ConflictError{TimelineID: moved.TimelineID, Order: moved.Order, Occupants: n}, nil
}

// shiftRange picks the neighbour range for a move from -> to.
// Moving down the list pulls [from+1, to] up by one; moving up pushes [to, from-1] down by one.
func shiftRange(from, to int) (lo, hi, delta int, direction string) {
	if to > from {
		return from + 1, to, -1, "down"
	}
	return to, from - 1, 1, "up"
}
