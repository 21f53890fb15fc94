package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

// StatusUpdater is the store surface for order lifecycle changes.
type StatusUpdater interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, at time.Time) (bool, error)
}

// AdvanceOrder moves an order forward in its lifecycle. Moving to the
// current status is a no-op; any other move must be an allowed transition.
func AdvanceOrder(ctx context.Context, s StatusUpdater, clock domain.Clock, orderID string, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, domain.NewInvalidArgumentError("unknown order status %q", to)
	}

	order, err := s.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Order{}, domain.NewNotFoundError("order", orderID)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("advance order %s: %w", orderID, err)
	}
	if order.Status == to {
		return order, nil
	}
	if !order.Status.CanTransitionTo(to) {
		return order, domain.NewInvalidTransitionError("order", orderID, order.Status, to)
	}

	now := clock.Now()
	ok, err := s.UpdateOrderStatus(ctx, orderID, order.Status, to, now)
	if err != nil {
		return order, fmt.Errorf("advance order %s: %w", orderID, err)
	}
	if !ok {
		// Someone else moved it first.
		current, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return order, fmt.Errorf("advance order %s: %w", orderID, err)
		}
		if current.Status == to {
			return current, nil
		}
		return current, domain.NewInvalidTransitionError("order", orderID, current.Status, to)
	}

	order.Status = to
	order.UpdatedAt = now
	return order, nil
}
