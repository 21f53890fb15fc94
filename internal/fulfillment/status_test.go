package fulfillment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/testutil"
)

func TestAdvanceOrder_Lifecycle(t *testing.T) {
	f := newFixture(t, "A-0001")
	f.gateway.Complete(testutil.PaidSession("pay_1", "sam@example.com", "Biscuit"))
	res, err := f.fulfill("pay_1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderPaid, res.Order.Status)

	clock := testutil.NewFixedClock(testutil.Epoch)
	ctx := context.Background()

	for _, next := range []domain.OrderStatus{domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered} {
		clock.Advance(1)
		order, err := AdvanceOrder(ctx, f.store, clock, res.Order.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, order.Status)
	}

	stored, err := f.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDelivered, stored.Status)
}

func TestAdvanceOrder_Rejections(t *testing.T) {
	f := newFixture(t, "A-0001")
	f.gateway.Complete(testutil.PaidSession("pay_1", "sam@example.com", "Biscuit"))
	res, err := f.fulfill("pay_1")
	require.NoError(t, err)

	clock := testutil.NewFixedClock(testutil.Epoch)
	ctx := context.Background()

	_, err = AdvanceOrder(ctx, f.store, clock, res.Order.ID, domain.OrderPending)
	assert.True(t, domain.IsInvalidTransition(err), "no going back")

	_, err = AdvanceOrder(ctx, f.store, clock, res.Order.ID, domain.OrderDelivered)
	assert.True(t, domain.IsInvalidTransition(err), "no skipping")

	_, err = AdvanceOrder(ctx, f.store, clock, res.Order.ID, "lost")
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = AdvanceOrder(ctx, f.store, clock, "ord_missing", domain.OrderShipped)
	assert.True(t, domain.IsNotFound(err))

	order, err := AdvanceOrder(ctx, f.store, clock, res.Order.ID, domain.OrderPaid)
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, domain.OrderPaid, order.Status)

	_, err = AdvanceOrder(ctx, f.store, clock, res.Order.ID, domain.OrderCancelled)
	require.NoError(t, err)
	_, err = AdvanceOrder(ctx, f.store, clock, res.Order.ID, domain.OrderProcessing)
	assert.True(t, domain.IsInvalidTransition(err), "cancelled is terminal")
}
