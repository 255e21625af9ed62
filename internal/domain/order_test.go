package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustItem(t *testing.T, id string, quantity int, price string) OrderItem {
	t.Helper()
	item, err := NewOrderItem("prod-"+id, "Product "+id, quantity, decimal.RequireFromString(price))
	require.NoError(t, err)
	item.ID = id
	return item
}

func TestNewOrderItem(t *testing.T) {
	t.Run("computes line total from unit price and quantity", func(t *testing.T) {
		item, err := NewOrderItem("p1", "Apples", 3, decimal.RequireFromString("10.00"))
		require.NoError(t, err)
		assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("30.00")))
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		for _, q := range []int{0, -1} {
			_, err := NewOrderItem("p1", "Apples", q, decimal.NewFromInt(1))
			assert.ErrorIs(t, err, ErrInvalidQuantity)
		}
	})

	t.Run("rejects negative unit price", func(t *testing.T) {
		_, err := NewOrderItem("p1", "Apples", 1, decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})
}

func TestOrderItem_UpdateQuantity(t *testing.T) {
	item := mustItem(t, "a", 2, "2.50")

	require.NoError(t, item.UpdateQuantity(4))
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("10.00")))

	assert.ErrorIs(t, item.UpdateQuantity(0), ErrInvalidQuantity)
	assert.Equal(t, 4, item.Quantity)
}

func TestOrder_Totals(t *testing.T) {
	order := NewOrder(User{ID: "u1", Username: "alice"}, "1 Main Street, Springfield", "", "")
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.IsZero())

	order.AddItem(mustItem(t, "a", 3, "10.00"))
	order.AddItem(mustItem(t, "b", 2, "0.15"))
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("30.30")), order.TotalAmount.String())

	assert.True(t, order.RemoveItem("a"))
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("0.30")))
	assert.False(t, order.RemoveItem("missing"))

	sum := decimal.Zero
	for _, item := range order.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	assert.True(t, order.TotalAmount.Equal(sum))
}

func TestOrder_Lifecycle(t *testing.T) {
	order := NewOrder(User{ID: "u1"}, "1 Main Street, Springfield", "", "")
	before := order.UpdatedAt

	order.Confirm()
	assert.Equal(t, OrderStatusConfirmed, order.Status)
	assert.True(t, order.CanBeCancelled())

	order.Process()
	assert.Equal(t, OrderStatusProcessing, order.Status)
	assert.False(t, order.CanBeCancelled())

	order.Ship("TRACK-123")
	assert.Equal(t, OrderStatusShipped, order.Status)
	assert.Equal(t, "TRACK-123", order.TrackingNumber)

	order.Deliver()
	assert.True(t, order.IsDelivered())
	assert.False(t, order.UpdatedAt.Before(before))
}

func TestOrder_ApplyStatus(t *testing.T) {
	order := NewOrder(User{ID: "u1"}, "1 Main Street, Springfield", "", "")

	require.NoError(t, order.ApplyStatus(OrderStatusShipped, "T-1"))
	assert.Equal(t, "T-1", order.TrackingNumber)

	err := order.ApplyStatus(OrderStatus("LOST"), "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, OrderStatusShipped, order.Status)
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusProcessing, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, status)

	_, err = ParseOrderStatus("REFUNDED")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}
