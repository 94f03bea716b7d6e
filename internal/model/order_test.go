package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_Valid(t *testing.T) {
	order, err := NewOrder("AAPL", SideBuy, 10, OrderTypeMarket, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Empty(t, order.OrderID, "order ID is assigned by the broker, not the caller")
	assert.False(t, order.Timestamp.IsZero())
}

func TestNewOrder_ContractViolations(t *testing.T) {
	tests := []struct {
		name      string
		symbol    string
		side      Side
		qty       float64
		orderType OrderType
		price     float64
		stopPrice float64
	}{
		{"empty symbol", "", SideBuy, 10, OrderTypeMarket, 0, 0},
		{"zero quantity", "AAPL", SideBuy, 0, OrderTypeMarket, 0, 0},
		{"negative quantity", "AAPL", SideSell, -5, OrderTypeMarket, 0, 0},
		{"invalid side", "AAPL", Side("HOLD"), 10, OrderTypeMarket, 0, 0},
		{"invalid type", "AAPL", SideBuy, 10, OrderType("ICEBERG"), 0, 0},
		{"limit without price", "AAPL", SideBuy, 10, OrderTypeLimit, 0, 0},
		{"stop without stop price", "AAPL", SideBuy, 10, OrderTypeStop, 0, 0},
		{"stop limit without price", "AAPL", SideBuy, 10, OrderTypeStopLimit, 0, 150},
		{"stop limit without stop price", "AAPL", SideBuy, 10, OrderTypeStopLimit, 150, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(tt.symbol, tt.side, tt.qty, tt.orderType, tt.price, tt.stopPrice)
			assert.Error(t, err)
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusRejected.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusPartiallyFilled.IsTerminal())
}
