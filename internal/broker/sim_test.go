package broker

import (
	"context"
	"testing"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/chaos"
	"github.com/ismaiel54/paper-trading-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSim(t *testing.T) *SimulatedBroker {
	t.Helper()
	s := NewSimulatedBroker(
		SimConfig{StartingBalance: 100000, CommissionRate: 0.001, SlippageRate: 0.0005},
		ConnConfig{MaxRetries: 3, RetryDelay: time.Millisecond},
		nil,
		zap.NewNop(),
	)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func marketOrder(t *testing.T, side model.Side, qty float64) *model.Order {
	t.Helper()
	order, err := model.NewOrder("AAPL", side, qty, model.OrderTypeMarket, 0, 0)
	require.NoError(t, err)
	return order
}

func TestPlaceOrder_MarketRoundTrip(t *testing.T) {
	s := newTestSim(t)
	s.PushTick("AAPL", 150)
	ctx := context.Background()

	order, err := s.PlaceOrder(ctx, marketOrder(t, model.SideBuy, 10))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFilled, order.Status)
	assert.Equal(t, 10.0, order.FilledQuantity)
	assert.NotEmpty(t, order.OrderID)

	wantFill := 150 * 1.0005
	assert.InDelta(t, wantFill, order.FilledPrice, 1e-9, "buys fill at price plus slippage")

	value := 10 * wantFill
	commission := value * 0.001
	assert.InDelta(t, commission, order.Commission, 1e-9)

	acct, err := s.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000-(value+commission), acct.Balance, 1e-6,
		"a buy debits cash by exactly trade value plus commission")

	trades := s.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, order.OrderID, trades[0].OrderID)
	assert.Nil(t, trades[0].RealizedPnL, "opening fills carry no realized P&L")
}

func TestPlaceOrder_SellCreditsCash(t *testing.T) {
	s := newTestSim(t)
	s.PushTick("AAPL", 100)
	ctx := context.Background()

	_, err := s.PlaceOrder(ctx, marketOrder(t, model.SideBuy, 10))
	require.NoError(t, err)
	before, err := s.GetAccount(ctx)
	require.NoError(t, err)

	order, err := s.PlaceOrder(ctx, marketOrder(t, model.SideSell, 10))
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusFilled, order.Status)

	value := 10 * order.FilledPrice
	after, err := s.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, before.Balance+value-order.Commission, after.Balance, 1e-6,
		"a sell credits cash by trade value minus commission")

	trades := s.Trades()
	require.Len(t, trades, 2)
	require.NotNil(t, trades[1].RealizedPnL, "closing fills realize P&L")

	positions, err := s.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions, "a fully closed position is deleted, not zeroed")
}

func TestPlaceOrder_WeightedAveragePosition(t *testing.T) {
	s := NewSimulatedBroker(
		SimConfig{StartingBalance: 100000},
		ConnConfig{},
		nil,
		zap.NewNop(),
	)
	require.NoError(t, s.Connect(context.Background()))
	ctx := context.Background()

	s.PushTick("AAPL", 100)
	_, err := s.PlaceOrder(ctx, marketOrder(t, model.SideBuy, 10))
	require.NoError(t, err)

	s.PushTick("AAPL", 110)
	_, err = s.PlaceOrder(ctx, marketOrder(t, model.SideBuy, 10))
	require.NoError(t, err)

	pos, err := s.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 20.0, pos.Quantity)
	assert.InDelta(t, 105.0, pos.AvgEntryPrice, 1e-9)
}

func TestPlaceOrder_NoPriceRejects(t *testing.T) {
	s := newTestSim(t)

	order, err := s.PlaceOrder(context.Background(), marketOrder(t, model.SideBuy, 10))
	require.NoError(t, err, "business rejection is not a transport error")
	assert.Equal(t, model.OrderStatusRejected, order.Status)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalOrders)
	assert.Equal(t, int64(1), snap.FailedOrders)
}

func TestPlaceOrder_LimitRestsPending(t *testing.T) {
	s := newTestSim(t)
	s.PushTick("AAPL", 150)
	ctx := context.Background()

	limit, err := model.NewOrder("AAPL", model.SideBuy, 10, model.OrderTypeLimit, 140, 0)
	require.NoError(t, err)
	placed, err := s.PlaceOrder(ctx, limit)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, placed.Status)

	// No resting-order matching: crossing ticks do not fill it
	s.PushTick("AAPL", 130)
	got, err := s.GetOrder(ctx, placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, got.Status)

	cancelled, err := s.CancelOrder(ctx, placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
}

func TestCancelOrder_TerminalIsNoOp(t *testing.T) {
	s := newTestSim(t)
	s.PushTick("AAPL", 150)
	ctx := context.Background()

	order, err := s.PlaceOrder(ctx, marketOrder(t, model.SideBuy, 1))
	require.NoError(t, err)

	got, err := s.CancelOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFilled, got.Status, "cancelling a filled order leaves it filled")

	_, err = s.CancelOrder(ctx, "missing")
	assert.Error(t, err)
}

func TestGetOrders_Filter(t *testing.T) {
	s := newTestSim(t)
	s.PushTick("AAPL", 150)
	ctx := context.Background()

	_, err := s.PlaceOrder(ctx, marketOrder(t, model.SideBuy, 1))
	require.NoError(t, err)
	limit, err := model.NewOrder("MSFT", model.SideBuy, 1, model.OrderTypeLimit, 90, 0)
	require.NoError(t, err)
	_, err = s.PlaceOrder(ctx, limit)
	require.NoError(t, err)

	filled, err := s.GetOrders(ctx, OrderFilter{Status: model.OrderStatusFilled})
	require.NoError(t, err)
	assert.Len(t, filled, 1)

	msft, err := s.GetOrders(ctx, OrderFilter{Symbol: "MSFT"})
	require.NoError(t, err)
	assert.Len(t, msft, 1)
}

func TestChaosDrop_TransportError(t *testing.T) {
	injector := chaos.New(&chaos.Config{Enabled: true, DropPct: 100, Seed: 1}, zap.NewNop())
	s := NewSimulatedBroker(
		SimConfig{StartingBalance: 100000},
		ConnConfig{MaxRetries: 2, RetryDelay: time.Millisecond},
		injector,
		zap.NewNop(),
	)

	err := s.Connect(context.Background())
	assert.Error(t, err, "a dropped connect is a transport failure")
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, int64(1), s.ConnectionAttempts())

	err = s.Reconnect(context.Background())
	assert.Error(t, err, "reconnect against a 100% drop profile exhausts retries")
	assert.Equal(t, StateError, s.State())
}

func TestMarketData_MissingSymbolIsEmptyNotError(t *testing.T) {
	s := newTestSim(t)
	md, err := s.GetMarketData(context.Background(), "NOPE")
	require.NoError(t, err, "read paths must not abort the polling loop")
	assert.Empty(t, md.Symbol)
}
