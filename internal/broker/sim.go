package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ismaiel54/paper-trading-engine/internal/chaos"
	"github.com/ismaiel54/paper-trading-engine/internal/model"
	"go.uber.org/zap"
)

// SimConfig holds the paper-fill parameters
type SimConfig struct {
	StartingBalance float64
	CommissionRate  float64
	SlippageRate    float64
}

// SimulatedBroker implements Connection entirely in memory for paper
// trading and tests. MARKET orders fill immediately at the current price
// adjusted by slippage. LIMIT and STOP orders are stored PENDING and are
// never matched against later ticks: there is no resting-order book here,
// which is a documented limitation rather than a bug. An optional chaos
// injector turns calls into transport failures to exercise reconnect and
// connectivity-halt paths.
type SimulatedBroker struct {
	*ConnBase
	cfg    SimConfig
	logger *zap.Logger
	chaos  *chaos.Injector

	mu        sync.Mutex
	cash      float64
	realized  float64
	prices    map[string]float64
	positions map[string]*model.Position
	orders    map[string]*model.Order
	trades    []*model.Trade
}

// NewSimulatedBroker creates a paper broker with the given starting balance
func NewSimulatedBroker(cfg SimConfig, connCfg ConnConfig, injector *chaos.Injector, logger *zap.Logger) *SimulatedBroker {
	if connCfg.Name == "" {
		connCfg.Name = "simulated"
	}
	return &SimulatedBroker{
		ConnBase:  NewConnBase(connCfg, logger),
		cfg:       cfg,
		logger:    logger,
		chaos:     injector,
		cash:      cfg.StartingBalance,
		prices:    make(map[string]float64),
		positions: make(map[string]*model.Position),
		orders:    make(map[string]*model.Order),
	}
}

// Connect establishes the in-memory session. Idempotent when already
// connected; a failure counts a connection attempt and transitions to ERROR.
func (s *SimulatedBroker) Connect(ctx context.Context) error {
	if s.State() == StateConnected {
		return nil
	}
	if err := s.Throttle(ctx); err != nil {
		return err
	}

	s.SetState(StateConnecting)
	if err := s.chaos.MaybeDelay(ctx, "connect"); err != nil {
		s.RecordConnectFailure()
		return err
	}
	if s.chaos.MaybeDrop("connect") {
		s.RecordConnectFailure()
		return fmt.Errorf("simulated connect failure")
	}

	s.SetState(StateConnected)
	return nil
}

// Disconnect always succeeds logically
func (s *SimulatedBroker) Disconnect(ctx context.Context) error {
	s.SetState(StateDisconnected)
	return nil
}

// Reconnect retries Connect with exponential backoff
func (s *SimulatedBroker) Reconnect(ctx context.Context) error {
	return s.ReconnectWithBackoff(ctx, s.Connect)
}

// PlaceOrder accepts an order, filling MARKET orders immediately. Business
// rejections come back as status REJECTED with a nil error; a non-nil error
// is a transport failure.
func (s *SimulatedBroker) PlaceOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	if err := s.Throttle(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.RecordLatencySince(start)

	if err := s.chaos.MaybeDelay(ctx, "place_order"); err != nil {
		s.Metrics().RecordOrder(false)
		return nil, err
	}
	if s.chaos.MaybeDisconnect("place_order") {
		s.Metrics().RecordOrder(false)
		s.SetState(StateError)
		return nil, fmt.Errorf("simulated connection loss")
	}
	if s.chaos.MaybeDrop("place_order") {
		s.Metrics().RecordOrder(false)
		return nil, fmt.Errorf("simulated order transport failure")
	}

	if st := s.State(); st != StateConnected && st != StateSuspended {
		s.Metrics().RecordOrder(false)
		return nil, fmt.Errorf("broker not connected (state %s)", st)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order.OrderID = uuid.New().String()

	if order.Type == model.OrderTypeMarket {
		price, ok := s.prices[order.Symbol]
		if !ok || price <= 0 {
			order.Status = model.OrderStatusRejected
			s.Metrics().RecordOrder(false)
			s.logger.Warn("order rejected, no market price",
				zap.String("symbol", order.Symbol),
				zap.String("order_id", order.OrderID),
			)
			s.orders[order.OrderID] = order.Clone()
			return order, nil
		}
		s.fillMarketOrder(order, price)
	} else {
		// Rests as PENDING forever; no matching in this implementation
		order.Status = model.OrderStatusPending
	}

	s.orders[order.OrderID] = order.Clone()
	s.Metrics().RecordOrder(true)
	s.logger.Info("order placed",
		zap.String("order_id", order.OrderID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.String("status", string(order.Status)),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("filled_price", order.FilledPrice),
	)
	return order, nil
}

// fillMarketOrder executes a market order at the slipped price, creates the
// trade, updates the position with weighted-average cost, and moves cash.
// Caller holds s.mu.
func (s *SimulatedBroker) fillMarketOrder(order *model.Order, marketPrice float64) {
	fillPrice := marketPrice * (1 + s.cfg.SlippageRate)
	if order.Side == model.SideSell {
		fillPrice = marketPrice * (1 - s.cfg.SlippageRate)
	}

	value := order.Quantity * fillPrice
	commission := value * s.cfg.CommissionRate

	order.Status = model.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.FilledPrice = fillPrice
	order.Commission = commission

	trade := model.NewTrade(order.OrderID, order.Symbol, order.Side, order.Quantity, fillPrice, commission)

	pos, ok := s.positions[order.Symbol]
	if !ok {
		pos = &model.Position{Symbol: order.Symbol}
		s.positions[order.Symbol] = pos
	}
	reducing := pos.Quantity != 0 && ((pos.Quantity > 0) == (order.Side == model.SideSell))
	realized, closed := pos.ApplyFill(order.Side, order.Quantity, fillPrice)
	if reducing {
		trade = trade.WithRealizedPnL(realized)
		s.realized += realized
	}
	if closed {
		delete(s.positions, order.Symbol)
	}

	if order.Side == model.SideBuy {
		s.cash -= value + commission
	} else {
		s.cash += value - commission
	}

	s.trades = append(s.trades, trade)
	s.Metrics().RecordTrade()
}

// CancelOrder cancels a pending order. Cancelling a terminal order is a
// no-op that returns the order unchanged; an unknown ID is an error.
func (s *SimulatedBroker) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if err := s.Throttle(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.RecordLatencySince(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	if order.Status.IsTerminal() {
		return order.Clone(), nil
	}

	order.Status = model.OrderStatusCancelled
	s.logger.Info("order cancelled", zap.String("order_id", orderID))
	return order.Clone(), nil
}

// GetOrder returns a copy of the order, or nil when unknown
func (s *SimulatedBroker) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[orderID]; ok {
		return order.Clone(), nil
	}
	return nil, nil
}

// GetOrders returns copies of all orders matching the filter
func (s *SimulatedBroker) GetOrders(ctx context.Context, filter OrderFilter) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Order
	for _, order := range s.orders {
		if filter.Matches(order) {
			out = append(out, order.Clone())
		}
	}
	return out, nil
}

// GetAccount recomputes the account snapshot on demand
func (s *SimulatedBroker) GetAccount(ctx context.Context) (model.AccountInfo, error) {
	start := time.Now()
	defer s.RecordLatencySince(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	var unrealized, positionsValue float64
	for sym, pos := range s.positions {
		if price, ok := s.prices[sym]; ok {
			pos.MarkPrice(price)
		}
		unrealized += pos.UnrealizedPnL
		positionsValue += pos.MarketValue()
	}

	return model.AccountInfo{
		Balance:          s.cash,
		AvailableBalance: s.cash,
		UnrealizedPnL:    unrealized,
		RealizedPnL:      s.realized,
		PositionsValue:   positionsValue,
		Timestamp:        time.Now(),
	}, nil
}

// GetPositions recomputes unrealized P&L for every held position against
// the current price on each call
func (s *SimulatedBroker) GetPositions(ctx context.Context) ([]*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Position, 0, len(s.positions))
	for sym, pos := range s.positions {
		if price, ok := s.prices[sym]; ok {
			pos.MarkPrice(price)
		}
		out = append(out, pos.Clone())
	}
	return out, nil
}

// GetPosition returns a copy of one position, or nil when flat
func (s *SimulatedBroker) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return nil, nil
	}
	if price, ok := s.prices[symbol]; ok {
		pos.MarkPrice(price)
	}
	return pos.Clone(), nil
}

// GetMarketData returns the last pushed price for a symbol. A missing
// symbol logs and returns an empty quote, never an error, because this is
// polled on a timer and must not abort the trading loop.
func (s *SimulatedBroker) GetMarketData(ctx context.Context, symbol string) (MarketData, error) {
	start := time.Now()
	defer s.RecordLatencySince(start)

	if s.chaos.MaybeDrop("get_market_data") {
		s.Metrics().RecordTickDrop()
		s.logger.Warn("market data call dropped", zap.String("symbol", symbol))
		return MarketData{}, nil
	}

	s.mu.Lock()
	price, ok := s.prices[symbol]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("no market data for symbol", zap.String("symbol", symbol))
		return MarketData{}, nil
	}
	return MarketData{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

// PushTick updates the current price and fans out to subscribers. This is
// how test fixtures and feed adapters drive the simulation.
func (s *SimulatedBroker) PushTick(symbol string, price float64) {
	if s.chaos.MaybeDrop("tick") {
		s.Metrics().RecordTickDrop()
		return
	}

	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()

	s.Metrics().UpdateHeartbeat()
	s.Dispatch(MarketData{Symbol: symbol, Price: price, Timestamp: time.Now()})
}

// Trades returns copies of all executions so far
func (s *SimulatedBroker) Trades() []*model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}
