package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/broker"
	"github.com/ismaiel54/paper-trading-engine/internal/events"
	"github.com/ismaiel54/paper-trading-engine/internal/guard"
	"github.com/ismaiel54/paper-trading-engine/internal/journal"
	"github.com/ismaiel54/paper-trading-engine/internal/model"
	"go.uber.org/zap"
)

const maxBarHistory = 200

// Config drives one trading loop instance
type Config struct {
	Symbol        string
	TickInterval  time.Duration
	OrderQuantity float64
	MinBars       int
}

// TradingLoop polls market data on a ticker, asks the strategy for a
// signal, clears every order through the guard, and records the results.
// Any single tick failing is logged and contained; only context
// cancellation stops the loop.
type TradingLoop struct {
	cfg      Config
	broker   broker.Connection
	guard    *guard.Guard
	strategy Strategy
	sink     events.Sink
	journal  *journal.Journal
	logger   *zap.Logger

	running    atomic.Bool
	cancel     context.CancelFunc
	bars       []Bar
	lastSignal int
}

// New creates a trading loop. The journal may be nil when persistence is
// disabled.
func New(cfg Config, conn broker.Connection, g *guard.Guard, strategy Strategy, sink events.Sink, j *journal.Journal, logger *zap.Logger) (*TradingLoop, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", cfg.TickInterval)
	}
	if cfg.OrderQuantity <= 0 {
		return nil, fmt.Errorf("order quantity must be positive, got %v", cfg.OrderQuantity)
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = 1
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &TradingLoop{
		cfg:      cfg,
		broker:   conn,
		guard:    g,
		strategy: strategy,
		sink:     sink,
		journal:  j,
		logger:   logger,
	}, nil
}

// IsRunning reports whether the loop is active
func (l *TradingLoop) IsRunning() bool {
	return l.running.Load()
}

// Stop requests cooperative shutdown. Safe to call more than once and
// before Run.
func (l *TradingLoop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

// Run drives the loop until the context is cancelled. It connects the
// broker on entry and disconnects on exit; a second concurrent Run is
// refused.
func (l *TradingLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("trading loop already running")
	}
	defer l.running.Store(false)

	ctx, l.cancel = context.WithCancel(ctx)
	defer l.cancel()

	if err := l.broker.Connect(ctx); err != nil {
		return fmt.Errorf("initial broker connect failed: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.broker.Disconnect(disconnectCtx); err != nil {
			l.logger.Warn("broker disconnect failed", zap.Error(err))
		}
	}()

	l.logger.Info("trading loop started",
		zap.String("symbol", l.cfg.Symbol),
		zap.String("strategy", l.strategy.Name()),
		zap.Duration("tick_interval", l.cfg.TickInterval),
	)

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("trading loop stopping", zap.String("symbol", l.cfg.Symbol))
			return ctx.Err()
		case <-ticker.C:
			if err := l.tick(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				l.logger.Error("tick failed", zap.String("symbol", l.cfg.Symbol), zap.Error(err))
				// Brief pause so a persistently failing dependency
				// does not spin the loop hot between ticks
				select {
				case <-ctx.Done():
				case <-time.After(100 * time.Millisecond):
				}
			}
		}
	}
}

// suspender is the optional advisory-suspension surface some connections
// expose beyond the Connection contract
type suspender interface {
	Suspend()
	ResumeFromSuspend()
}

// tick runs one full pipeline pass: telemetry, price, signal, guard, order
func (l *TradingLoop) tick(ctx context.Context) error {
	l.checkConnectivity(ctx)
	l.syncSuspension()

	md, err := l.broker.GetMarketData(ctx, l.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("market data fetch failed: %w", err)
	}
	if md.Symbol == "" || md.Price <= 0 {
		l.logger.Debug("no market data this tick", zap.String("symbol", l.cfg.Symbol))
		return nil
	}

	l.guard.UpdateMarketPrice(md.Symbol, md.Price)
	l.appendBar(md)

	if err := l.syncAccountState(ctx); err != nil {
		return err
	}

	if len(l.bars) < l.cfg.MinBars {
		return nil
	}

	signal := l.strategy.Signal(l.bars)
	if signal == 0 || signal == l.lastSignal {
		return nil
	}

	return l.submitSignal(ctx, signal, md.Price)
}

// checkConnectivity feeds broker telemetry to the guard and kicks off a
// reconnect when the session is down. The reconnect runs in its own
// goroutine; the broker refuses overlapping attempts itself.
func (l *TradingLoop) checkConnectivity(ctx context.Context) {
	health := l.broker.HealthCheck()

	if v := l.guard.CheckConnectivity(health.Metrics.AverageLatencyMs, health.Connected); v != nil {
		l.recordViolation(ctx, v)
	}
	l.publish(ctx, events.New(events.EventLatencySample, l.cfg.Symbol,
		events.LatencySample{Milliseconds: health.Metrics.AverageLatencyMs}))

	if !health.Connected {
		go func() {
			if err := l.broker.Reconnect(ctx); err != nil {
				l.logger.Warn("reconnect attempt failed", zap.Error(err))
			}
		}()
	}
}

// syncSuspension mirrors the guard's global halt onto the connection as the
// advisory SUSPENDED state. The session stays open either way; this only
// makes the halt visible in broker health output.
func (l *TradingLoop) syncSuspension() {
	s, ok := l.broker.(suspender)
	if !ok {
		return
	}
	if l.guard.IsGlobalHalt() {
		s.Suspend()
	} else {
		s.ResumeFromSuspend()
	}
}

func (l *TradingLoop) appendBar(md broker.MarketData) {
	l.bars = append(l.bars, Bar{Symbol: md.Symbol, Close: md.Price, Timestamp: md.Timestamp})
	if len(l.bars) > maxBarHistory {
		l.bars = l.bars[len(l.bars)-maxBarHistory:]
	}
}

// syncAccountState pushes fresh balance, P&L, and position data into the
// guard before any admission decision
func (l *TradingLoop) syncAccountState(ctx context.Context) error {
	acct, err := l.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account fetch failed: %w", err)
	}
	l.guard.UpdateAccountBalance(acct.Balance)
	l.guard.UpdateDailyPnL(acct.RealizedPnL + acct.UnrealizedPnL)

	positions, err := l.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("positions fetch failed: %w", err)
	}
	l.guard.UpdatePositions(positions)
	return nil
}

// submitSignal turns a nonzero signal into a guarded market order.
// lastSignal only advances on a successful submission, so a rejected or
// failed order is retried on the next signal-bearing tick.
func (l *TradingLoop) submitSignal(ctx context.Context, signal int, marketPrice float64) error {
	side := model.SideBuy
	if signal < 0 {
		side = model.SideSell
	}

	order, err := model.NewOrder(l.cfg.Symbol, side, l.cfg.OrderQuantity, model.OrderTypeMarket, 0, 0)
	if err != nil {
		return fmt.Errorf("order construction failed: %w", err)
	}

	allowed, violation := l.guard.CheckOrderAllowed(order)
	if !allowed {
		l.recordViolation(ctx, violation)
		return nil
	}

	before, err := l.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account fetch failed: %w", err)
	}

	placed, err := l.broker.PlaceOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("order placement failed: %w", err)
	}
	l.publish(ctx, events.New(events.EventOrderPlaced, placed.Symbol, placed))

	if placed.Status == model.OrderStatusRejected {
		l.logger.Warn("order rejected by broker",
			zap.String("order_id", placed.OrderID),
			zap.String("symbol", placed.Symbol),
		)
		return nil
	}

	l.lastSignal = signal

	if placed.Status == model.OrderStatusFilled {
		if err := l.recordFill(ctx, placed, before, marketPrice); err != nil {
			return err
		}
	}
	return nil
}

// recordFill builds the trade record from the filled order, attributes the
// realized P&L delta, and runs the post-trade guard checks
func (l *TradingLoop) recordFill(ctx context.Context, order *model.Order, before model.AccountInfo, expectedPrice float64) error {
	after, err := l.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account fetch failed: %w", err)
	}

	trade := model.NewTrade(order.OrderID, order.Symbol, order.Side,
		order.FilledQuantity, order.FilledPrice, order.Commission)
	if delta := after.RealizedPnL - before.RealizedPnL; delta != 0 {
		trade = trade.WithRealizedPnL(delta)
	}

	l.guard.AddTrade(trade)
	if v := l.guard.CheckTradeSlippage(trade, expectedPrice); v != nil {
		l.recordViolation(ctx, v)
	}

	// A journaled trade reaches the sinks through the outbox publisher;
	// publishing it here as well would deliver every fill twice. The live
	// publish is the fallback path when persistence is off or failing.
	if l.journal != nil {
		if err := l.journal.RecordTrade(ctx, trade); err != nil {
			l.logger.Error("trade journaling failed",
				zap.String("trade_id", trade.TradeID),
				zap.Error(err),
			)
			l.publish(ctx, events.New(events.EventTradeCompleted, trade.Symbol, trade))
		}
	} else {
		l.publish(ctx, events.New(events.EventTradeCompleted, trade.Symbol, trade))
	}

	l.logger.Info("trade completed",
		zap.String("trade_id", trade.TradeID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.Float64("quantity", trade.Quantity),
		zap.Float64("price", trade.Price),
	)
	return nil
}

// recordViolation journals or publishes the violation and tags halt
// transitions. Journaled violations reach the sinks through the outbox
// only; halt events are not journaled and always go out live.
func (l *TradingLoop) recordViolation(ctx context.Context, v *model.GuardViolation) {
	if l.journal != nil {
		if err := l.journal.RecordViolation(ctx, v); err != nil {
			l.logger.Error("violation journaling failed", zap.Error(err))
			l.publish(ctx, events.New(events.EventViolation, v.Symbol, v))
		}
	} else {
		l.publish(ctx, events.New(events.EventViolation, v.Symbol, v))
	}

	if v.Action == model.ActionHaltGlobal || v.Action == model.ActionHaltSymbol {
		l.publish(ctx, events.New(events.EventHaltTriggered, v.Symbol, v))
	}
}

func (l *TradingLoop) publish(ctx context.Context, event events.Event) {
	if err := l.sink.Publish(ctx, event); err != nil {
		l.logger.Warn("event publish failed",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
