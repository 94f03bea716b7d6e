package guard

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/model"
	"go.uber.org/zap"
)

// Guard is the admission-control engine: every outbound order and every
// completed trade is evaluated against the configured risk rules, and the
// guard owns global and per-symbol halt state. It performs no I/O. A single
// mutex serializes callers, since the polling loop and live-data callbacks
// may both submit orders through one instance.
type Guard struct {
	cfg    Config
	logger *zap.Logger

	mu sync.Mutex

	active           bool
	globalHalt       bool
	globalHaltTime   time.Time
	globalHaltReason string
	globalHaltCause  model.ViolationType
	haltedSymbols    map[string]symbolHalt

	recentTrades       []*model.Trade
	orderTimes         []time.Time
	slippageViolations int

	accountBalance float64
	dailyPnL       float64
	positions      map[string]*model.Position
	marketPrices   map[string]float64

	violations []model.GuardViolation

	now func() time.Time
}

// symbolHalt records when a symbol was halted and which rule did it
type symbolHalt struct {
	at    time.Time
	cause model.ViolationType
}

// Status is the non-mutating snapshot returned by Status()
type Status struct {
	Active             bool      `json:"active"`
	GlobalHalt         bool      `json:"global_halt"`
	GlobalHaltReason   string    `json:"global_halt_reason,omitempty"`
	GlobalHaltTime     time.Time `json:"global_halt_time,omitempty"`
	HaltedSymbols      []string  `json:"halted_symbols,omitempty"`
	RecentTrades       int       `json:"recent_trades"`
	OrdersLastHour     int       `json:"orders_last_hour"`
	SlippageViolations int       `json:"slippage_violations"`
	TotalViolations    int       `json:"total_violations"`
	DailyPnL           float64   `json:"daily_pnl"`
	AccountBalance     float64   `json:"account_balance"`
}

// New creates a guard with validated configuration
func New(cfg Config, logger *zap.Logger) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard config: %w", err)
	}
	return &Guard{
		cfg:           cfg,
		logger:        logger,
		active:        true,
		haltedSymbols: make(map[string]symbolHalt),
		positions:     make(map[string]*model.Position),
		marketPrices:  make(map[string]float64),
		now:           time.Now,
	}, nil
}

// CheckOrderAllowed decides whether the order may be submitted. Checks run
// in a fixed order and short-circuit on the first rejection. When every
// check passes, the only state mutated is the order-rate timestamp log.
func (g *Guard) CheckOrderAllowed(order *model.Order) (bool, *model.GuardViolation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return true, nil
	}
	now := g.now()

	if g.globalHaltActive(now) {
		v := g.record(model.GuardViolation{
			Type:      g.globalHaltCause,
			Message:   fmt.Sprintf("trading globally halted: %s", g.globalHaltReason),
			Severity:  model.SeverityCritical,
			Action:    model.ActionRejectOrder,
			Symbol:    order.Symbol,
			Timestamp: now,
		})
		return false, v
	}

	if cause, halted := g.symbolHaltActive(order.Symbol, now); halted {
		v := g.record(model.GuardViolation{
			Type:      cause,
			Message:   fmt.Sprintf("trading halted for symbol %s", order.Symbol),
			Severity:  model.SeverityHigh,
			Action:    model.ActionRejectOrder,
			Symbol:    order.Symbol,
			Timestamp: now,
		})
		return false, v
	}

	if v := g.checkDailyLoss(now); v != nil {
		return false, v
	}
	if v := g.checkPositionSize(order, now); v != nil {
		return false, v
	}
	if v := g.checkConsecutiveLosses(order, now); v != nil {
		return false, v
	}
	if v := g.checkOrderRate(order, now); v != nil {
		return false, v
	}

	return true, nil
}

// checkDailyLoss triggers a global halt when the day's loss exceeds either
// the dollar cap or the percent-of-balance cap. Both limits are evaluated
// so whichever is more restrictive for the current balance fires.
func (g *Guard) checkDailyLoss(now time.Time) *model.GuardViolation {
	if g.dailyPnL >= 0 {
		return nil
	}
	loss := -g.dailyPnL

	limit := g.cfg.MaxDailyLossDollars
	if g.accountBalance > 0 {
		pctLimit := g.accountBalance * g.cfg.MaxDailyLossPercent
		if pctLimit < limit {
			limit = pctLimit
		}
	}
	if loss <= limit {
		return nil
	}

	g.haltGlobal(fmt.Sprintf("daily loss %.2f exceeds limit %.2f", loss, limit), model.ViolationDailyLoss, now)
	return g.record(model.GuardViolation{
		Type:      model.ViolationDailyLoss,
		Message:   fmt.Sprintf("daily loss %.2f exceeds limit %.2f", loss, limit),
		Severity:  model.SeverityCritical,
		Action:    model.ActionHaltGlobal,
		Value:     loss,
		Threshold: limit,
		Timestamp: now,
	})
}

// checkPositionSize rejects orders whose hypothetical post-fill position
// value breaches the per-symbol caps, halting that symbol
func (g *Guard) checkPositionSize(order *model.Order, now time.Time) *model.GuardViolation {
	refPrice := order.Price
	if refPrice <= 0 {
		refPrice = g.marketPrices[order.Symbol]
	}
	if refPrice <= 0 {
		// No price to evaluate against; cannot compute exposure
		return nil
	}

	var current float64
	if pos, ok := g.positions[order.Symbol]; ok {
		current = pos.Quantity
	}
	delta := order.Quantity
	if order.Side == model.SideSell {
		delta = -order.Quantity
	}
	hypothetical := math.Abs(current+delta) * refPrice

	limit := g.cfg.MaxPositionPerSymbolDollars
	if g.accountBalance > 0 {
		pctLimit := g.accountBalance * g.cfg.MaxPositionPerSymbolPercent
		if pctLimit < limit {
			limit = pctLimit
		}
	}
	if hypothetical <= limit {
		return nil
	}

	g.haltedSymbols[order.Symbol] = symbolHalt{at: now, cause: model.ViolationPositionSize}
	g.logger.Warn("symbol halted on position size",
		zap.String("symbol", order.Symbol),
		zap.Float64("hypothetical_value", hypothetical),
		zap.Float64("limit", limit),
	)
	return g.record(model.GuardViolation{
		Type:      model.ViolationPositionSize,
		Message:   fmt.Sprintf("hypothetical position value %.2f for %s exceeds limit %.2f", hypothetical, order.Symbol, limit),
		Severity:  model.SeverityHigh,
		Action:    model.ActionHaltSymbol,
		Symbol:    order.Symbol,
		Value:     hypothetical,
		Threshold: limit,
		Timestamp: now,
	})
}

// checkConsecutiveLosses halts globally when the most recent trades form an
// unbroken losing streak. A trade is a loss iff its realized P&L is
// negative; one winning trade anywhere in the tail is a hard break. Fills
// with no realized P&L (opening trades) neither extend nor break a streak.
func (g *Guard) checkConsecutiveLosses(order *model.Order, now time.Time) *model.GuardViolation {
	cutoff := now.Add(-g.cfg.LossLookback)

	var tail []*model.Trade
	for i := len(g.recentTrades) - 1; i >= 0 && len(tail) < g.cfg.MaxConsecutiveLosses; i-- {
		t := g.recentTrades[i]
		if t.Timestamp.Before(cutoff) {
			break
		}
		if t.RealizedPnL == nil {
			continue
		}
		tail = append(tail, t)
	}
	if len(tail) < g.cfg.MaxConsecutiveLosses {
		return nil
	}
	for _, t := range tail {
		if *t.RealizedPnL >= 0 {
			return nil
		}
	}

	g.haltGlobal(fmt.Sprintf("%d consecutive losing trades", g.cfg.MaxConsecutiveLosses), model.ViolationConsecutiveLosses, now)
	return g.record(model.GuardViolation{
		Type:      model.ViolationConsecutiveLosses,
		Message:   fmt.Sprintf("%d consecutive losing trades", g.cfg.MaxConsecutiveLosses),
		Severity:  model.SeverityCritical,
		Action:    model.ActionHaltGlobal,
		Symbol:    order.Symbol,
		Value:     float64(g.cfg.MaxConsecutiveLosses),
		Threshold: float64(g.cfg.MaxConsecutiveLosses),
		Timestamp: now,
	})
}

// checkOrderRate records this order's timestamp, then enforces the rate
// caps. A minute breach is a soft rejection; an hour breach halts globally.
func (g *Guard) checkOrderRate(order *model.Order, now time.Time) *model.GuardViolation {
	g.orderTimes = append(g.orderTimes, now)

	hourCutoff := now.Add(-time.Hour)
	pruned := g.orderTimes[:0]
	for _, ts := range g.orderTimes {
		if !ts.Before(hourCutoff) {
			pruned = append(pruned, ts)
		}
	}
	g.orderTimes = pruned

	if len(g.orderTimes) > g.cfg.MaxOrdersPerHour {
		g.haltGlobal(fmt.Sprintf("order rate %d/hour exceeds limit %d", len(g.orderTimes), g.cfg.MaxOrdersPerHour), model.ViolationOrderRate, now)
		return g.record(model.GuardViolation{
			Type:      model.ViolationOrderRate,
			Message:   fmt.Sprintf("%d orders in the last hour exceeds limit %d", len(g.orderTimes), g.cfg.MaxOrdersPerHour),
			Severity:  model.SeverityCritical,
			Action:    model.ActionHaltGlobal,
			Symbol:    order.Symbol,
			Value:     float64(len(g.orderTimes)),
			Threshold: float64(g.cfg.MaxOrdersPerHour),
			Timestamp: now,
		})
	}

	minuteCutoff := now.Add(-time.Minute)
	minuteCount := 0
	for _, ts := range g.orderTimes {
		if !ts.Before(minuteCutoff) {
			minuteCount++
		}
	}
	if minuteCount > g.cfg.MaxOrdersPerMinute {
		return g.record(model.GuardViolation{
			Type:      model.ViolationOrderRate,
			Message:   fmt.Sprintf("%d orders in the last minute exceeds limit %d", minuteCount, g.cfg.MaxOrdersPerMinute),
			Severity:  model.SeverityMedium,
			Action:    model.ActionRejectOrder,
			Symbol:    order.Symbol,
			Value:     float64(minuteCount),
			Threshold: float64(g.cfg.MaxOrdersPerMinute),
			Timestamp: now,
		})
	}

	return nil
}

// CheckTradeSlippage compares the fill price against the expected price.
// A breach records a violation and bumps a hysteresis counter; once the
// counter reaches the configured threshold the symbol is halted, even
// though no single event individually warranted it.
func (g *Guard) CheckTradeSlippage(trade *model.Trade, expectedPrice float64) *model.GuardViolation {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || expectedPrice <= 0 {
		return nil
	}
	now := g.now()

	slippageBps := math.Abs(trade.Price-expectedPrice) / expectedPrice * 10000
	if slippageBps <= g.cfg.MaxSlippageBps {
		return nil
	}

	severity := model.SeverityMedium
	if slippageBps >= 2*g.cfg.MaxSlippageBps {
		severity = model.SeverityHigh
	}
	action := model.ActionAlert

	g.slippageViolations++
	if g.slippageViolations == g.cfg.SlippageViolationThreshold {
		g.haltedSymbols[trade.Symbol] = symbolHalt{at: now, cause: model.ViolationSlippage}
		severity = model.SeverityCritical
		action = model.ActionHaltSymbol
		g.logger.Warn("symbol halted on cumulative slippage",
			zap.String("symbol", trade.Symbol),
			zap.Int("violations", g.slippageViolations),
		)
		// Re-arm the breaker: the next run of violations counts from
		// zero, so trading resumed after this halt is still protected
		g.slippageViolations = 0
	}

	return g.record(model.GuardViolation{
		Type:      model.ViolationSlippage,
		Message:   fmt.Sprintf("slippage %.1f bps on %s exceeds %.1f bps", slippageBps, trade.Symbol, g.cfg.MaxSlippageBps),
		Severity:  severity,
		Action:    action,
		Symbol:    trade.Symbol,
		Value:     slippageBps,
		Threshold: g.cfg.MaxSlippageBps,
		Timestamp: now,
	})
}

// CheckConnectivity evaluates broker telemetry. High latency is alert-only;
// a lost connection halts trading globally, since losing broker visibility
// is worse than any single bad trade.
func (g *Guard) CheckConnectivity(latencyMs float64, isConnected bool) *model.GuardViolation {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return nil
	}
	now := g.now()

	if !isConnected {
		g.haltGlobal("broker connection lost", model.ViolationConnectionLost, now)
		return g.record(model.GuardViolation{
			Type:      model.ViolationConnectionLost,
			Message:   "broker connection lost",
			Severity:  model.SeverityCritical,
			Action:    model.ActionHaltGlobal,
			Timestamp: now,
		})
	}

	if latencyMs > g.cfg.MaxLatencyMs {
		severity := model.SeverityMedium
		if latencyMs >= 2*g.cfg.MaxLatencyMs {
			severity = model.SeverityHigh
		}
		return g.record(model.GuardViolation{
			Type:      model.ViolationLatency,
			Message:   fmt.Sprintf("broker latency %.0f ms exceeds %.0f ms", latencyMs, g.cfg.MaxLatencyMs),
			Severity:  severity,
			Action:    model.ActionAlert,
			Value:     latencyMs,
			Threshold: g.cfg.MaxLatencyMs,
			Timestamp: now,
		})
	}

	return nil
}

// ForceHalt is the explicit admin override. An empty symbol halts globally.
func (g *Guard) ForceHalt(reason, symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if symbol == "" {
		g.haltGlobal(reason, model.ViolationManualHalt, now)
		return
	}
	g.haltedSymbols[symbol] = symbolHalt{at: now, cause: model.ViolationManualHalt}
	g.logger.Warn("symbol halt forced", zap.String("symbol", symbol), zap.String("reason", reason))
}

// ResumeTrading clears one symbol's halt, or with an empty symbol clears
// all halt state and the slippage hysteresis counter. Resuming when
// nothing is halted is a no-op.
func (g *Guard) ResumeTrading(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if symbol != "" {
		delete(g.haltedSymbols, symbol)
		g.logger.Info("symbol trading resumed", zap.String("symbol", symbol))
		return
	}

	g.globalHalt = false
	g.globalHaltReason = ""
	g.globalHaltCause = ""
	g.haltedSymbols = make(map[string]symbolHalt)
	g.slippageViolations = 0
	g.logger.Info("all trading resumed")
}

// SetActive flips the master kill-switch; an inactive guard allows everything
func (g *Guard) SetActive(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = active
}

// UpdateAccountBalance is a state hook called by the trading loop
func (g *Guard) UpdateAccountBalance(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accountBalance = balance
}

// UpdateDailyPnL is a state hook called by the trading loop
func (g *Guard) UpdateDailyPnL(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL = pnl
}

// UpdatePositions replaces the guard's view of current positions
func (g *Guard) UpdatePositions(positions []*model.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions = make(map[string]*model.Position, len(positions))
	for _, p := range positions {
		g.positions[p.Symbol] = p.Clone()
	}
}

// UpdateMarketPrice records the last known price for a symbol
func (g *Guard) UpdateMarketPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marketPrices[symbol] = price
}

// AddTrade appends a completed trade and prunes the rolling window
func (g *Guard) AddTrade(trade *model.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.recentTrades = append(g.recentTrades, trade)
	cutoff := g.now().Add(-g.cfg.LossLookback)
	pruned := g.recentTrades[:0]
	for _, t := range g.recentTrades {
		if !t.Timestamp.Before(cutoff) {
			pruned = append(pruned, t)
		}
	}
	g.recentTrades = pruned
}

// IsGlobalHalt reports whether a global halt is currently active
func (g *Guard) IsGlobalHalt() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.globalHaltActive(g.now())
}

// IsSymbolHalted reports whether the symbol is currently halted
func (g *Guard) IsSymbolHalted(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, halted := g.symbolHaltActive(symbol, g.now())
	return halted
}

// Violations returns a copy of the violation history
func (g *Guard) Violations() []model.GuardViolation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.GuardViolation, len(g.violations))
	copy(out, g.violations)
	return out
}

// Status returns an observability snapshot without mutating guard state
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	symbols := make([]string, 0, len(g.haltedSymbols))
	for s := range g.haltedSymbols {
		symbols = append(symbols, s)
	}

	return Status{
		Active:             g.active,
		GlobalHalt:         g.globalHalt,
		GlobalHaltReason:   g.globalHaltReason,
		GlobalHaltTime:     g.globalHaltTime,
		HaltedSymbols:      symbols,
		RecentTrades:       len(g.recentTrades),
		OrdersLastHour:     len(g.orderTimes),
		SlippageViolations: g.slippageViolations,
		TotalViolations:    len(g.violations),
		DailyPnL:           g.dailyPnL,
		AccountBalance:     g.accountBalance,
	}
}

// haltGlobal sets the global halt, remembering which rule caused it so
// later rejections against the halt carry the originating type. Caller
// holds g.mu.
func (g *Guard) haltGlobal(reason string, cause model.ViolationType, now time.Time) {
	if g.globalHalt {
		return
	}
	g.globalHalt = true
	g.globalHaltTime = now
	g.globalHaltReason = reason
	g.globalHaltCause = cause
	g.logger.Warn("global trading halt", zap.String("reason", reason), zap.String("cause", string(cause)))
}

// globalHaltActive checks the halt with lazy expiry. Caller holds g.mu.
// Expiry is evaluated here, on the next relevant guard call, never by a
// background timer.
func (g *Guard) globalHaltActive(now time.Time) bool {
	if !g.globalHalt {
		return false
	}
	if g.cfg.AutoResume && now.Sub(g.globalHaltTime) >= g.cfg.DefaultHaltDuration {
		g.globalHalt = false
		g.globalHaltReason = ""
		g.globalHaltCause = ""
		g.logger.Info("global halt auto-expired")
		return false
	}
	return true
}

// symbolHaltActive checks a symbol halt with lazy expiry, returning the
// rule that caused the halt. Caller holds g.mu.
func (g *Guard) symbolHaltActive(symbol string, now time.Time) (model.ViolationType, bool) {
	halt, ok := g.haltedSymbols[symbol]
	if !ok {
		return "", false
	}
	if g.cfg.AutoResume && now.Sub(halt.at) >= g.cfg.DefaultHaltDuration {
		delete(g.haltedSymbols, symbol)
		g.logger.Info("symbol halt auto-expired", zap.String("symbol", symbol))
		return "", false
	}
	return halt.cause, true
}

// record appends the violation to the history and logs it. Caller holds g.mu.
func (g *Guard) record(v model.GuardViolation) *model.GuardViolation {
	g.violations = append(g.violations, v)
	g.logger.Warn("guard violation",
		zap.String("type", string(v.Type)),
		zap.String("severity", string(v.Severity)),
		zap.String("action", string(v.Action)),
		zap.String("symbol", v.Symbol),
		zap.String("message", v.Message),
	)
	return &v
}
