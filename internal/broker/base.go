package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/model"
	"go.uber.org/zap"
)

// ConnBase is the bookkeeping shared by every Connection implementation:
// the lifecycle state machine, reconnection with backoff, the blocking rate
// throttle, the market data callback registry, and telemetry. Adapters
// compose it rather than inherit it.
type ConnBase struct {
	name   string
	logger *zap.Logger

	state              atomic.Int32
	connectionAttempts atomic.Int64
	reconnecting       atomic.Bool

	maxRetries int
	retryDelay time.Duration

	limiter *rateLimiter
	metrics *model.BrokerMetrics

	mu          sync.Mutex
	connectedAt time.Time

	cbMu      sync.RWMutex
	callbacks map[string][]TickCallback
}

// ConnConfig holds the connection parameters shared by all adapters
type ConnConfig struct {
	Name               string
	MaxRetries         int
	RetryDelay         time.Duration
	RateLimitPerMinute int
}

// NewConnBase creates the shared connection bookkeeping
func NewConnBase(cfg ConnConfig, logger *zap.Logger) *ConnBase {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	b := &ConnBase{
		name:       cfg.Name,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    newRateLimiter(cfg.RateLimitPerMinute),
		metrics:    model.NewBrokerMetrics(),
		callbacks:  make(map[string][]TickCallback),
	}
	b.state.Store(int32(StateDisconnected))
	return b
}

// State returns the current connection state
func (b *ConnBase) State() ConnState {
	return ConnState(b.state.Load())
}

// SetState transitions the state machine and logs the edge
func (b *ConnBase) SetState(s ConnState) {
	old := ConnState(b.state.Swap(int32(s)))
	if old == s {
		return
	}
	if s == StateConnected {
		b.mu.Lock()
		b.connectedAt = time.Now()
		b.mu.Unlock()
		b.metrics.UpdateHeartbeat()
	}
	b.logger.Info("connection state changed",
		zap.String("broker", b.name),
		zap.String("from", old.String()),
		zap.String("to", s.String()),
	)
}

// Suspend marks the connection SUSPENDED while trading is halted upstream.
// The session stays open; only CONNECTED transitions to SUSPENDED.
func (b *ConnBase) Suspend() {
	if b.state.CompareAndSwap(int32(StateConnected), int32(StateSuspended)) {
		b.logger.Warn("connection suspended", zap.String("broker", b.name))
	}
}

// ResumeFromSuspend returns a SUSPENDED connection to CONNECTED
func (b *ConnBase) ResumeFromSuspend() {
	if b.state.CompareAndSwap(int32(StateSuspended), int32(StateConnected)) {
		b.logger.Info("connection resumed", zap.String("broker", b.name))
	}
}

// RecordConnectFailure counts a failed connect and transitions to ERROR
func (b *ConnBase) RecordConnectFailure() {
	b.connectionAttempts.Add(1)
	b.SetState(StateError)
}

// ConnectionAttempts returns the number of failed connect calls
func (b *ConnBase) ConnectionAttempts() int64 {
	return b.connectionAttempts.Load()
}

// ReconnectWithBackoff retries connect up to maxRetries times with
// exponential backoff: the first gap is retryDelay and each one doubles.
// The reconnect counter is incremented once per call regardless of attempt
// count. Backoff sleeps are cancellable through ctx. Concurrent calls on
// the same connection are rejected so no two reconnects race on the state
// machine.
func (b *ConnBase) ReconnectWithBackoff(ctx context.Context, connect func(context.Context) error) error {
	if !b.reconnecting.CompareAndSwap(false, true) {
		return fmt.Errorf("reconnect already in progress for %s", b.name)
	}
	defer b.reconnecting.Store(false)

	b.metrics.RecordReconnect()

	var lastErr error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.retryDelay * (1 << uint(attempt-1))
			b.logger.Info("reconnect backoff",
				zap.String("broker", b.name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := connect(ctx); err != nil {
			lastErr = err
			b.logger.Warn("reconnect attempt failed",
				zap.String("broker", b.name),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", b.maxRetries),
				zap.Error(err),
			)
			continue
		}

		b.logger.Info("reconnected",
			zap.String("broker", b.name),
			zap.Int("attempts", attempt+1),
		)
		return nil
	}

	b.SetState(StateError)
	return fmt.Errorf("reconnect failed after %d attempts: %w", b.maxRetries, lastErr)
}

// Throttle blocks the caller until the rate budget allows another call
func (b *ConnBase) Throttle(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// Metrics exposes the connection telemetry
func (b *ConnBase) Metrics() *model.BrokerMetrics {
	return b.metrics
}

// RecordLatencySince records the elapsed time of one network call
func (b *ConnBase) RecordLatencySince(start time.Time) {
	b.metrics.RecordLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	b.metrics.UpdateHeartbeat()
}

// Uptime returns how long the connection has been up; zero when not connected
func (b *ConnBase) Uptime() time.Duration {
	s := b.State()
	if s != StateConnected && s != StateSuspended {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectedAt.IsZero() {
		return 0
	}
	return time.Since(b.connectedAt)
}

// SubscribeMarketData registers a callback per symbol. Multiple callbacks
// per symbol are allowed and all fire on each tick.
func (b *ConnBase) SubscribeMarketData(symbols []string, cb TickCallback) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	for _, s := range symbols {
		b.callbacks[s] = append(b.callbacks[s], cb)
	}
}

// UnsubscribeMarketData removes every callback for the given symbols
func (b *ConnBase) UnsubscribeMarketData(symbols []string) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	for _, s := range symbols {
		delete(b.callbacks, s)
	}
}

// Dispatch fans a tick out to all callbacks registered for its symbol
func (b *ConnBase) Dispatch(md MarketData) {
	b.cbMu.RLock()
	cbs := b.callbacks[md.Symbol]
	b.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(md)
	}
}

// HealthCheck returns the state, connectivity, uptime and a metrics snapshot
func (b *ConnBase) HealthCheck() HealthStatus {
	s := b.State()
	return HealthStatus{
		Name:      b.name,
		State:     s.String(),
		Connected: s == StateConnected || s == StateSuspended,
		UptimeSec: b.Uptime().Seconds(),
		Metrics:   b.metrics.Snapshot(),
	}
}
