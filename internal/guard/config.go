package guard

import (
	"fmt"
	"time"
)

// Config holds the risk thresholds evaluated by the guard. Fields are
// fixed at construction; validation runs once so a misconfigured guard
// fails at startup instead of silently allowing trades.
type Config struct {
	// Daily loss circuit breaker
	MaxDailyLossDollars float64
	MaxDailyLossPercent float64

	// Per-symbol position caps
	MaxPositionPerSymbolDollars float64
	MaxPositionPerSymbolPercent float64

	// Consecutive-loss circuit breaker
	MaxConsecutiveLosses int
	LossLookback         time.Duration

	// Slippage monitoring with cumulative escalation
	MaxSlippageBps             float64
	SlippageViolationThreshold int

	// Order rate limits: minute breaches alert, hour breaches halt
	MaxOrdersPerMinute int
	MaxOrdersPerHour   int

	// Connectivity monitoring
	MaxLatencyMs float64

	// Halt lifecycle
	DefaultHaltDuration time.Duration
	AutoResume          bool
}

// DefaultConfig returns conservative defaults for paper trading
func DefaultConfig() Config {
	return Config{
		MaxDailyLossDollars:         1000,
		MaxDailyLossPercent:         0.02,
		MaxPositionPerSymbolDollars: 5000,
		MaxPositionPerSymbolPercent: 0.10,
		MaxConsecutiveLosses:        3,
		LossLookback:                24 * time.Hour,
		MaxSlippageBps:              15,
		SlippageViolationThreshold:  3,
		MaxOrdersPerMinute:          10,
		MaxOrdersPerHour:            100,
		MaxLatencyMs:                1000,
		DefaultHaltDuration:         30 * time.Minute,
		AutoResume:                  false,
	}
}

// Validate rejects threshold combinations that would make the guard inert
// or nonsensical
func (c Config) Validate() error {
	if c.MaxDailyLossDollars <= 0 {
		return fmt.Errorf("max daily loss dollars must be positive, got %v", c.MaxDailyLossDollars)
	}
	if c.MaxDailyLossPercent <= 0 || c.MaxDailyLossPercent >= 1 {
		return fmt.Errorf("max daily loss percent must be in (0,1), got %v", c.MaxDailyLossPercent)
	}
	if c.MaxPositionPerSymbolDollars <= 0 {
		return fmt.Errorf("max position dollars must be positive, got %v", c.MaxPositionPerSymbolDollars)
	}
	if c.MaxPositionPerSymbolPercent <= 0 || c.MaxPositionPerSymbolPercent > 1 {
		return fmt.Errorf("max position percent must be in (0,1], got %v", c.MaxPositionPerSymbolPercent)
	}
	if c.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("max consecutive losses must be positive, got %d", c.MaxConsecutiveLosses)
	}
	if c.LossLookback <= 0 {
		return fmt.Errorf("loss lookback must be positive, got %v", c.LossLookback)
	}
	if c.MaxSlippageBps <= 0 {
		return fmt.Errorf("max slippage bps must be positive, got %v", c.MaxSlippageBps)
	}
	if c.SlippageViolationThreshold <= 0 {
		return fmt.Errorf("slippage violation threshold must be positive, got %d", c.SlippageViolationThreshold)
	}
	if c.MaxOrdersPerMinute <= 0 || c.MaxOrdersPerHour <= 0 {
		return fmt.Errorf("order rate limits must be positive")
	}
	if c.MaxOrdersPerMinute > c.MaxOrdersPerHour {
		return fmt.Errorf("max orders per minute (%d) cannot exceed max orders per hour (%d)",
			c.MaxOrdersPerMinute, c.MaxOrdersPerHour)
	}
	if c.MaxLatencyMs <= 0 {
		return fmt.Errorf("max latency must be positive, got %v", c.MaxLatencyMs)
	}
	if c.DefaultHaltDuration <= 0 {
		return fmt.Errorf("default halt duration must be positive, got %v", c.DefaultHaltDuration)
	}
	return nil
}
