package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Injector provides deterministic failure injection for broker I/O paths.
// A nil Injector is inert, so callers can hold one unconditionally.
type Injector struct {
	cfg    *Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
}

// New creates a new Injector
func New(cfg *Config, logger *zap.Logger) *Injector {
	c := &Injector{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
	}

	// Apply profile if set
	if cfg.Profile != "" {
		dropPct, delayMin, delayMax, disconnectPct, err := ParseProfile(cfg.Profile)
		if err != nil {
			logger.Warn("failed to parse chaos profile", zap.Error(err))
		} else {
			if dropPct > 0 {
				cfg.DropPct = dropPct
			}
			if disconnectPct > 0 {
				cfg.DisconnectPct = disconnectPct
			}
			if delayMin > 0 || delayMax > 0 {
				cfg.DelayMsMin = delayMin
				cfg.DelayMsMax = delayMax
			}
		}
	}

	return c
}

// Enabled checks if injection is currently active
func (c *Injector) Enabled() bool {
	if c == nil || !c.cfg.Enabled {
		return false
	}

	// Check if window expired
	if c.cfg.WindowMs > 0 {
		elapsed := time.Since(c.start).Milliseconds()
		if elapsed > int64(c.cfg.WindowMs) {
			return false
		}
	}

	return true
}

// MaybeDelay injects a random delay if injection is active
func (c *Injector) MaybeDelay(ctx context.Context, op string) error {
	if !c.Enabled() {
		return nil
	}

	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	var delayMs int
	if c.cfg.DelayMsMin == c.cfg.DelayMsMax {
		delayMs = c.cfg.DelayMsMin
	} else {
		delayMs = c.cfg.DelayMsMin + c.rng.Intn(c.cfg.DelayMsMax-c.cfg.DelayMsMin+1)
	}
	c.mu.Unlock()

	if delayMs > 0 {
		c.logger.Info("chaos delay injected",
			zap.String("op", op),
			zap.Int("delay_ms", delayMs),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
			return nil
		}
	}

	return nil
}

// MaybeDrop returns true if the call should fail as a transport error
func (c *Injector) MaybeDrop(op string) bool {
	if !c.Enabled() || c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Info("chaos drop injected",
			zap.String("op", op),
			zap.Bool("dropped", true),
		)
	}

	return drop
}

// MaybeDisconnect returns true if the connection should be torn down
func (c *Injector) MaybeDisconnect(op string) bool {
	if !c.Enabled() || c.cfg.DisconnectPct == 0 {
		return false
	}

	c.mu.Lock()
	disconnect := c.rng.Intn(100) < c.cfg.DisconnectPct
	c.mu.Unlock()

	if disconnect {
		c.logger.Warn("chaos disconnect injected", zap.String("op", op))
	}

	return disconnect
}
