package engine

import (
	"fmt"
	"time"
)

// Bar is one aggregated price sample in the rolling history
type Bar struct {
	Symbol    string    `json:"symbol"`
	Close     float64   `json:"close"`
	Timestamp time.Time `json:"timestamp"`
}

// Strategy turns a price history into a directional signal:
// +1 buy, -1 sell, 0 do nothing. Implementations must be pure with respect
// to the bars slice and must not retain it.
type Strategy interface {
	Signal(bars []Bar) int
	Name() string
}

// SMACross signals on simple-moving-average crossovers: fast above slow is
// a buy, fast below slow is a sell
type SMACross struct {
	fast int
	slow int
}

// NewSMACross builds the crossover strategy. The fast period must be
// strictly shorter than the slow period.
func NewSMACross(fast, slow int) (*SMACross, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("sma periods must be positive, got fast=%d slow=%d", fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast period (%d) must be shorter than slow period (%d)", fast, slow)
	}
	return &SMACross{fast: fast, slow: slow}, nil
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma_cross_%d_%d", s.fast, s.slow)
}

// Signal compares the fast and slow averages over the tail of the history.
// Fewer bars than the slow period means no opinion.
func (s *SMACross) Signal(bars []Bar) int {
	if len(bars) < s.slow {
		return 0
	}

	fastAvg := sma(bars, s.fast)
	slowAvg := sma(bars, s.slow)

	switch {
	case fastAvg > slowAvg:
		return 1
	case fastAvg < slowAvg:
		return -1
	default:
		return 0
	}
}

func sma(bars []Bar, period int) float64 {
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period)
}
