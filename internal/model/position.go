package model

import "math"

// QuantityEpsilon is the threshold below which a position counts as closed.
// The owning broker deletes positions under it instead of keeping zeroed rows.
const QuantityEpsilon = 1e-9

// Position is a signed holding for one symbol. Positive quantity is long,
// negative is short. Updated by exactly one writer, the owning broker.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
}

// MarketValue returns the signed value of the position at the current price
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// MarkPrice updates the current price and recomputes unrealized P&L
func (p *Position) MarkPrice(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.AvgEntryPrice) * p.Quantity
}

// ApplyFill applies an execution to the position. Extending an existing
// direction recomputes the entry as a quantity-weighted average; reducing
// realizes P&L on the closed portion. Returns the realized amount and
// whether the position is now closed (|quantity| < epsilon).
func (p *Position) ApplyFill(side Side, quantity, price float64) (realized float64, closed bool) {
	delta := quantity
	if side == SideSell {
		delta = -quantity
	}

	switch {
	case math.Abs(p.Quantity) < QuantityEpsilon:
		// Opening
		p.Quantity = delta
		p.AvgEntryPrice = price
	case sameSign(p.Quantity, delta):
		// Extending: weighted-average cost
		oldAbs := math.Abs(p.Quantity)
		p.AvgEntryPrice = (oldAbs*p.AvgEntryPrice + quantity*price) / (oldAbs + quantity)
		p.Quantity += delta
	default:
		// Reducing, possibly flipping direction
		closing := math.Min(quantity, math.Abs(p.Quantity))
		if p.Quantity > 0 {
			realized = closing * (price - p.AvgEntryPrice)
		} else {
			realized = closing * (p.AvgEntryPrice - price)
		}
		p.RealizedPnL += realized
		p.Quantity += delta
		if math.Abs(p.Quantity) >= QuantityEpsilon && !sameSign(p.Quantity, -delta) {
			// Flipped: the remainder opened at the fill price
			p.AvgEntryPrice = price
		}
	}

	p.MarkPrice(price)
	return realized, math.Abs(p.Quantity) < QuantityEpsilon
}

// Clone returns a copy for read paths
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}

func sameSign(a, b float64) bool {
	return (a > 0) == (b > 0)
}
