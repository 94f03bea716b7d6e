package model

import (
	"time"

	"github.com/google/uuid"
)

// Trade is an immutable execution record, created exactly once per fill
type Trade struct {
	TradeID     string    `json:"trade_id"`
	OrderID     string    `json:"order_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Commission  float64   `json:"commission"`
	Timestamp   time.Time `json:"timestamp"`
	RealizedPnL *float64  `json:"realized_pnl,omitempty"`
}

// NewTrade creates a trade record with a fresh trade ID.
// RealizedPnL stays nil for fills that only open or extend a position.
func NewTrade(orderID, symbol string, side Side, quantity, price, commission float64) *Trade {
	return &Trade{
		TradeID:    uuid.New().String(),
		OrderID:    orderID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
		Timestamp:  time.Now(),
	}
}

// WithRealizedPnL returns a copy carrying the realized P&L of the fill
func (t *Trade) WithRealizedPnL(pnl float64) *Trade {
	cp := *t
	cp.RealizedPnL = &pnl
	return &cp
}
