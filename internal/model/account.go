package model

import "time"

// AccountInfo is a read-only snapshot of the account, recomputed on demand
type AccountInfo struct {
	Balance          float64   `json:"balance"`
	AvailableBalance float64   `json:"available_balance"`
	MarginUsed       float64   `json:"margin_used"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	RealizedPnL      float64   `json:"realized_pnl"`
	PositionsValue   float64   `json:"positions_value"`
	Timestamp        time.Time `json:"timestamp"`
}

// Equity returns balance plus unrealized P&L
func (a AccountInfo) Equity() float64 {
	return a.Balance + a.UnrealizedPnL
}
