package broker

import (
	"context"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/model"
)

// ConnState is the connection lifecycle state
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateSuspended
	StateError
)

// String returns the state name
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateSuspended:
		return "SUSPENDED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarketData is a point-in-time quote for one symbol
type MarketData struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid,omitempty"`
	Ask       float64   `json:"ask,omitempty"`
	Volume    float64   `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderFilter narrows GetOrders results; zero values match everything
type OrderFilter struct {
	Symbol string
	Status model.OrderStatus
	Since  time.Time
}

// Matches reports whether the order passes the filter
func (f OrderFilter) Matches(o *model.Order) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && o.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// TickCallback receives pushed market data for a subscribed symbol
type TickCallback func(MarketData)

// HealthStatus is the snapshot returned by HealthCheck
type HealthStatus struct {
	Name      string                `json:"name"`
	State     string                `json:"state"`
	Connected bool                  `json:"connected"`
	UptimeSec float64               `json:"uptime_sec"`
	Metrics   model.MetricsSnapshot `json:"metrics"`
}

// Connection is the broker contract. SimulatedBroker implements it in
// memory; concrete network adapters implement it against real APIs.
//
// Business-level rejections come back as orders with status REJECTED and a
// nil error; a non-nil error always means a transport-level failure. Read
// paths (account, positions, market data) log failures and return empty
// results so a polling loop is never aborted by one bad call.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	State() ConnState

	PlaceOrder(ctx context.Context, order *model.Order) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	GetOrders(ctx context.Context, filter OrderFilter) ([]*model.Order, error)

	GetAccount(ctx context.Context) (model.AccountInfo, error)
	GetPositions(ctx context.Context) ([]*model.Position, error)
	GetPosition(ctx context.Context, symbol string) (*model.Position, error)
	GetMarketData(ctx context.Context, symbol string) (MarketData, error)

	SubscribeMarketData(symbols []string, cb TickCallback)
	UnsubscribeMarketData(symbols []string)

	HealthCheck() HealthStatus
}
