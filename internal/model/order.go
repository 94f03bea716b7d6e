package model

import (
	"fmt"
	"time"
)

// Side represents the order side
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType represents the order type
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status admits no further transitions
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order represents an order in flight or completed.
// OrderID is assigned by the broker on acceptance and is empty before.
// Only the broker that accepted the order mutates it.
type Order struct {
	OrderID        string      `json:"order_id,omitempty"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"side"`
	Quantity       float64     `json:"quantity"`
	Type           OrderType   `json:"type"`
	Price          float64     `json:"price,omitempty"`
	StopPrice      float64     `json:"stop_price,omitempty"`
	Status         OrderStatus `json:"status"`
	FilledQuantity float64     `json:"filled_quantity"`
	FilledPrice    float64     `json:"filled_price,omitempty"`
	Commission     float64     `json:"commission"`
	Timestamp      time.Time   `json:"timestamp"`
}

// NewOrder validates the order parameters and returns a PENDING order.
// Contract violations fail here, before any component sees the order.
func NewOrder(symbol string, side Side, quantity float64, orderType OrderType, price, stopPrice float64) (*Order, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be greater than 0, got %v", quantity)
	}
	switch orderType {
	case OrderTypeMarket:
	case OrderTypeLimit, OrderTypeStopLimit:
		if price <= 0 {
			return nil, fmt.Errorf("%s order requires a positive price", orderType)
		}
	case OrderTypeStop:
	default:
		return nil, fmt.Errorf("invalid order type %q", orderType)
	}
	if (orderType == OrderTypeStop || orderType == OrderTypeStopLimit) && stopPrice <= 0 {
		return nil, fmt.Errorf("%s order requires a positive stop price", orderType)
	}
	if price < 0 || stopPrice < 0 {
		return nil, fmt.Errorf("prices cannot be negative")
	}

	return &Order{
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Type:      orderType,
		Price:     price,
		StopPrice: stopPrice,
		Status:    OrderStatusPending,
		Timestamp: time.Now(),
	}, nil
}

// Clone returns a copy so callers cannot mutate broker-owned state
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}
