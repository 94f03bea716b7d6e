package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders placed and cancelled, by type and symbol",
		},
		[]string{"type", "symbol"},
	)

	tradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Completed trades by symbol",
		},
		[]string{"symbol"},
	)

	violationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_guard_violations_total",
			Help: "Guard violations and halt transitions, by event type",
		},
		[]string{"type", "symbol"},
	)

	brokerLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_broker_latency_seconds",
			Help:    "Broker round-trip latency samples",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// LatencySample is the payload of an EventLatencySample event
type LatencySample struct {
	Milliseconds float64 `json:"milliseconds"`
}

// PrometheusSink increments counters from the event stream. Registration
// happens at package init via promauto, so multiple sink instances share
// the same collectors.
type PrometheusSink struct{}

// NewPrometheusSink creates a metrics-recording sink
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

func (s *PrometheusSink) Publish(ctx context.Context, event Event) error {
	switch event.Type {
	case EventOrderPlaced, EventOrderCancelled:
		ordersTotal.WithLabelValues(string(event.Type), event.Symbol).Inc()
	case EventTradeCompleted:
		tradesTotal.WithLabelValues(event.Symbol).Inc()
	case EventViolation, EventHaltTriggered, EventHaltResumed:
		violationsTotal.WithLabelValues(string(event.Type), event.Symbol).Inc()
	case EventLatencySample:
		if sample, ok := event.Payload.(LatencySample); ok {
			brokerLatencySeconds.Observe(sample.Milliseconds / 1000)
		}
	}
	return nil
}

func (s *PrometheusSink) Close() {}
