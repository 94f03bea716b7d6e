package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies what happened
type EventType string

const (
	EventOrderPlaced    EventType = "order_placed"
	EventOrderCancelled EventType = "order_cancelled"
	EventTradeCompleted EventType = "trade_completed"
	EventViolation      EventType = "violation"
	EventHaltTriggered  EventType = "halt_triggered"
	EventHaltResumed    EventType = "halt_resumed"
	EventLatencySample  EventType = "latency_sample"
)

// Event is one entry in the engine's activity stream. Payload carries the
// domain object (order, trade, violation) as-is; sinks that need bytes
// marshal it themselves.
type Event struct {
	EventID   string    `json:"event_id"`
	Type      EventType `json:"type"`
	Symbol    string    `json:"symbol,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event with a fresh ID and the current time
func New(eventType EventType, symbol string, payload any) Event {
	return Event{
		EventID:   uuid.New().String(),
		Type:      eventType,
		Symbol:    symbol,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Sink receives engine events. Implementations must be safe for concurrent
// use; publish failures are the sink's problem to report, the engine never
// blocks trading on a sink error.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, event Event) error { return nil }
func (NopSink) Close()                                         {}

// LogSink writes each event to the structured log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs events at info level
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, event Event) error {
	s.logger.Info("event",
		zap.String("event_id", event.EventID),
		zap.String("type", string(event.Type)),
		zap.String("symbol", event.Symbol),
		zap.Time("event_time", event.Timestamp),
	)
	return nil
}

func (s *LogSink) Close() {}

// MultiSink fans one event out to several sinks. Every sink is attempted
// even when an earlier one fails; the first error is returned.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks; nil entries are skipped
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() {
	for _, s := range m.sinks {
		s.Close()
	}
}
