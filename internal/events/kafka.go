package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic names
const (
	TopicEngineEvents = "engine.events"
	TopicTrades       = "engine.trades"
	TopicViolations   = "engine.violations"
)

// KafkaSink publishes events to Kafka, keyed by symbol so one symbol's
// events stay ordered within a partition
type KafkaSink struct {
	client *kgo.Client
	logger *zap.Logger
	done   chan struct{}

	produceCount int64
	errorCount   int64
}

// NewKafkaSink creates a Kafka-backed sink
func NewKafkaSink(brokers []string, clientID string, logger *zap.Logger) (*KafkaSink, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	s := &KafkaSink{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Info("kafka sink initialized", zap.Strings("brokers", brokers))
	go s.logStats()

	return s, nil
}

// Publish produces the event synchronously with a bounded timeout
func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		atomic.AddInt64(&s.errorCount, 1)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: topicFor(event.Type),
		Key:   []byte(event.Symbol),
		Value: data,
	}

	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := s.client.ProduceSync(produceCtx, record)
	if result.FirstErr() != nil {
		atomic.AddInt64(&s.errorCount, 1)
		return fmt.Errorf("failed to produce event: %w", result.FirstErr())
	}

	atomic.AddInt64(&s.produceCount, 1)
	return nil
}

// Close stops the stats loop and closes the client
func (s *KafkaSink) Close() {
	close(s.done)
	if s.client != nil {
		s.client.Close()
	}
}

func topicFor(eventType EventType) string {
	switch eventType {
	case EventTradeCompleted:
		return TopicTrades
	case EventViolation, EventHaltTriggered, EventHaltResumed:
		return TopicViolations
	default:
		return TopicEngineEvents
	}
}

// logStats logs producer statistics periodically
func (s *KafkaSink) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.logger.Info("kafka sink stats",
				zap.Int64("produced", atomic.LoadInt64(&s.produceCount)),
				zap.Int64("errors", atomic.LoadInt64(&s.errorCount)),
			)
		}
	}
}
