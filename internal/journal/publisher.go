package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/events"
	"go.uber.org/zap"
)

// Publisher drains the journal outbox to an event sink on a timer. A failed
// publish leaves the row unpublished and the next tick retries it, so
// delivery is at-least-once with ordering per key preserved by the oldest-
// first scan.
type Publisher struct {
	journal   *Journal
	sink      events.Sink
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewPublisher creates an outbox publisher
func NewPublisher(journal *Journal, sink events.Sink, logger *zap.Logger) *Publisher {
	return &Publisher{
		journal:   journal,
		sink:      sink,
		logger:    logger,
		interval:  250 * time.Millisecond,
		batchSize: 100,
	}
}

// Run starts the publisher loop
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil {
				p.logger.Error("failed to publish batch", zap.Error(err))
				// Retries on the next tick
			}
		}
	}
}

// publishBatch publishes one batch of unpublished outbox events
func (p *Publisher) publishBatch(ctx context.Context) error {
	pending, err := p.journal.ListUnpublished(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list unpublished events: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	published := 0

	for _, row := range pending {
		var event events.Event
		if err := json.Unmarshal([]byte(row.PayloadJSON), &event); err != nil {
			// A poison row would block the outbox forever; stamp it and move on
			p.logger.Error("failed to unmarshal outbox payload",
				zap.String("event_id", row.EventID),
				zap.Error(err),
			)
			if err := p.journal.MarkPublished(ctx, row.EventID, now); err != nil {
				return err
			}
			continue
		}

		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.Error("failed to publish outbox event",
				zap.String("event_id", row.EventID),
				zap.String("topic", row.Topic),
				zap.Error(err),
			)
			// Stop the batch so ordering holds; unpublished rows retry later
			break
		}

		if err := p.journal.MarkPublished(ctx, row.EventID, now); err != nil {
			return fmt.Errorf("failed to mark event published: %w", err)
		}
		published++
	}

	if published > 0 {
		p.logger.Debug("published outbox events", zap.Int("count", published))
	}
	return nil
}
