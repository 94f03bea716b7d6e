package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	got []Event
	err error
}

func (c *captureSink) Publish(ctx context.Context, e Event) error {
	c.got = append(c.got, e)
	return c.err
}

func (c *captureSink) Close() {}

func TestNewEventHasIDAndTimestamp(t *testing.T) {
	e := New(EventOrderPlaced, "AAPL", nil)
	assert.NotEmpty(t, e.EventID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "AAPL", e.Symbol)
}

func TestMultiSink_FansOutToAll(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{err: fmt.Errorf("sink b down")}
	c := &captureSink{}
	m := NewMultiSink(a, b, nil, c)

	err := m.Publish(context.Background(), New(EventTradeCompleted, "AAPL", nil))
	require.Error(t, err, "the first sink error surfaces")
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Len(t, c.got, 1, "a failing sink must not starve later sinks")
}

func TestTopicRouting(t *testing.T) {
	assert.Equal(t, TopicTrades, topicFor(EventTradeCompleted))
	assert.Equal(t, TopicViolations, topicFor(EventViolation))
	assert.Equal(t, TopicViolations, topicFor(EventHaltTriggered))
	assert.Equal(t, TopicEngineEvents, topicFor(EventOrderPlaced))
	assert.Equal(t, TopicEngineEvents, topicFor(EventLatencySample))
}

func TestNopSink(t *testing.T) {
	assert.NoError(t, NopSink{}.Publish(context.Background(), New(EventViolation, "", nil)))
}
