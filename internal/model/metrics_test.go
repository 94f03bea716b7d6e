package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerMetrics_Counters(t *testing.T) {
	m := NewBrokerMetrics()
	m.RecordOrder(true)
	m.RecordOrder(true)
	m.RecordOrder(false)
	m.RecordTrade()
	m.RecordReconnect()
	m.RecordTickDrop()

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalOrders)
	assert.Equal(t, int64(2), snap.SuccessfulOrders)
	assert.Equal(t, int64(1), snap.FailedOrders)
	assert.Equal(t, int64(1), snap.TotalTrades)
	assert.Equal(t, int64(1), snap.ReconnectCount)
	assert.Equal(t, int64(1), snap.DroppedTicks)
}

func TestBrokerMetrics_LatencyWindow(t *testing.T) {
	m := NewBrokerMetrics()
	m.RecordLatency(10)
	m.RecordLatency(20)
	m.RecordLatency(60)

	snap := m.Snapshot()
	assert.InDelta(t, 30.0, snap.AverageLatencyMs, 1e-9)
	assert.Equal(t, 60.0, snap.MaxLatencyMs)
}

func TestBrokerMetrics_LatencyWindowBounded(t *testing.T) {
	m := NewBrokerMetrics()
	// Fill past the window cap; the early large sample must age out
	m.RecordLatency(9999)
	for i := 0; i < latencyWindow; i++ {
		m.RecordLatency(5)
	}

	snap := m.Snapshot()
	assert.Equal(t, 5.0, snap.MaxLatencyMs)
	assert.InDelta(t, 5.0, snap.AverageLatencyMs, 1e-9)
}
