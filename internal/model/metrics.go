package model

import (
	"sync"
	"sync/atomic"
	"time"
)

// latencyWindow bounds the rolling latency sample buffer
const latencyWindow = 1000

// BrokerMetrics holds counters and gauges owned by one broker connection.
// Counters reset only on process restart.
type BrokerMetrics struct {
	totalOrders      int64
	successfulOrders int64
	failedOrders     int64
	totalTrades      int64
	reconnectCount   int64
	droppedTicks     int64

	mu          sync.Mutex
	latencies   [latencyWindow]float64
	latencyHead int
	latencyLen  int
	heartbeat   atomic.Int64 // unix millis
}

// MetricsSnapshot is a point-in-time copy of the metrics
type MetricsSnapshot struct {
	TotalOrders      int64     `json:"total_orders"`
	SuccessfulOrders int64     `json:"successful_orders"`
	FailedOrders     int64     `json:"failed_orders"`
	TotalTrades      int64     `json:"total_trades"`
	ReconnectCount   int64     `json:"reconnect_count"`
	DroppedTicks     int64     `json:"dropped_ticks"`
	AverageLatencyMs float64   `json:"average_latency_ms"`
	MaxLatencyMs     float64   `json:"max_latency_ms"`
	LastHeartbeat    time.Time `json:"last_heartbeat"`
}

// NewBrokerMetrics creates an empty metrics set
func NewBrokerMetrics() *BrokerMetrics {
	return &BrokerMetrics{}
}

// RecordOrder counts one order attempt and its outcome
func (m *BrokerMetrics) RecordOrder(success bool) {
	atomic.AddInt64(&m.totalOrders, 1)
	if success {
		atomic.AddInt64(&m.successfulOrders, 1)
	} else {
		atomic.AddInt64(&m.failedOrders, 1)
	}
}

// RecordTrade counts one completed trade
func (m *BrokerMetrics) RecordTrade() {
	atomic.AddInt64(&m.totalTrades, 1)
}

// RecordReconnect counts one reconnect cycle
func (m *BrokerMetrics) RecordReconnect() {
	atomic.AddInt64(&m.reconnectCount, 1)
}

// RecordTickDrop counts one dropped market data tick
func (m *BrokerMetrics) RecordTickDrop() {
	atomic.AddInt64(&m.droppedTicks, 1)
}

// RecordLatency appends a latency observation to the rolling window
func (m *BrokerMetrics) RecordLatency(ms float64) {
	m.mu.Lock()
	m.latencies[m.latencyHead] = ms
	m.latencyHead = (m.latencyHead + 1) % latencyWindow
	if m.latencyLen < latencyWindow {
		m.latencyLen++
	}
	m.mu.Unlock()
}

// UpdateHeartbeat records that the connection was alive now
func (m *BrokerMetrics) UpdateHeartbeat() {
	m.heartbeat.Store(time.Now().UnixMilli())
}

// Snapshot derives average/max latency from the window and copies counters
func (m *BrokerMetrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TotalOrders:      atomic.LoadInt64(&m.totalOrders),
		SuccessfulOrders: atomic.LoadInt64(&m.successfulOrders),
		FailedOrders:     atomic.LoadInt64(&m.failedOrders),
		TotalTrades:      atomic.LoadInt64(&m.totalTrades),
		ReconnectCount:   atomic.LoadInt64(&m.reconnectCount),
		DroppedTicks:     atomic.LoadInt64(&m.droppedTicks),
	}

	if hb := m.heartbeat.Load(); hb > 0 {
		snap.LastHeartbeat = time.UnixMilli(hb)
	}

	m.mu.Lock()
	var sum, max float64
	for i := 0; i < m.latencyLen; i++ {
		v := m.latencies[i]
		sum += v
		if v > max {
			max = v
		}
	}
	if m.latencyLen > 0 {
		snap.AverageLatencyMs = sum / float64(m.latencyLen)
	}
	snap.MaxLatencyMs = max
	m.mu.Unlock()

	return snap
}
