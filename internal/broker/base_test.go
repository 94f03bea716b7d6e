package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConnBase(t *testing.T, maxRetries int) *ConnBase {
	t.Helper()
	return NewConnBase(ConnConfig{
		Name:       "test",
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())
}

func TestReconnect_BoundedAttempts(t *testing.T) {
	b := testConnBase(t, 3)

	attempts := 0
	err := b.ReconnectWithBackoff(context.Background(), func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "reconnect with max_retries=k makes at most k connect attempts")
	assert.Equal(t, StateError, b.State(), "exhausted reconnect leaves the connection in ERROR")
	assert.Equal(t, int64(1), b.Metrics().Snapshot().ReconnectCount,
		"reconnect counter increments once per call, not per attempt")
}

func TestReconnect_SucceedsMidway(t *testing.T) {
	b := testConnBase(t, 5)

	attempts := 0
	err := b.ReconnectWithBackoff(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("refused")
		}
		b.SetState(StateConnected)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateConnected, b.State())
}

func TestReconnect_NotReentrant(t *testing.T) {
	b := testConnBase(t, 3)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.ReconnectWithBackoff(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			b.SetState(StateConnected)
			return nil
		})
	}()

	<-started
	err := b.ReconnectWithBackoff(context.Background(), func(ctx context.Context) error { return nil })
	assert.Error(t, err, "a second concurrent reconnect on the same connection must be refused")

	close(release)
	require.NoError(t, <-done)
}

func TestReconnect_BackoffStartsAtBaseDelay(t *testing.T) {
	// Three failing attempts with delay d sleep d then 2d between them:
	// 150ms total here, where a first gap of 2d would already spend 300ms.
	b := NewConnBase(ConnConfig{Name: "test", MaxRetries: 3, RetryDelay: 50 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	err := b.ReconnectWithBackoff(context.Background(), func(ctx context.Context) error {
		return fmt.Errorf("refused")
	})
	require.Error(t, err)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 290*time.Millisecond)
}

func TestReconnect_BackoffCancellable(t *testing.T) {
	b := NewConnBase(ConnConfig{Name: "test", MaxRetries: 5, RetryDelay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := b.ReconnectWithBackoff(ctx, func(ctx context.Context) error {
		return fmt.Errorf("refused")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second,
		"shutdown must not be blocked behind a backoff sleep")
}

func TestRateLimiter_SpacesCalls(t *testing.T) {
	// 1200 req/min => 50ms between calls
	r := newRateLimiter(1200)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	require.NoError(t, r.Wait(context.Background()))
	require.NoError(t, r.Wait(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond,
		"three calls at 50ms spacing must take at least 100ms")
}

func TestRateLimiter_NilNeverBlocks(t *testing.T) {
	var r *rateLimiter
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimiter_WaitCancellable(t *testing.T) {
	r := newRateLimiter(1) // one call per minute
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSuspendResume(t *testing.T) {
	b := testConnBase(t, 3)
	b.SetState(StateConnected)

	b.Suspend()
	assert.Equal(t, StateSuspended, b.State())
	assert.True(t, b.HealthCheck().Connected, "suspension is advisory, the session stays open")

	b.ResumeFromSuspend()
	assert.Equal(t, StateConnected, b.State())

	// Suspend from a non-connected state is a no-op
	b.SetState(StateError)
	b.Suspend()
	assert.Equal(t, StateError, b.State())
}

func TestDispatch_FanOut(t *testing.T) {
	b := testConnBase(t, 3)

	var got1, got2 []float64
	b.SubscribeMarketData([]string{"AAPL"}, func(md MarketData) { got1 = append(got1, md.Price) })
	b.SubscribeMarketData([]string{"AAPL"}, func(md MarketData) { got2 = append(got2, md.Price) })

	b.Dispatch(MarketData{Symbol: "AAPL", Price: 101})
	b.Dispatch(MarketData{Symbol: "MSFT", Price: 55})

	assert.Equal(t, []float64{101}, got1, "multiple callbacks per symbol all fire")
	assert.Equal(t, []float64{101}, got2)

	b.UnsubscribeMarketData([]string{"AAPL"})
	b.Dispatch(MarketData{Symbol: "AAPL", Price: 102})
	assert.Len(t, got1, 1, "unsubscribed symbols stop receiving ticks")
}
