package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// tickServer upgrades each connection, checks the subscribe message, then
// streams the given payloads and closes
func tickServer(t *testing.T, payloads []any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		require.NoError(t, err)
		var subMsg struct {
			Op      string   `json:"op"`
			Symbols []string `json:"symbols"`
		}
		require.NoError(t, json.Unmarshal(sub, &subMsg))
		require.Equal(t, "subscribe", subMsg.Op)

		for _, p := range payloads {
			data, err := json.Marshal(p)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
		}
		// Give the client time to drain before the close
		time.Sleep(50 * time.Millisecond)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWSFeed_DeliversTicks(t *testing.T) {
	srv := tickServer(t, []any{
		Tick{Symbol: "AAPL", Price: 150.25, Timestamp: 1},
		Tick{Symbol: "AAPL", Price: 150.50, Timestamp: 2},
	})
	defer srv.Close()

	var mu sync.Mutex
	var got []Tick
	f := NewWSFeed(wsURL(srv), []string{"AAPL"}, func(tick Tick) {
		mu.Lock()
		got = append(got, tick)
		mu.Unlock()
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, 150.25, got[0].Price)
	assert.Equal(t, 150.50, got[1].Price)
}

func TestWSFeed_SkipsMalformedAndEmptyTicks(t *testing.T) {
	srv := tickServer(t, []any{
		map[string]any{"garbage": true},
		Tick{Symbol: "", Price: 100},
		Tick{Symbol: "AAPL", Price: -5},
		Tick{Symbol: "AAPL", Price: 99.5},
	})
	defer srv.Close()

	var mu sync.Mutex
	var got []Tick
	f := NewWSFeed(wsURL(srv), []string{"AAPL"}, func(tick Tick) {
		mu.Lock()
		got = append(got, tick)
		mu.Unlock()
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 99.5, got[0].Price, "only the one valid tick survives filtering")
}

func TestWSFeed_RedialsAfterDisconnect(t *testing.T) {
	var connects int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connects++
		mu.Unlock()
		conn.ReadMessage() // consume subscribe
		data, _ := json.Marshal(Tick{Symbol: "AAPL", Price: 100})
		conn.WriteMessage(websocket.TextMessage, data)
		time.Sleep(20 * time.Millisecond)
		conn.Close()
	}))
	defer srv.Close()

	f := NewWSFeed(wsURL(srv), []string{"AAPL"}, func(Tick) {}, zap.NewNop())
	f.redialDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects >= 2
	}, 3*time.Second, 10*time.Millisecond, "the feed redials after the server drops it")
}

func TestWSFeed_RunStopsWhenEndpointUnreachable(t *testing.T) {
	f := NewWSFeed("ws://127.0.0.1:1/feed", []string{"AAPL"}, func(Tick) {}, zap.NewNop())
	f.redialDelay = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := f.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "cancellation wins over the redial loop")
}
