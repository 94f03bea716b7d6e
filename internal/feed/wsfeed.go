package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Tick is one inbound quote from the feed
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"ts_unix_millis"`
}

// TickHandler receives each decoded tick
type TickHandler func(Tick)

// WSFeed streams price ticks from a websocket endpoint into a handler.
// When the connection breaks it redials with exponential backoff until the
// context is cancelled, and a watchdog forces the redial when the remote
// goes quiet without closing.
type WSFeed struct {
	url     string
	symbols []string
	handler TickHandler
	logger  *zap.Logger

	readTimeout  time.Duration
	pingInterval time.Duration
	redialDelay  time.Duration
	maxRedial    time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSFeed creates a feed client for the given endpoint and symbols
func NewWSFeed(url string, symbols []string, handler TickHandler, logger *zap.Logger) *WSFeed {
	return &WSFeed{
		url:          url,
		symbols:      symbols,
		handler:      handler,
		logger:       logger,
		readTimeout:  60 * time.Second,
		pingInterval: 20 * time.Second,
		redialDelay:  time.Second,
		maxRedial:    30 * time.Second,
	}
}

// Run dials and reads until the context is cancelled. Each broken session
// is redialed with exponential backoff capped at maxRedial; backoff resets
// after a session that actually delivered data.
func (f *WSFeed) Run(ctx context.Context) error {
	delay := f.redialDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delivered, err := f.session(ctx)
		if err != nil && ctx.Err() == nil {
			f.logger.Warn("feed session ended", zap.Error(err), zap.Duration("redial_in", delay))
		}
		if delivered {
			delay = f.redialDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.maxRedial {
			delay = f.maxRedial
		}
	}
}

// session runs one dial-subscribe-read cycle and reports whether any tick
// was delivered
func (f *WSFeed) session(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", f.url, err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer conn.Close()

	f.logger.Info("feed connected", zap.String("url", f.url), zap.Strings("symbols", f.symbols))

	if err := f.subscribe(conn); err != nil {
		return false, err
	}

	conn.SetReadLimit(1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		return nil
	})

	// Ping loop and watchdog; closing the conn forces the read loop out
	stop := make(chan struct{})
	defer close(stop)
	go f.keepalive(ctx, conn, stop)

	delivered := false
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return delivered, fmt.Errorf("read: %w", err)
		}

		var tick Tick
		if err := json.Unmarshal(message, &tick); err != nil {
			f.logger.Debug("unparseable feed message", zap.Error(err))
			continue
		}
		if tick.Symbol == "" || tick.Price <= 0 {
			continue
		}
		delivered = true
		f.handler(tick)
	}
}

func (f *WSFeed) subscribe(conn *websocket.Conn) error {
	sub := struct {
		Op      string   `json:"op"`
		Symbols []string `json:"symbols"`
	}{Op: "subscribe", Symbols: f.symbols}

	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (f *WSFeed) keepalive(ctx context.Context, conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// Close tears down the current session; Run will exit once its context is
// cancelled
func (f *WSFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}
