package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/events"
	"github.com/ismaiel54/paper-trading-engine/internal/model"
	_ "modernc.org/sqlite"
)

// Journal persists trades and guard violations to SQLite, writing a matching
// outbox row in the same transaction so a crash between "record locally" and
// "publish downstream" cannot lose or double-publish an event.
type Journal struct {
	db *sql.DB
}

// OutboxEvent is an event waiting to be published downstream
type OutboxEvent struct {
	ID                  int64
	EventID             string
	Topic               string
	Key                 string
	PayloadJSON         string
	CreatedUnixMillis   int64
	PublishedUnixMillis sql.NullInt64
}

// TradeRecord is a persisted trade row
type TradeRecord struct {
	TradeID     string
	OrderID     string
	Symbol      string
	Side        string
	Quantity    float64
	Price       float64
	Commission  float64
	RealizedPnL sql.NullFloat64
	TsMillis    int64
}

// Open creates or opens the journal database at path
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return j, nil
}

// migrate creates the necessary tables
func (j *Journal) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			commission REAL NOT NULL,
			realized_pnl REAL NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS violations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			message TEXT NOT NULL,
			value REAL NOT NULL,
			threshold REAL NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			key TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
			ON outbox_events(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	}

	for _, query := range queries {
		if _, err := j.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// RecordTrade inserts the trade and its outbox event in one transaction.
// Re-recording the same trade ID is a silent no-op, so crash-replay of the
// last tick cannot duplicate rows.
func (j *Journal) RecordTrade(ctx context.Context, trade *model.Trade) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()

	var realized sql.NullFloat64
	if trade.RealizedPnL != nil {
		realized = sql.NullFloat64{Float64: *trade.RealizedPnL, Valid: true}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO trades (trade_id, order_id, symbol, side, quantity, price, commission, realized_pnl, ts_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.TradeID, trade.OrderID, trade.Symbol, string(trade.Side),
		trade.Quantity, trade.Price, trade.Commission, realized, trade.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	event := events.New(events.EventTradeCompleted, trade.Symbol, trade)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trade event: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (event_id, topic, key, payload_json, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		event.EventID, events.TopicTrades, trade.Symbol, string(payload), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return tx.Commit()
}

// RecordViolation inserts the violation and its outbox event atomically
func (j *Journal) RecordViolation(ctx context.Context, v *model.GuardViolation) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO violations (type, severity, action, symbol, message, value, threshold, ts_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(v.Type), string(v.Severity), string(v.Action), v.Symbol,
		v.Message, v.Value, v.Threshold, v.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}

	event := events.New(events.EventViolation, v.Symbol, v)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal violation event: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (event_id, topic, key, payload_json, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		event.EventID, events.TopicViolations, v.Symbol, string(payload), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return tx.Commit()
}

// ListUnpublished returns outbox events awaiting publication, oldest first
func (j *Journal) ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis
		 FROM outbox_events
		 WHERE published_unix_millis IS NULL
		 ORDER BY created_unix_millis ASC, id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.Topic, &e.Key, &e.PayloadJSON,
			&e.CreatedUnixMillis, &e.PublishedUnixMillis); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// MarkPublished stamps the event with its publish time
func (j *Journal) MarkPublished(ctx context.Context, eventID string, nowMillis int64) error {
	_, err := j.db.ExecContext(ctx,
		"UPDATE outbox_events SET published_unix_millis = ? WHERE event_id = ?",
		nowMillis, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

// ListTrades returns persisted trades, newest last
func (j *Journal) ListTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT trade_id, order_id, symbol, side, quantity, price, commission, realized_pnl, ts_unix_millis
		 FROM trades ORDER BY ts_unix_millis ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var r TradeRecord
		if err := rows.Scan(&r.TradeID, &r.OrderID, &r.Symbol, &r.Side,
			&r.Quantity, &r.Price, &r.Commission, &r.RealizedPnL, &r.TsMillis); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
