package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	name     TEXT PRIMARY KEY,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL,
	item_name       TEXT NOT NULL,
	action          TEXT NOT NULL,
	delta           INTEGER NOT NULL,
	quantity_before INTEGER NOT NULL,
	ts_millis       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_action ON events(action);
`

// SQLiteAdapter persists the ledger in an embedded SQLite database.
// The event append and the projection mutation run in one transaction.
type SQLiteAdapter struct {
	db *sql.DB

	// Guards timestamp assignment so concurrent appends on different
	// items still produce a non-decreasing clock.
	tsMu     sync.Mutex
	lastUnix int64
}

// NewSQLiteAdapter opens (or creates) the database at path and ensures
// the schema. ":memory:" is accepted for throwaway instances.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer at a time. A single pooled connection
	// queues concurrent commands instead of failing them with
	// SQLITE_BUSY; the busy timeout still covers external writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	a := &SQLiteAdapter{db: db}
	if err := db.QueryRow(`SELECT COALESCE(MAX(ts_millis), 0) FROM events`).Scan(&a.lastUnix); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load last event timestamp: %w", err)
	}
	return a, nil
}

func (a *SQLiteAdapter) GetItem(ctx context.Context, name string) (*domain.Item, error) {
	var item domain.Item
	err := a.db.QueryRowContext(ctx,
		`SELECT name, quantity FROM items WHERE name = ?`, name,
	).Scan(&item.Name, &item.Quantity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &item, nil
}

func (a *SQLiteAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT name, quantity FROM items ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.Name, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (a *SQLiteAdapter) Apply(ctx context.Context, change domain.StockChange) (domain.Event, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ev := change.Event
	name := ev.ItemName

	switch ev.Action {
	case domain.ActionCreate:
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO items (name, quantity, position)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM items))`,
			name, ev.Delta,
		)
		if err != nil {
			return domain.Event{}, fmt.Errorf("insert item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Event{}, fmt.Errorf("%w: item %q already exists", domain.ErrValidation, name)
		}

	case domain.ActionAdd:
		res, err := tx.ExecContext(ctx,
			`UPDATE items SET quantity = quantity + ? WHERE name = ?`,
			ev.Delta, name,
		)
		if err != nil {
			return domain.Event{}, fmt.Errorf("update item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
		}

	case domain.ActionRemove:
		res, err := tx.ExecContext(ctx,
			`UPDATE items SET quantity = quantity - ? WHERE name = ? AND quantity >= ?`,
			ev.Delta, name, ev.Delta,
		)
		if err != nil {
			return domain.Event{}, fmt.Errorf("update item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM items WHERE name = ?`, name,
			).Scan(&exists); err != nil {
				return domain.Event{}, fmt.Errorf("check item: %w", err)
			}
			if exists == 0 {
				return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
			}
			return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrInsufficientStock, name)
		}
		if change.RemoveItem {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM items WHERE name = ? AND quantity = 0`, name,
			); err != nil {
				return domain.Event{}, fmt.Errorf("drop drained item: %w", err)
			}
		}

	case domain.ActionDelete:
		res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE name = ?`, name)
		if err != nil {
			return domain.Event{}, fmt.Errorf("delete item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
		}

	default:
		return domain.Event{}, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, ev.Action)
	}

	ev.Timestamp = a.nextTimestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, item_name, action, delta, quantity_before, ts_millis)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ItemName, string(ev.Action), ev.Delta, ev.QuantityBefore, ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return domain.Event{}, fmt.Errorf("append event: %w", err)
	}
	ev.Seq, err = res.LastInsertId()
	if err != nil {
		return domain.Event{}, fmt.Errorf("event seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Event{}, fmt.Errorf("commit: %w", err)
	}
	return ev, nil
}

// nextTimestamp assigns a log timestamp that never runs backwards, even
// when the wall clock does.
func (a *SQLiteAdapter) nextTimestamp() time.Time {
	a.tsMu.Lock()
	defer a.tsMu.Unlock()

	now := time.Now().UTC().UnixMilli()
	if now < a.lastUnix {
		now = a.lastUnix
	}
	a.lastUnix = now
	return time.UnixMilli(now).UTC()
}

func (a *SQLiteAdapter) Events(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	query := `SELECT seq, id, item_name, action, delta, quantity_before, ts_millis FROM events`
	var args []any
	if filter.Action != "" {
		query += ` WHERE action = ?`
		args = append(args, string(filter.Action))
	}
	if filter.Ascending {
		query += ` ORDER BY ts_millis ASC, seq ASC`
	} else {
		query += ` ORDER BY ts_millis DESC, seq DESC`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var action string
		var millis int64
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.ItemName, &action, &ev.Delta, &ev.QuantityBefore, &millis); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Action = domain.Action(action)
		ev.Timestamp = time.UnixMilli(millis).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
