package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
)

// MySQLAdapter persists the ledger in MySQL for deployments that keep
// stock on a shared server instead of an embedded file. The layout and
// the transactional apply match the SQLite adapter.
type MySQLAdapter struct {
	db *sql.DB

	tsMu     sync.Mutex
	lastUnix int64
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the ledger tables when they do not exist and
// primes the monotonic timestamp from the stored log.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			name     VARCHAR(191) PRIMARY KEY,
			quantity INT NOT NULL,
			position INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			seq             BIGINT AUTO_INCREMENT PRIMARY KEY,
			id              VARCHAR(36) NOT NULL,
			item_name       VARCHAR(191) NOT NULL,
			action          VARCHAR(16) NOT NULL,
			delta           INT NOT NULL,
			quantity_before INT NOT NULL,
			ts_millis       BIGINT NOT NULL,
			INDEX idx_events_action (action)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	if err := m.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ts_millis), 0) FROM events`,
	).Scan(&m.lastUnix); err != nil {
		return fmt.Errorf("load last event timestamp: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetItem(ctx context.Context, name string) (*domain.Item, error) {
	var item domain.Item
	err := m.db.QueryRowContext(ctx,
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

func (m *MySQLAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx,
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

func (m *MySQLAdapter) Apply(ctx context.Context, change domain.StockChange) (domain.Event, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ev := change.Event
	name := ev.ItemName

	switch ev.Action {
	case domain.ActionCreate:
		res, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO items (name, quantity, position)
			SELECT ?, ?, COALESCE(MAX(position), 0) + 1 FROM items`,
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

	ev.Timestamp = m.nextTimestamp()
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

func (m *MySQLAdapter) nextTimestamp() time.Time {
	m.tsMu.Lock()
	defer m.tsMu.Unlock()

	now := time.Now().UTC().UnixMilli()
	if now < m.lastUnix {
		now = m.lastUnix
	}
	m.lastUnix = now
	return time.UnixMilli(now).UTC()
}

func (m *MySQLAdapter) Events(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
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

	rows, err := m.db.QueryContext(ctx, query, args...)
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

func (m *MySQLAdapter) Close() error {
	return m.db.Close()
}
