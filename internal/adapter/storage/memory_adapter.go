package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
)

// MemoryAdapter keeps the ledger in process memory. It backs tests and
// single-process development runs; the contract matches the SQL-backed
// adapters, including the conditional-update guard on removes.
type MemoryAdapter struct {
	mu       sync.RWMutex
	items    map[string]int
	order    []string
	events   []domain.Event
	seq      int64
	lastUnix int64 // millis, keeps assigned timestamps non-decreasing
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{items: make(map[string]int)}
}

func (m *MemoryAdapter) GetItem(ctx context.Context, name string) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	quantity, ok := m.items[name]
	if !ok {
		return nil, nil
	}
	return &domain.Item{Name: name, Quantity: quantity}, nil
}

func (m *MemoryAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.Item, 0, len(m.items))
	for _, name := range m.order {
		if quantity, ok := m.items[name]; ok {
			items = append(items, domain.Item{Name: name, Quantity: quantity})
		}
	}
	return items, nil
}

func (m *MemoryAdapter) Apply(ctx context.Context, change domain.StockChange) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ev := change.Event
	name := ev.ItemName

	switch ev.Action {
	case domain.ActionCreate:
		if _, exists := m.items[name]; exists {
			return domain.Event{}, fmt.Errorf("%w: item %q already exists", domain.ErrValidation, name)
		}
		m.items[name] = ev.Delta
		m.order = append(m.order, name)

	case domain.ActionAdd:
		if _, exists := m.items[name]; !exists {
			return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
		}
		m.items[name] += ev.Delta

	case domain.ActionRemove:
		quantity, exists := m.items[name]
		if !exists {
			return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
		}
		if quantity < ev.Delta {
			return domain.Event{}, fmt.Errorf("%w: %q has %d, requested %d",
				domain.ErrInsufficientStock, name, quantity, ev.Delta)
		}
		m.items[name] = quantity - ev.Delta
		if change.RemoveItem && m.items[name] == 0 {
			m.dropItem(name)
		}

	case domain.ActionDelete:
		if _, exists := m.items[name]; !exists {
			return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
		}
		m.dropItem(name)

	default:
		return domain.Event{}, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, ev.Action)
	}

	m.seq++
	ev.Seq = m.seq

	now := time.Now().UTC().UnixMilli()
	if now < m.lastUnix {
		now = m.lastUnix
	}
	m.lastUnix = now
	ev.Timestamp = time.UnixMilli(now).UTC()

	m.events = append(m.events, ev)
	return ev, nil
}

func (m *MemoryAdapter) dropItem(name string) {
	delete(m.items, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *MemoryAdapter) Events(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]domain.Event, 0, len(m.events))
	for _, ev := range m.events {
		if filter.Action != "" && ev.Action != filter.Action {
			continue
		}
		matched = append(matched, ev)
	}

	if !filter.Ascending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *MemoryAdapter) Close() error {
	return nil
}
