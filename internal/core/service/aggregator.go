package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
	"github.com/OYH0/ChurrasControl/internal/port"
)

const defaultHistoryLimit = 20

// RemovalTotal is the cumulative removed quantity for one item.
type RemovalTotal struct {
	ItemName     string
	TotalRemoved int
}

// Aggregator serves the read models: current stock for the table and
// bar chart, removal totals for the doughnut chart, and the recent
// movement feed. It never mutates state and is safe to call while
// commands run.
type Aggregator struct {
	store      port.LedgerStore
	retainZero bool
}

func NewAggregator(store port.LedgerStore, retainZero bool) *Aggregator {
	return &Aggregator{store: store, retainZero: retainZero}
}

// CurrentStock returns the projection in insertion order. Presentation
// orderings layer on top; see SortByQuantityDesc.
func (a *Aggregator) CurrentStock(ctx context.Context) ([]domain.Item, error) {
	items, err := a.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// SortByQuantityDesc returns a copy sorted for the stock chart:
// descending quantity, ties by name ascending.
func SortByQuantityDesc(items []domain.Item) []domain.Item {
	sorted := make([]domain.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Quantity != sorted[j].Quantity {
			return sorted[i].Quantity > sorted[j].Quantity
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// TopRemoved sums remove deltas per item over the whole log and returns
// the n largest totals, descending, ties by item name ascending.
func (a *Aggregator) TopRemoved(ctx context.Context, n int) ([]RemovalTotal, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", domain.ErrValidation, n)
	}

	events, err := a.store.Events(ctx, domain.EventFilter{
		Action:    domain.ActionRemove,
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query remove events: %w", err)
	}

	totals := make(map[string]int)
	for _, ev := range events {
		totals[ev.ItemName] += ev.Delta
	}

	ranked := make([]RemovalTotal, 0, len(totals))
	for name, total := range totals {
		ranked = append(ranked, RemovalTotal{ItemName: name, TotalRemoved: total})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalRemoved != ranked[j].TotalRemoved {
			return ranked[i].TotalRemoved > ranked[j].TotalRemoved
		}
		return ranked[i].ItemName < ranked[j].ItemName
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// History returns the most recent events, newest first. A non-positive
// limit falls back to the feed's default of 20.
func (a *Aggregator) History(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	events, err := a.store.Events(ctx, domain.EventFilter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return events, nil
}

// ReplayProjection folds the full event log from empty state. In a
// healthy ledger it matches CurrentStock exactly.
func (a *Aggregator) ReplayProjection(ctx context.Context) (map[string]int, error) {
	events, err := a.store.Events(ctx, domain.EventFilter{Ascending: true})
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	return domain.Replay(events, a.retainZero), nil
}
