package port

import (
	"context"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
)

// LedgerStore owns the two ledger collections: the append-only event log
// and the item projection. One interface covers both because Apply must
// mutate them as a single atomic unit.
type LedgerStore interface {
	// GetItem returns the current projection row, or nil when absent.
	GetItem(ctx context.Context, name string) (*domain.Item, error)

	// ListItems returns the full projection in insertion order.
	ListItems(ctx context.Context) ([]domain.Item, error)

	// Apply appends the change's event and mutates the projection
	// atomically, assigning Seq and Timestamp. A remove whose guard
	// fails against the stored quantity returns ErrInsufficientStock;
	// a mutation against an absent item returns ErrNotFound.
	Apply(ctx context.Context, change domain.StockChange) (domain.Event, error)

	// Events queries the log read-only. Events are never mutated or
	// removed through this interface.
	Events(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)

	Close() error
}
