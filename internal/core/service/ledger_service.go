package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
	"github.com/OYH0/ChurrasControl/internal/metrics"
	"github.com/OYH0/ChurrasControl/internal/port"
)

// Config carries the ledger's tunable policies.
type Config struct {
	// RetainZeroItems keeps an item visible after a remove drains it to
	// zero. When false (the default), remove-to-zero ends the item's
	// identity and a later mutation requires CreateItem again.
	RetainZeroItems bool

	// MaxMutation bounds the per-command quantity. Zero means the
	// default of 1000.
	MaxMutation int
}

const defaultMaxMutation = 1000

// LedgerService is the single command processor for the inventory
// ledger. Every successful command appends exactly one event and
// mutates the projection in the same atomic unit, then emits one
// change notification. Commands are serialized per item name, so two
// racing removes can never both validate against a stale quantity.
type LedgerService struct {
	store    port.LedgerStore
	notifier port.ChangeNotifier
	cfg      Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedgerService(store port.LedgerStore, notifier port.ChangeNotifier, cfg Config) *LedgerService {
	if cfg.MaxMutation <= 0 {
		cfg.MaxMutation = defaultMaxMutation
	}
	return &LedgerService{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockItem serializes commands on one item name. Commands on different
// items run concurrently. The lock table grows with distinct names,
// which is bounded by the size of the catalog.
func (s *LedgerService) lockItem(name string) func() {
	s.mu.Lock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CreateItem registers a new cut with its opening stock.
func (s *LedgerService) CreateItem(ctx context.Context, p domain.Principal, name string, quantity int) (domain.Event, error) {
	ev, err := s.createItem(ctx, p, name, quantity)
	s.finish(domain.ActionCreate, err)
	return ev, err
}

func (s *LedgerService) createItem(ctx context.Context, p domain.Principal, name string, quantity int) (domain.Event, error) {
	if !p.CanMutate {
		return domain.Event{}, domain.ErrUnauthorized
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Event{}, fmt.Errorf("%w: name must not be empty", domain.ErrValidation)
	}
	if err := s.checkAmount(quantity); err != nil {
		return domain.Event{}, err
	}

	unlock := s.lockItem(name)
	defer unlock()

	item, err := s.store.GetItem(ctx, name)
	if err != nil {
		return domain.Event{}, fmt.Errorf("read item %q: %w", name, err)
	}
	if item != nil {
		return domain.Event{}, fmt.Errorf("%w: item %q already exists", domain.ErrValidation, name)
	}

	return s.apply(ctx, domain.StockChange{
		Event: domain.Event{
			ID:             uuid.NewString(),
			ItemName:       name,
			Action:         domain.ActionCreate,
			Delta:          quantity,
			QuantityBefore: 0,
		},
	})
}

// AddStock increases an existing item's quantity.
func (s *LedgerService) AddStock(ctx context.Context, p domain.Principal, name string, amount int) (domain.Event, error) {
	ev, err := s.addStock(ctx, p, name, amount)
	s.finish(domain.ActionAdd, err)
	return ev, err
}

func (s *LedgerService) addStock(ctx context.Context, p domain.Principal, name string, amount int) (domain.Event, error) {
	if !p.CanMutate {
		return domain.Event{}, domain.ErrUnauthorized
	}
	if err := s.checkAmount(amount); err != nil {
		return domain.Event{}, err
	}

	unlock := s.lockItem(name)
	defer unlock()

	item, err := s.store.GetItem(ctx, name)
	if err != nil {
		return domain.Event{}, fmt.Errorf("read item %q: %w", name, err)
	}
	if item == nil {
		return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}

	return s.apply(ctx, domain.StockChange{
		Event: domain.Event{
			ID:             uuid.NewString(),
			ItemName:       name,
			Action:         domain.ActionAdd,
			Delta:          amount,
			QuantityBefore: item.Quantity,
		},
	})
}

// RemoveStock decreases an existing item's quantity. The quantity can
// never go negative; that is enforced here and again by the store's
// conditional update.
func (s *LedgerService) RemoveStock(ctx context.Context, p domain.Principal, name string, amount int) (domain.Event, error) {
	ev, err := s.removeStock(ctx, p, name, amount)
	s.finish(domain.ActionRemove, err)
	return ev, err
}

func (s *LedgerService) removeStock(ctx context.Context, p domain.Principal, name string, amount int) (domain.Event, error) {
	if !p.CanMutate {
		return domain.Event{}, domain.ErrUnauthorized
	}
	if err := s.checkAmount(amount); err != nil {
		return domain.Event{}, err
	}

	unlock := s.lockItem(name)
	defer unlock()

	item, err := s.store.GetItem(ctx, name)
	if err != nil {
		return domain.Event{}, fmt.Errorf("read item %q: %w", name, err)
	}
	if item == nil {
		return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}
	if amount > item.Quantity {
		return domain.Event{}, fmt.Errorf("%w: %q has %d, requested %d",
			domain.ErrInsufficientStock, name, item.Quantity, amount)
	}

	remaining := item.Quantity - amount
	return s.apply(ctx, domain.StockChange{
		Event: domain.Event{
			ID:             uuid.NewString(),
			ItemName:       name,
			Action:         domain.ActionRemove,
			Delta:          amount,
			QuantityBefore: item.Quantity,
		},
		RemoveItem: remaining == 0 && !s.cfg.RetainZeroItems,
	})
}

// DeleteItem removes an item regardless of remaining quantity. The
// delete event carries that quantity for the audit trail.
func (s *LedgerService) DeleteItem(ctx context.Context, p domain.Principal, name string) (domain.Event, error) {
	ev, err := s.deleteItem(ctx, p, name)
	s.finish(domain.ActionDelete, err)
	return ev, err
}

func (s *LedgerService) deleteItem(ctx context.Context, p domain.Principal, name string) (domain.Event, error) {
	if !p.CanMutate {
		return domain.Event{}, domain.ErrUnauthorized
	}

	unlock := s.lockItem(name)
	defer unlock()

	item, err := s.store.GetItem(ctx, name)
	if err != nil {
		return domain.Event{}, fmt.Errorf("read item %q: %w", name, err)
	}
	if item == nil {
		return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrNotFound, name)
	}

	return s.apply(ctx, domain.StockChange{
		Event: domain.Event{
			ID:             uuid.NewString(),
			ItemName:       name,
			Action:         domain.ActionDelete,
			Delta:          item.Quantity,
			QuantityBefore: item.Quantity,
		},
		RemoveItem: true,
	})
}

func (s *LedgerService) checkAmount(amount int) error {
	if amount < 1 {
		return fmt.Errorf("%w: quantity must be a positive integer, got %d", domain.ErrValidation, amount)
	}
	if amount > s.cfg.MaxMutation {
		return fmt.Errorf("%w: quantity %d exceeds the limit of %d", domain.ErrValidation, amount, s.cfg.MaxMutation)
	}
	return nil
}

func (s *LedgerService) apply(ctx context.Context, change domain.StockChange) (domain.Event, error) {
	ev, err := s.store.Apply(ctx, change)
	if err != nil {
		return domain.Event{}, fmt.Errorf("apply %s %q: %w", change.Event.Action, change.Event.ItemName, err)
	}
	if s.notifier != nil {
		s.notifier.Changed()
	}
	return ev, nil
}

func (s *LedgerService) finish(action domain.Action, err error) {
	metrics.CommandsTotal.WithLabelValues(string(action), metrics.Result(err)).Inc()
}
