package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/OYH0/ChurrasControl/internal/adapter/storage"
	"github.com/OYH0/ChurrasControl/internal/core/domain"
	"github.com/OYH0/ChurrasControl/internal/port"
)

var admin = domain.Principal{Email: "admin@test", CanMutate: true}

// countingNotifier records how many change signals the engine emits.
type countingNotifier struct {
	count atomic.Int32
}

func (n *countingNotifier) Changed() {
	n.count.Add(1)
}

func newTestLedger(cfg Config) (*LedgerService, *storage.MemoryAdapter, *countingNotifier) {
	store := storage.NewMemoryAdapter()
	notifier := &countingNotifier{}
	return NewLedgerService(store, notifier, cfg), store, notifier
}

func TestCreateItem_Success(t *testing.T) {
	svc, store, notifier := newTestLedger(Config{})

	ev, err := svc.CreateItem(context.Background(), admin, "Picanha", 20)
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if ev.Action != domain.ActionCreate || ev.Delta != 20 || ev.QuantityBefore != 0 {
		t.Errorf("unexpected event: %+v", ev)
	}

	item, err := store.GetItem(context.Background(), "Picanha")
	if err != nil || item == nil {
		t.Fatalf("expected item, got %v, %v", item, err)
	}
	if item.Quantity != 20 {
		t.Errorf("expected quantity 20, got %d", item.Quantity)
	}
	if notifier.count.Load() != 1 {
		t.Errorf("expected 1 notification, got %d", notifier.count.Load())
	}
}

func TestCreateItem_Validation(t *testing.T) {
	svc, _, notifier := newTestLedger(Config{})
	ctx := context.Background()

	cases := []struct {
		name     string
		item     string
		quantity int
	}{
		{"empty name", "", 10},
		{"blank name", "   ", 10},
		{"zero quantity", "Costela", 0},
		{"negative quantity", "Costela", -5},
		{"over limit", "Costela", 1001},
	}
	for _, tc := range cases {
		if _, err := svc.CreateItem(ctx, admin, tc.item, tc.quantity); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}

	if _, err := svc.CreateItem(ctx, admin, "Picanha", 20); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := svc.CreateItem(ctx, admin, "Picanha", 5); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("duplicate: expected ErrValidation, got %v", err)
	}

	if notifier.count.Load() != 1 {
		t.Errorf("failed commands must not notify, got %d signals", notifier.count.Load())
	}
}

func TestCommands_RequireMutateCapability(t *testing.T) {
	svc, store, notifier := newTestLedger(Config{})
	ctx := context.Background()
	viewer := domain.Principal{Email: "viewer@test"}

	if _, err := svc.CreateItem(ctx, viewer, "Picanha", 20); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("CreateItem: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.AddStock(ctx, viewer, "Picanha", 5); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("AddStock: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.RemoveStock(ctx, viewer, "Picanha", 5); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("RemoveStock: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.DeleteItem(ctx, viewer, "Picanha"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("DeleteItem: expected ErrUnauthorized, got %v", err)
	}

	events, _ := store.Events(ctx, domain.EventFilter{})
	if len(events) != 0 {
		t.Errorf("unauthorized commands must not append events, got %d", len(events))
	}
	if notifier.count.Load() != 0 {
		t.Errorf("unauthorized commands must not notify, got %d", notifier.count.Load())
	}
}

// Scenario: create 20, add 10, expect a single item at 30 and two events.
func TestCreateThenAdd(t *testing.T) {
	svc, store, _ := newTestLedger(Config{})
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, admin, "Picanha", 20); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := svc.AddStock(ctx, admin, "Picanha", 10); err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}

	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Picanha" || items[0].Quantity != 30 {
		t.Errorf("expected [Picanha 30], got %v", items)
	}

	events, err := store.Events(ctx, domain.EventFilter{Ascending: true})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Action != domain.ActionCreate || events[0].Delta != 20 {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Action != domain.ActionAdd || events[1].Delta != 10 {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

// Scenario: removing the full quantity ends the item's identity.
func TestRemoveStock_ToZeroRemovesItem(t *testing.T) {
	svc, store, _ := newTestLedger(Config{})
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, admin, "Costela", 5); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	ev, err := svc.RemoveStock(ctx, admin, "Costela", 5)
	if err != nil {
		t.Fatalf("RemoveStock failed: %v", err)
	}
	if ev.QuantityBefore != 5 || ev.Delta != 5 {
		t.Errorf("unexpected remove event: %+v", ev)
	}

	item, err := store.GetItem(ctx, "Costela")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item != nil {
		t.Errorf("expected item gone, got %+v", item)
	}

	// A fresh create under the same name starts a new identity.
	if _, err := svc.CreateItem(ctx, admin, "Costela", 3); err != nil {
		t.Errorf("recreate after drain failed: %v", err)
	}
}

func TestRemoveStock_RetainZeroPolicy(t *testing.T) {
	svc, store, _ := newTestLedger(Config{RetainZeroItems: true})
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, admin, "Costela", 5); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := svc.RemoveStock(ctx, admin, "Costela", 5); err != nil {
		t.Fatalf("RemoveStock failed: %v", err)
	}

	item, err := store.GetItem(ctx, "Costela")
	if err != nil || item == nil {
		t.Fatalf("expected retained item, got %v, %v", item, err)
	}
	if item.Quantity != 0 {
		t.Errorf("expected quantity 0, got %d", item.Quantity)
	}
}

// Scenario: an oversized remove fails and leaves ledger state untouched.
func TestRemoveStock_Insufficient(t *testing.T) {
	svc, store, _ := newTestLedger(Config{})
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, admin, "Fraldinha", 15); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := svc.RemoveStock(ctx, admin, "Fraldinha", 100); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	item, _ := store.GetItem(ctx, "Fraldinha")
	if item == nil || item.Quantity != 15 {
		t.Errorf("expected quantity 15 unchanged, got %+v", item)
	}
	events, _ := store.Events(ctx, domain.EventFilter{})
	if len(events) != 1 {
		t.Errorf("expected only the create event, got %d", len(events))
	}
}

func TestMutations_OnAbsentItem(t *testing.T) {
	svc, _, _ := newTestLedger(Config{})
	ctx := context.Background()

	if _, err := svc.AddStock(ctx, admin, "Maminha", 5); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("AddStock: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.RemoveStock(ctx, admin, "Maminha", 5); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RemoveStock: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.DeleteItem(ctx, admin, "Maminha"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("DeleteItem: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteItem_RecordsQuantityAtDeletion(t *testing.T) {
	svc, store, _ := newTestLedger(Config{})
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, admin, "Linguiça", 25); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	ev, err := svc.DeleteItem(ctx, admin, "Linguiça")
	if err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if ev.Delta != 25 || ev.QuantityBefore != 25 {
		t.Errorf("expected delete event to carry quantity 25, got %+v", ev)
	}

	if item, _ := store.GetItem(ctx, "Linguiça"); item != nil {
		t.Errorf("expected item gone, got %+v", item)
	}
}

func TestConcurrentRemoves_ExactlyOneWins(t *testing.T) {
	svc, _, _ := newTestLedger(Config{})
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, admin, "Picanha", 8); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RemoveStock(ctx, admin, "Picanha", 5)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 || insufficientCount.Load() != 1 {
		t.Errorf("expected 1 success and 1 insufficient, got %d/%d",
			successCount.Load(), insufficientCount.Load())
	}
}

func TestConcurrentRemoves_DrainExactly(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	svc, store, _ := newTestLedger(Config{})
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, admin, "Picanha", initialStock); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RemoveStock(ctx, admin, "Picanha", 1); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if item, _ := store.GetItem(ctx, "Picanha"); item != nil {
		t.Errorf("expected item drained away, got %+v", item)
	}
}

func TestReplayEquivalence(t *testing.T) {
	svc, store, _ := newTestLedger(Config{})
	ctx := context.Background()

	commands := []func() error{
		func() error { _, err := svc.CreateItem(ctx, admin, "Picanha", 20); return err },
		func() error { _, err := svc.CreateItem(ctx, admin, "Costela", 30); return err },
		func() error { _, err := svc.AddStock(ctx, admin, "Picanha", 10); return err },
		func() error { _, err := svc.RemoveStock(ctx, admin, "Costela", 12); return err },
		func() error { _, err := svc.CreateItem(ctx, admin, "Fraldinha", 15); return err },
		func() error { _, err := svc.RemoveStock(ctx, admin, "Fraldinha", 15); return err },
		func() error { _, err := svc.DeleteItem(ctx, admin, "Picanha"); return err },
		func() error { _, err := svc.CreateItem(ctx, admin, "Picanha", 7); return err },
	}
	for i, cmd := range commands {
		if err := cmd(); err != nil {
			t.Fatalf("command %d failed: %v", i, err)
		}
	}

	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	live := make(map[string]int, len(items))
	for _, item := range items {
		live[item.Name] = item.Quantity
	}

	events, err := store.Events(ctx, domain.EventFilter{Ascending: true})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	replayed := domain.Replay(events, false)

	if !reflect.DeepEqual(live, replayed) {
		t.Errorf("replay mismatch:\nlive:     %v\nreplayed: %v", live, replayed)
	}
}

func TestOneEventPerSuccessfulMutation(t *testing.T) {
	svc, store, notifier := newTestLedger(Config{})
	ctx := context.Background()

	successful := 0
	if _, err := svc.CreateItem(ctx, admin, "Picanha", 20); err == nil {
		successful++
	}
	if _, err := svc.AddStock(ctx, admin, "Picanha", 10); err == nil {
		successful++
	}
	// Failed commands in between must not append anything.
	svc.RemoveStock(ctx, admin, "Picanha", 999)
	svc.AddStock(ctx, admin, "Missing", 1)
	svc.CreateItem(ctx, admin, "Picanha", 1)
	if _, err := svc.RemoveStock(ctx, admin, "Picanha", 3); err == nil {
		successful++
	}

	events, err := store.Events(ctx, domain.EventFilter{})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != successful {
		t.Errorf("expected %d events, got %d", successful, len(events))
	}
	if int(notifier.count.Load()) != successful {
		t.Errorf("expected %d notifications, got %d", successful, notifier.count.Load())
	}
}

// failingStore simulates storage unavailability after validation passed.
type failingStore struct {
	port.LedgerStore
}

func (f *failingStore) GetItem(ctx context.Context, name string) (*domain.Item, error) {
	return &domain.Item{Name: name, Quantity: 10}, nil
}

func (f *failingStore) Apply(ctx context.Context, change domain.StockChange) (domain.Event, error) {
	return domain.Event{}, fmt.Errorf("storage unavailable")
}

func TestStorageFailure_NoNotification(t *testing.T) {
	notifier := &countingNotifier{}
	svc := NewLedgerService(&failingStore{}, notifier, Config{})

	_, err := svc.AddStock(context.Background(), admin, "Picanha", 5)
	if err == nil {
		t.Fatal("expected storage error")
	}
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("storage failure must not map to an expected error kind: %v", err)
	}
	if notifier.count.Load() != 0 {
		t.Errorf("failed command must not notify, got %d", notifier.count.Load())
	}
}
