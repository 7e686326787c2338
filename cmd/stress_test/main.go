// Command stress_test hammers the ledger engine with concurrent removes
// and checks that the non-negativity and replay-equivalence invariants
// hold under contention.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OYH0/ChurrasControl/internal/adapter/storage"
	"github.com/OYH0/ChurrasControl/internal/core/domain"
	"github.com/OYH0/ChurrasControl/internal/core/service"
	"github.com/OYH0/ChurrasControl/internal/notify"
)

const (
	itemName      = "Picanha"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	store := storage.NewMemoryAdapter()
	notifier := notify.New()
	defer notifier.Close()

	ledger := service.NewLedgerService(store, notifier, service.Config{})
	admin := domain.Principal{Email: "stress", CanMutate: true}

	if _, err := ledger.CreateItem(ctx, admin, itemName, initialStock); err != nil {
		log.Fatalf("failed to create item: %v", err)
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := ledger.RemoveStock(ctx, admin, itemName, 1); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && fail == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d removes succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	// The drained item's identity ends, so the projection must be empty
	// and a replay of the log must agree.
	items, err := store.ListItems(ctx)
	if err != nil {
		log.Fatalf("failed to list items: %v", err)
	}
	events, err := store.Events(ctx, domain.EventFilter{Ascending: true})
	if err != nil {
		log.Fatalf("failed to query events: %v", err)
	}
	replayed := domain.Replay(events, false)

	if len(items) == 0 && len(replayed) == 0 {
		fmt.Println("PASS: Stock depleted and replay agrees")
	} else {
		fmt.Printf("FAIL: %d items left, replay has %d entries\n", len(items), len(replayed))
	}

	expectedEvents := int(success) + 1 // one create plus one event per successful remove
	if len(events) == expectedEvents {
		fmt.Printf("PASS: Event log has exactly %d entries\n", expectedEvents)
	} else {
		fmt.Printf("FAIL: Expected %d events, got %d\n", expectedEvents, len(events))
	}
}
