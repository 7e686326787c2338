package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/OYH0/ChurrasControl/internal/adapter/handler"
	"github.com/OYH0/ChurrasControl/internal/adapter/storage"
	"github.com/OYH0/ChurrasControl/internal/config"
	"github.com/OYH0/ChurrasControl/internal/core/domain"
	"github.com/OYH0/ChurrasControl/internal/core/service"
	"github.com/OYH0/ChurrasControl/internal/notify"
	"github.com/OYH0/ChurrasControl/internal/port"
)

// seedItems is the default opening catalog. It is written once, only
// when the projection is empty.
var seedItems = []struct {
	name     string
	quantity int
}{
	{"Picanha", 20},
	{"Costela", 30},
	{"Fraldinha", 15},
	{"Linguiça", 25},
	{"Coxa de Frango", 40},
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StorageDriver, err)
	}
	log.Printf("using %s ledger store", cfg.StorageDriver)

	// Local notifier feeds the SSE stream; Redis extends the signal to
	// other processes when configured.
	localNotifier := notify.New()
	var engineNotifier port.ChangeNotifier = localNotifier

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		log.Println("connected to redis")

		redisNotifier := storage.NewRedisNotifier(rdb, cfg.RedisChannel)
		engineNotifier = notify.NewFanout(localNotifier, redisNotifier)
		go func() {
			if err := redisNotifier.Relay(ctx, localNotifier); err != nil && ctx.Err() == nil {
				log.Printf("redis relay stopped: %v", err)
			}
		}()
	}

	ledger := service.NewLedgerService(store, engineNotifier, service.Config{
		RetainZeroItems: cfg.RetainZeroItems,
		MaxMutation:     cfg.MaxMutation,
	})
	aggregator := service.NewAggregator(store, cfg.RetainZeroItems)

	if cfg.SeedOnEmpty {
		if err := seedInitialStock(ctx, ledger, store); err != nil {
			log.Fatalf("failed to seed initial stock: %v", err)
		}
	}

	httpHandler := handler.NewHTTPHandler(ledger, aggregator, localNotifier, cfg.AdminToken, cfg.HistoryLimit)
	mux := http.NewServeMux()
	httpHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	cancel()
	localNotifier.Close()

	if err := store.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	log.Println("connections closed")
}

func openStore(ctx context.Context, cfg config.Config) (port.LedgerStore, error) {
	switch cfg.StorageDriver {
	case "memory":
		return storage.NewMemoryAdapter(), nil
	case "sqlite":
		return storage.NewSQLiteAdapter(cfg.SQLitePath)
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		// config.Load already validated the driver
		return nil, nil
	}
}

// seedInitialStock writes the opening catalog on first run, when the
// projection holds no items.
func seedInitialStock(ctx context.Context, ledger *service.LedgerService, store port.LedgerStore) error {
	items, err := store.ListItems(ctx)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		return nil
	}

	seeder := domain.Principal{Email: "system", CanMutate: true}
	for _, item := range seedItems {
		if _, err := ledger.CreateItem(ctx, seeder, item.name, item.quantity); err != nil {
			return err
		}
	}
	log.Printf("seeded %d items", len(seedItems))
	return nil
}
