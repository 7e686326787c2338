package storage

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OYH0/ChurrasControl/internal/port"
)

const publishTimeout = 2 * time.Second

// RedisNotifier carries the ledger-changed signal across processes over
// a Redis pub/sub channel, so every instance's subscribed views refresh
// no matter which one applied the command. The signal stays payloadless;
// consumers re-query the read models.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Changed publishes the signal. Delivery is fire-and-forget: a publish
// failure is logged and dropped, never surfaced to the ledger engine.
func (r *RedisNotifier) Changed() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, "changed").Err(); err != nil {
		log.Printf("redis notifier: publish failed: %v", err)
	}
}

// Relay forwards inbound publications to a local notifier until ctx is
// cancelled. Run it in its own goroutine. The instance's own publishes
// echo back through the relay; subscriber channels coalesce them.
func (r *RedisNotifier) Relay(ctx context.Context, target port.ChangeNotifier) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			target.Changed()
		}
	}
}
