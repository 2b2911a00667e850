package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRelay mirrors lifecycle events onto a Redis PubSub channel so that
// processes outside this one (monitors, dashboards) can observe revocations.
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
}

// NewRedisRelay creates a relay publishing to channel.
func NewRedisRelay(rdb redis.UniversalClient, channel string) *RedisRelay {
	return &RedisRelay{rdb: rdb, channel: channel}
}

// Handle is a bus Handler.
func (r *RedisRelay) Handle(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Register subscribes the relay to bus.
func (r *RedisRelay) Register(bus *Bus) {
	bus.Subscribe("redis_relay", r.Handle)
}
