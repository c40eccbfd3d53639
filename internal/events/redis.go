package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel is the redis pub/sub channel events are broadcast on.
const Channel = "ledger_events_broadcast"

// RedisClient is the part of *redis.Client the publisher needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher broadcasts events to every instance subscribed to channel.
type RedisPublisher struct {
	r       RedisClient
	channel string
}

// NewRedisPublisher publishes on channel; "" selects Channel.
func NewRedisPublisher(r RedisClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = Channel
	}
	return &RedisPublisher{r: r, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events.RedisPublisher: marshal: %w", err)
	}
	if err := p.r.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("events.RedisPublisher: publish: %w", err)
	}
	return nil
}

// StartRedisRelay subscribes to channel and hands every decoded event to
// sink until ctx is cancelled. It lets each instance push events committed
// by its peers to its own websocket clients.
func StartRedisRelay(ctx context.Context, r *redis.Client, channel string, sink func(Event), logger *slog.Logger) {
	if channel == "" {
		channel = Channel
	}
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					logger.Warn("redis relay: bad payload", "err", err)
					continue
				}
				sink(e)
			}
		}
	}()
}
