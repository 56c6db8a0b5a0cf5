package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay mirrors values published on a Bus onto Redis Pub/Sub channels.
type RedisRelay[T any] struct {
	rdb     *redis.Client
	bus     *Bus[T]
	channel func(T) string
	filter  func(T) bool
	log     zerolog.Logger
}

// NewRedisRelay creates a relay. channel maps each value to the Redis
// channel it is published on. filter selects what is relayed; values it
// rejects never take space in the relay's buffer. A nil filter relays
// everything.
func NewRedisRelay[T any](rdb *redis.Client, bus *Bus[T], channel func(T) string, filter func(T) bool, log zerolog.Logger) *RedisRelay[T] {
	return &RedisRelay[T]{
		rdb:     rdb,
		bus:     bus,
		channel: channel,
		filter:  filter,
		log:     log.With().Str("component", "redis_relay").Logger(),
	}
}

// Start forwards bus traffic until ctx is cancelled. Call in a goroutine.
func (r *RedisRelay[T]) Start(ctx context.Context) {
	events, cancel := r.bus.Subscribe(r.filter)
	defer cancel()

	r.log.Info().Msg("Relay started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Relay stopped")
			return
		case v, ok := <-events:
			if !ok {
				return
			}
			raw, err := json.Marshal(v)
			if err != nil {
				r.log.Error().Err(err).Msg("Marshal error")
				continue
			}
			if err := r.rdb.Publish(ctx, r.channel(v), raw).Err(); err != nil && ctx.Err() == nil {
				r.log.Warn().Err(err).Msg("Publish error")
			}
		}
	}
}

// Listen subscribes to a Redis channel and decodes every message into T.
// The returned channel is closed when ctx is cancelled.
func Listen[T any](ctx context.Context, rdb *redis.Client, channel string, log zerolog.Logger) <-chan T {
	out := make(chan T, DefaultBuffer)
	pubsub := rdb.Subscribe(ctx, channel)

	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var v T
				if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
					log.Warn().Err(err).Str("channel", channel).Msg("Invalid relay payload")
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
