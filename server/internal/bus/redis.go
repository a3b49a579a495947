package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/drafftink/relay/server/internal/relay"
)

// Counters receives bus traffic events. *metrics.Collector satisfies it.
type Counters interface {
	BusPublished()
	BusReceived()
	BusError()
}

type nopCounters struct{}

func (nopCounters) BusPublished() {}
func (nopCounters) BusReceived()  {}
func (nopCounters) BusError()     {}

// Options configures the Redis connection.
type Options struct {
	Addr          string
	DB            int
	ChannelPrefix string
}

// Bus publishes local messages and delivers remote ones into a registry.
// It implements relay.Forwarder.
type Bus struct {
	rdb      *redis.Client
	prefix   string
	origin   string
	reg      *relay.Registry
	counters Counters
}

var _ relay.Forwarder = (*Bus)(nil)

// NewRedis connects to Redis and verifies connectivity. counters may be nil.
func NewRedis(ctx context.Context, opts Options, reg *relay.Registry, counters Counters) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck
		return nil, fmt.Errorf("bus: redis ping %s: %w", opts.Addr, err)
	}
	return newBus(rdb, opts.ChannelPrefix, reg, counters), nil
}

func newBus(rdb *redis.Client, prefix string, reg *relay.Registry, counters Counters) *Bus {
	if counters == nil {
		counters = nopCounters{}
	}
	return &Bus{
		rdb:      rdb,
		prefix:   prefix,
		origin:   uuid.NewString(),
		reg:      reg,
		counters: counters,
	}
}

// Origin returns the id stamped on envelopes published by this instance.
func (b *Bus) Origin() string { return b.origin }

// Forward publishes msg for the other instances serving roomID.
func (b *Bus) Forward(ctx context.Context, roomID string, msg relay.Message) error {
	raw, err := encode(b.origin, roomID, msg)
	if err != nil {
		b.counters.BusError()
		return fmt.Errorf("bus: encode: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel(roomID), raw).Err(); err != nil {
		b.counters.BusError()
		return fmt.Errorf("bus: publish: %w", err)
	}
	b.counters.BusPublished()
	return nil
}

// Run listens on every room channel and delivers remote messages until ctx
// is cancelled.
func (b *Bus) Run(ctx context.Context) {
	pubsub := b.rdb.PSubscribe(ctx, b.channel("*"))
	defer pubsub.Close()

	slog.Info("bus: subscribed", "pattern", b.channel("*"), "origin", b.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

// handle delivers one raw envelope. It returns the number of local
// recipients.
func (b *Bus) handle(raw []byte) int {
	env, err := decode(raw)
	if err != nil {
		b.counters.BusError()
		slog.Warn("bus: dropping message", "err", err)
		return 0
	}
	if env.Origin == b.origin {
		return 0
	}
	b.counters.BusReceived()
	return b.reg.Deliver(env.Room, env.Message())
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error { return b.rdb.Close() }

func (b *Bus) channel(room string) string { return b.prefix + room }
