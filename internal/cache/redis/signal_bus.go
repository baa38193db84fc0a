package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quicktrade/secondsd/internal/domain"
)

// SignalBus implements domain.SignalBus on Redis pub/sub. Contract lifecycle
// and history events fan out through it to other processes.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends payload to all subscribers of channel.
func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel and a cancel
// function that tears the subscription down. The returned Go channel is
// closed after cancel or when ctx ends.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := b.rdb.Subscribe(ctx, channel)

	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
