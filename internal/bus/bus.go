// Package bus wraps Redis pub/sub for fan-out of detected events to the
// streaming API. Delivery is at-most-once; subscribers that fall behind
// lose messages rather than stalling the publisher.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// EventsChannel carries detected event notifications.
const EventsChannel = "events"

// Bus publishes and subscribes on Redis channels.
type Bus struct {
	client *redis.Client
}

// New creates a bus over an existing client.
func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Ping verifies the Redis connection behind the bus.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish marshals v as JSON and publishes it on the channel.
func (b *Bus) Publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Subscription is one live channel subscription.
type Subscription struct {
	pubsub *redis.PubSub
	ch     chan string
}

// Subscribe opens a subscription and confirms it with the server before
// returning, so messages published afterwards are guaranteed to arrive.
func (b *Bus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &Subscription{pubsub: pubsub, ch: make(chan string, 16)}
	go func() {
		defer close(sub.ch)
		for msg := range pubsub.Channel() {
			select {
			case sub.ch <- msg.Payload:
			default:
				// Slow consumer; drop rather than block the pump
			}
		}
	}()
	return sub, nil
}

// Messages yields raw payloads. The channel closes when the subscription
// is closed.
func (s *Subscription) Messages() <-chan string {
	return s.ch
}

// Close tears the subscription down.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
