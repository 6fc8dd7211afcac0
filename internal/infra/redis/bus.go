package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rmupfumira/classup/internal/realtime"
)

var _ realtime.Bus = (*Bus)(nil)

// Bus relays realtime frames between process instances over Redis pub/sub.
type Bus struct {
	client *goredis.Client
}

func NewBus(client *goredis.Client) (*Bus, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Bus{client: client}, nil
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", topic, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, patterns []string, handler func(topic string, payload []byte)) error {
	if len(patterns) == 0 {
		return fmt.Errorf("at least one pattern is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	pubsub := b.client.PSubscribe(ctx, patterns...)
	defer pubsub.Close() //nolint:errcheck

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("pubsub channel closed")
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *Bus) Close() error {
	return b.client.Close()
}
