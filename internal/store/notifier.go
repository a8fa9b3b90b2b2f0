package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "faceverify:gallery"

// Notifier tells other service instances that the gallery changed so they
// reload their snapshot.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewNotifier connects to Redis. It returns nil, nil when no URL is configured.
func NewNotifier(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewNotifierFromClient(client, cfg.Channel, logger), nil
}

// NewNotifierFromClient wraps an existing client.
func NewNotifierFromClient(client *redis.Client, channel string, logger *zap.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{client: client, channel: channel, logger: logging.Or(logger)}
}

// Publish announces a change to the given identity.
func (n *Notifier) Publish(ctx context.Context, identityID string) error {
	if n == nil {
		return nil
	}
	if err := n.client.Publish(ctx, n.channel, identityID).Err(); err != nil {
		return fmt.Errorf("publish gallery change: %w", err)
	}
	return nil
}

// Subscribe calls fn for every announced change until ctx is done.
// ready is closed once the subscription is active.
func (n *Notifier) Subscribe(ctx context.Context, ready chan<- struct{}, fn func(identityID string)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", n.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.logger.Debug("gallery change received", zap.String("identity_id", msg.Payload))
			fn(msg.Payload)
		}
	}
}

// Health checks the Redis connection.
func (n *Notifier) Health(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.client.Close()
}
