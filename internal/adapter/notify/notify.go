// Package notify delivers commerce notifications to logs and pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/port"
)

const DefaultChannel = "slabby:notifications"

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg port.Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(msg.Kind)),
		zap.Stringer("recipient", msg.Recipient),
		zap.Stringer("actor", msg.Actor),
		zap.Int64("shop_id", msg.ShopID),
	}
	if msg.Quantity != 0 {
		fields = append(fields, zap.Int("quantity", msg.Quantity))
	}
	if msg.Price != nil {
		fields = append(fields, zap.Stringer("price", msg.Price))
	}
	if msg.Stock != nil {
		fields = append(fields, zap.Int("stock", *msg.Stock))
	}
	n.logger.Info("notification", fields...)
	return nil
}

// RedisNotifier publishes notifications as JSON on a channel so the process
// rendering messages for actors can pick them up.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg port.Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []port.Notifier

func (m Multi) Notify(ctx context.Context, msg port.Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ port.Notifier = (*LogNotifier)(nil)
	_ port.Notifier = (*RedisNotifier)(nil)
	_ port.Notifier = Multi(nil)
)
