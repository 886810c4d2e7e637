package realtime

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisBackplane fans broadcasts out through a Redis pub/sub channel so
// every server instance delivers them to its own sockets
type RedisBackplane struct {
	client  *redis.Client
	channel string
}

// NewRedisBackplane creates a backplane on the given channel
func NewRedisBackplane(client *redis.Client, channel string) *RedisBackplane {
	return &RedisBackplane{client: client, channel: channel}
}

// Publish implements Backplane
func (b *RedisBackplane) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe implements Backplane. It blocks until ctx is cancelled.
func (b *RedisBackplane) Subscribe(ctx context.Context, deliver func(payload []byte)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	logrus.WithField("channel", b.channel).Info("Realtime backplane subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver([]byte(msg.Payload))
		}
	}
}
