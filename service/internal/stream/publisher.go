// internal/stream/publisher.go
package stream

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher forwards encoded events outside the process.
type Publisher interface {
	Publish(ctx context.Context, msg []byte) error
}

// RedisPublisher publishes events on a redis pub/sub channel so other
// processes can relay the stream.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to url (redis://...) and checks the connection.
func NewRedisPublisher(ctx context.Context, url, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Publish sends msg to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, msg []byte) error {
	return p.client.Publish(ctx, p.channel, msg).Err()
}

// Close releases the connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
