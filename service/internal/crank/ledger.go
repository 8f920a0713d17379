// internal/crank/ledger.go
package crank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrNoRecord is returned when a ledger has nothing stored under a key.
var ErrNoRecord = errors.New("crank: no record")

// Ledger stores the raw session and input records the crank advances.
type Ledger interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string][]byte
	writes  int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string][]byte)}
}

func (l *MemoryLedger) Read(_ context.Context, key string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, ok := l.records[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNoRecord)
	}
	return append([]byte(nil), data...), nil
}

func (l *MemoryLedger) Write(_ context.Context, key string, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[key] = append([]byte(nil), data...)
	l.writes++
	return nil
}

// Writes counts calls to Write.
func (l *MemoryLedger) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// RedisLedger keeps records as redis string values.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger connects to url (redis://...) and checks the connection.
func NewRedisLedger(ctx context.Context, url string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("crank: redis: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("crank: redis ping %s: %w", opts.Addr, err)
	}
	return &RedisLedger{client: client}, nil
}

func (l *RedisLedger) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := l.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, ErrNoRecord)
	}
	if err != nil {
		return nil, fmt.Errorf("crank: redis get %s: %w", key, err)
	}
	return data, nil
}

func (l *RedisLedger) Write(ctx context.Context, key string, data []byte) error {
	if err := l.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("crank: redis set %s: %w", key, err)
	}
	return nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}
