package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
)

// DefaultKeyPrefix namespaces account states in a shared Redis
const DefaultKeyPrefix = "paper:account:"

// RedisStore keeps account states as JSON strings in Redis
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration // zero keeps keys forever
}

// NewRedisStore connects to addr/db and pings it
func NewRedisStore(ctx context.Context, addr string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisStoreWithClient(client, DefaultKeyPrefix, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key holding accountID
func (r *RedisStore) Key(accountID string) string {
	return r.prefix + accountID
}

// Save stores st under its account id
func (r *RedisStore) Save(ctx context.Context, st paper.State) error {
	if st.ID == "" {
		return fmt.Errorf("account id is required")
	}
	data, err := json.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := r.client.Set(ctx, r.Key(st.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store state for %s: %w", st.ID, err)
	}
	return nil
}

// Load fetches the state stored for accountID
func (r *RedisStore) Load(ctx context.Context, accountID string) (paper.State, error) {
	data, err := r.client.Get(ctx, r.Key(accountID)).Bytes()
	if err == redis.Nil {
		return paper.State{}, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	if err != nil {
		return paper.State{}, fmt.Errorf("failed to load state for %s: %w", accountID, err)
	}

	var st paper.State
	if err := json.Unmarshal(data, &st); err != nil {
		return paper.State{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return st, nil
}

// Delete removes the state for accountID
func (r *RedisStore) Delete(ctx context.Context, accountID string) error {
	if err := r.client.Del(ctx, r.Key(accountID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state for %s: %w", accountID, err)
	}
	return nil
}
