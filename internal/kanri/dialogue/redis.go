package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces dialogue keys.
	DefaultRedisPrefix = "kanri:dialogue:"

	// DefaultRedisTTL bounds how long an idle user's state survives. Reply
	// history is the longest-lived part of the state, so the TTL is far
	// longer than any slot or dedup window.
	DefaultRedisTTL = 24 * time.Hour
)

// RedisStore keeps one JSON document per user, refreshed on every Save.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. Empty prefix and non-positive ttl
// select the defaults.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis parses a redis:// URL, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("dialogue: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dialogue: connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + userID
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, userID string) (*State, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("dialogue: load state: %w", err)
	}
	s := NewState()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("dialogue: decode state: %w", err)
	}
	if s.LastReplyIDs == nil {
		s.LastReplyIDs = make(map[string][]int)
	}
	return s, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, userID string, s *State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("dialogue: encode state: %w", err)
	}
	if err := r.client.Set(ctx, r.key(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("dialogue: save state: %w", err)
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
