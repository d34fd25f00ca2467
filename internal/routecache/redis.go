package routecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding all routes.
const DefaultRedisKey = "flightboard:routes"

// RedisClient is the subset of go-redis used by RedisStore, so tests can
// substitute a fake.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisStore keeps the cache in one Redis hash: field = route key, value =
// the JSON entry. Single-field writes mean concurrent workers only race on
// the same key.
type RedisStore struct {
	client RedisClient
	key    string
}

// RedisOptions configures OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// OpenRedis connects to Redis and checks the connection.
func OpenRedis(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, opts.Key), nil
}

// NewRedisStore wraps an existing client (useful for testing).
func NewRedisStore(client RedisClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load implements Store. Fields that do not decode are skipped.
func (s *RedisStore) Load(ctx context.Context) (map[string]Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read routes: %w", err)
	}
	entries := make(map[string]Entry, len(fields))
	for k, v := range fields {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries[k] = e
	}
	return entries, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal route: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, key, data).Err(); err != nil {
		return fmt.Errorf("failed to store route %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
