package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configure the shared profile cache connection
type RedisOptions struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// OpenRedis connects to Redis and verifies the connection
func OpenRedis(ctx context.Context, cfg RedisOptions) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisCache keeps profiles as JSON strings in Redis so that every server
// process shares them
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an open client
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Name implements ProfileCache
func (c *RedisCache) Name() string { return "redis" }

// Get implements ProfileCache
func (c *RedisCache) Get(ctx context.Context, key string) (*Person, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var person Person
	if err := json.Unmarshal(data, &person); err != nil {
		c.client.Del(ctx, key)
		return nil, false, fmt.Errorf("failed to unmarshal cached profile: %w", err)
	}
	return &person, true, nil
}

// Set implements ProfileCache
func (c *RedisCache) Set(ctx context.Context, key string, person *Person, ttl time.Duration) error {
	data, err := json.Marshal(person)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements ProfileCache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
