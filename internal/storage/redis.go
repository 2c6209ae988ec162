package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisClient owns the shared Redis connection pool used by queues, spend counters and rate limits
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects and pings. An empty address returns (nil, nil): Redis is optional.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "failed to connect to Redis at %s", cfg.Address)
	}

	return &RedisClient{client: client}, nil
}

// Client returns the underlying client; nil-safe
func (r *RedisClient) Client() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// Health pings Redis
func (r *RedisClient) Health(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return eris.Wrap(r.client.Ping(ctx).Err(), "redis ping failed")
}

// Close closes the pool; nil-safe
func (r *RedisClient) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
