package backend

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared Redis connection.
type RedisOptions struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis adapts a go-redis client to the narrow key and list interfaces used by
// the session store and the chat history. Every failure other than a missing
// key is reported as unavailability.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis opens a pooled Redis client. No network traffic happens until the
// first command; call Probe to check liveness.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})}
}

// NewRedisFromClient wraps an existing go-redis client.
func NewRedisFromClient(c redis.UniversalClient) *Redis {
	return &Redis{client: c}
}

func (r *Redis) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrKeyNotFound
	default:
		return Unavailable("redis", op, err)
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.classify("ping", r.client.Ping(ctx).Err())
}

// Get returns the string value at key.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	return v, r.classify("get", err)
}

// Set stores value at key; a zero ttl means no expiry.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.classify("set", r.client.Set(ctx, key, value, ttl).Err())
}

// Del removes keys.
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	return r.classify("del", r.client.Del(ctx, keys...).Err())
}

// Keys lists keys matching pattern using SCAN.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, r.classify("scan", iter.Err())
}

// RPush appends values to the list at key.
func (r *Redis) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return r.classify("rpush", r.client.RPush(ctx, key, args...).Err())
}

// LRange returns list elements between start and stop inclusive.
func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := r.client.LRange(ctx, key, start, stop).Result()
	return vals, r.classify("lrange", err)
}

// Expire sets a ttl on key.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.classify("expire", r.client.Expire(ctx, key, ttl).Err())
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
