package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLeaseTTL bounds how long a crashed holder blocks a group.
	DefaultLeaseTTL = 30 * time.Second

	defaultRetryInterval = 100 * time.Millisecond
)

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by Redis leases (SET NX PX). It serializes
// materialization of a group across processes sharing the same database.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a RedisLocker. A ttl <= 0 selects DefaultLeaseTTL.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisLocker{client: client, ttl: ttl, retry: defaultRetryInterval}
}

// NewRedisLockerFromURL parses a redis:// URL, verifies the connection and
// returns a RedisLocker together with its client so the caller can close it.
func NewRedisLockerFromURL(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLocker, *redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("Redis connection established", "addr", opt.Addr)
	return NewRedisLocker(client, ttl), client, nil
}

// Lock acquires the lease for key, polling until it is free or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	return func() {
		// Release even if the caller's context has ended.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := releaseScript.Run(ctx, r.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			slog.Warn("failed to release lease", "key", key, "error", err)
		}
	}, nil
}
