package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis key guarding crawl runs.
const DefaultKey = "jobcrawler:run-lock"

// releaseScript deletes the key only when it still carries our run id.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// client is the subset of *redis.Client the lock needs.
type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a crawler.RunLock shared by every replica pointing at the same Redis.
type Redis struct {
	client client
	key    string
	ttl    time.Duration
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse lock.redis_url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// NewRedis builds a lock holding key for at most ttl, so a crashed run cannot wedge crawling.
func NewRedis(c client, key string, ttl time.Duration) (*Redis, error) {
	if c == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: c, key: key, ttl: ttl}, nil
}

// TryLock runs SET key runID NX PX ttl.
func (r *Redis) TryLock(ctx context.Context, runID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key, runID, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// Unlock deletes the key if runID still owns it.
func (r *Redis) Unlock(ctx context.Context, runID string) error {
	if err := r.client.Eval(ctx, releaseScript, []string{r.key}, runID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
