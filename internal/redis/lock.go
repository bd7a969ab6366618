package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("request lock not acquired")
)

// Locker guards the multi-step reserve sequence of an acceptance
// (aggregate reserve, status claim, FIFO consumption) per request. The
// conditional writes in Postgres remain the correctness backstop; the
// lock keeps concurrent acceptors of the same request from doing
// wasted reserve/refund churn.
type Locker interface {
	WithRequestLock(ctx context.Context, requestID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisRequestLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRequestLocker creates a locker that uses a per request Redis key.
func NewRedisRequestLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisRequestLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisRequestLocker) WithRequestLock(ctx context.Context, requestID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:request:%s", requestID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire request lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisRequestLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release request lock: %w", err)
	}
	return nil
}

// NoopLocker runs the critical section without any cross-process lock.
// Used in tests; the SQL conditional writes still hold.
type NoopLocker struct{}

func (NoopLocker) WithRequestLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
