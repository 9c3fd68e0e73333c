// Package breakerlock provides an optional Redis advisory lock that
// narrows the race window when multiple orchestrator replicas evaluate the
// same circuit breaker key at nearly the same time. It is not a second
// source of truth for breaker state — that remains in-memory per replica
// (see pkg/breaker) — it only reduces the chance that two replicas both
// observe CLOSED and both proceed with the mutating action.
package breakerlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pipelineguard/remediator/pkg/shared/errors"
)

const keyPrefix = "remediator:breaker-lock:"

// Locker acquires and releases a short-lived advisory lock per breaker key.
type Locker interface {
	// TryAcquire attempts to take the lock for key, held for at most ttl.
	// It returns a release function (nil if the lock was not acquired) and
	// whether acquisition succeeded.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), acquired bool, err error)
}

// RedisLocker implements Locker using SET NX PX plus a Lua-scripted
// compare-and-delete release so a replica can never release a lock it does
// not hold (e.g. after its own TTL already expired and another replica took
// over).
type RedisLocker struct {
	client *redis.Client
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// NewRedisLocker builds a locker against a Redis endpoint.
func NewRedisLocker(redisURL string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.FailedToWithDetails("parse", "breaker_lock", redisURL, err)
	}
	return &RedisLocker{client: redis.NewClient(opts)}, nil
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.FailedToWithDetails("acquire", "breaker_lock", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(releaseCtx context.Context) {
		releaseScript.Run(releaseCtx, l.client, []string{keyPrefix + key}, token)
	}
	return release, true, nil
}

// NoopLocker is used when no Redis endpoint is configured: every
// acquisition trivially succeeds, so the fabric's single-process in-memory
// locking is the only protection (correct for a single-replica deployment).
type NoopLocker struct{}

func (NoopLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	return func(context.Context) {}, true, nil
}

// New builds a Locker from configuration: a RedisLocker when redisURL is
// set, otherwise a NoopLocker.
func New(redisURL string) (Locker, error) {
	if redisURL == "" {
		return NoopLocker{}, nil
	}
	locker, err := NewRedisLocker(redisURL)
	if err != nil {
		return nil, err
	}
	return locker, nil
}

var _ Locker = (*RedisLocker)(nil)
var _ Locker = NoopLocker{}
