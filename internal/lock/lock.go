// Package lock implements the Redis-backed distributed lock the video
// poller uses to ensure only one instance ticks a given lock name at a
// time (spec.md §4.7: "task_poller:video:lock", TTL 60s), grounded on
// common/redis.go's go-redis/v8 client and Laisky/errors wrapping style.
package lock

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/go-redis/redis/v8"

	"github.com/nexusgate/llmgateway/common"
)

// releaseScript deletes key only if its value still matches token, so a
// lock holder never releases a lock it no longer owns (e.g. after its TTL
// expired and another instance acquired it).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// ErrNotAcquired is returned by Acquire when another holder already owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// Lock is a held distributed lock; call Release when the critical section ends.
type Lock struct {
	key   string
	token string
}

// Acquire attempts to take the named lock with the given TTL using SETNX
// semantics (SET key token NX EX ttl). Returns ErrNotAcquired if another
// holder currently owns it.
func Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if !common.IsRedisEnabled() {
		// No Redis configured: single-instance deployment, lock is a no-op.
		return &Lock{key: key, token: "local"}, nil
	}

	token := gutils.UUID7()
	ok, err := common.RDB.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire lock %q", key)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{key: key, token: token}, nil
}

// Release drops the lock if this Lock still owns it. Safe to call once;
// calling it after the TTL has already expired (and possibly been
// reacquired by another holder) is a no-op thanks to the compare-and-delete
// Lua script.
func (l *Lock) Release(ctx context.Context) error {
	if !common.IsRedisEnabled() {
		return nil
	}
	_, err := common.RedisEvalSha(ctx, releaseScript, []string{l.key}, l.token)
	if err != nil {
		return errors.Wrapf(err, "release lock %q", l.key)
	}
	return nil
}

// WithLock runs fn while holding key, returning ErrNotAcquired immediately
// (not blocking) if another instance already holds it.
func WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l, err := Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := l.Release(ctx); releaseErr != nil {
			// Best effort: the TTL will expire the lock regardless.
			_ = releaseErr
		}
	}()
	return fn(ctx)
}
