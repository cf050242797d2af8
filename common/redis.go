package common

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/nexusgate/llmgateway/common/config"
	"github.com/nexusgate/llmgateway/common/logger"
)

// RDB is the process-wide Redis client backing the video-poll distributed
// lock (internal/lock) and any other cross-instance coordination.
var RDB redis.Cmdable

var redisEnabled atomic.Bool

// IsRedisEnabled reports whether InitRedisClient successfully connected.
func IsRedisEnabled() bool {
	return redisEnabled.Load()
}

// SetRedisEnabled overrides the enabled flag, primarily for tests.
func SetRedisEnabled(enabled bool) {
	redisEnabled.Store(enabled)
}

// InitRedisClient connects RDB from config.RedisConnString. Without Redis
// configured, the scheduler's video poller runs unlocked on a single
// instance — acceptable for the embedded/dev deployment, not for
// multi-instance production.
func InitRedisClient() error {
	if config.RedisConnString == "" {
		SetRedisEnabled(false)
		logger.Logger.Info("REDIS_CONN_STRING not set, Redis is not enabled")
		return nil
	}

	if config.RedisMasterName == "" {
		opt, err := redis.ParseURL(config.RedisConnString)
		if err != nil {
			return errors.Wrap(err, "parse redis connection string")
		}
		RDB = redis.NewClient(opt)
	} else {
		logger.Logger.Info("redis sentinel mode enabled")
		RDB = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:      strings.Split(config.RedisConnString, ","),
			Password:   config.RedisPassword,
			MasterName: config.RedisMasterName,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RDB.Ping(ctx).Result(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	SetRedisEnabled(true)
	logger.Logger.Info("redis connected")
	return nil
}

// RedisSet stores key=value with the given expiration.
func RedisSet(ctx context.Context, key, value string, expiration time.Duration) error {
	if RDB == nil {
		return errors.New("redis not initialized")
	}
	if err := RDB.Set(ctx, key, value, expiration).Err(); err != nil {
		return errors.Wrapf(err, "set redis key %q", key)
	}
	return nil
}

// RedisGet reads key, returning an error if it does not exist.
func RedisGet(ctx context.Context, key string) (string, error) {
	if RDB == nil {
		return "", errors.New("redis not initialized")
	}
	val, err := RDB.Get(ctx, key).Result()
	if err != nil {
		return "", errors.Wrapf(err, "get redis key %q", key)
	}
	return val, nil
}

// RedisDel removes key.
func RedisDel(ctx context.Context, key string) error {
	if RDB == nil {
		return errors.New("redis not initialized")
	}
	if err := RDB.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "delete redis key %q", key)
	}
	return nil
}

// RedisEvalSha runs a Lua script against Redis, used by internal/lock for
// the atomic compare-and-delete lock release.
func RedisEvalSha(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	if RDB == nil {
		return nil, errors.New("redis not initialized")
	}
	logger.Logger.Debug("eval redis script", zap.Strings("keys", keys))
	return script.Run(ctx, RDB, keys, args...).Result()
}
