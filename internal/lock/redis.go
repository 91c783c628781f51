package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker holds a key with SET NX and a TTL so a crashed worker cannot
// keep an order locked forever.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	ttl    func() time.Duration
	log    *zap.Logger
	prefix string
}

func NewRedis(client *redis.Client, ttl func() time.Duration, log *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		script: redis.NewScript(releaseScript),
		ttl:    ttl,
		log:    log.Named("lock.redis"),
		prefix: "songgift:lock:",
	}
}

func (l *RedisLocker) Backend() string { return "redis" }

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if l == nil || l.client == nil {
		return false, errors.New("lock client not configured")
	}
	if key == "" {
		return false, ErrEmptyKey
	}
	ttl := 5 * time.Minute
	if l.ttl != nil && l.ttl() > 0 {
		ttl = l.ttl()
	}

	redisKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.script.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}()

	return true, fn(ctx)
}
