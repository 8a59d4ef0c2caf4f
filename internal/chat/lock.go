package chat

import (
	"context"
	"time"

	"ai-character-chat/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes turns per character. Acquisition is best effort: when the
// lease cannot be taken the caller proceeds anyway, accepting the documented
// counter-overshoot tolerance under concurrent requests for one character.
type Locker interface {
	// TryAcquire attempts to take the lease for key. It returns a release
	// function (always safe to call) and whether the lease was acquired.
	TryAcquire(ctx context.Context, key string) (release func(), acquired bool)
}

// NoopLocker performs no locking. Used when redis is not configured.
type NoopLocker struct{}

func (NoopLocker) TryAcquire(ctx context.Context, key string) (func(), bool) {
	return func() {}, true
}

// RedisLocker implements a per-character lease with SET NX and a TTL, so a
// crashed holder cannot wedge a character forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, log: log}
}

// releaseScript deletes the lease only if we still hold it, so an expired
// lease taken over by another request is not released from under them.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (func(), bool) {
	lockKey := "turnlock:" + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		l.log.Warn("Turn lock unavailable, proceeding without it", "key", key, "error", err.Error())
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}

	release := func() {
		if _, err := releaseScript.Run(context.Background(), l.client, []string{lockKey}, token).Result(); err != nil {
			l.log.Warn("Failed to release turn lock", "key", key, "error", err.Error())
		}
	}
	return release, true
}
