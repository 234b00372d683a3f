package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "lock:"
	lockTTL       = 30 * time.Second
	lockRetry     = 200 * time.Millisecond
)

// ErrLockHeld is returned when a lock could not be taken before the
// context ended.
var ErrLockHeld = errors.New("lock held by another writer")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker serialises writers across processes with SET NX PX.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: lockTTL}
}

// Lock blocks until the lock for key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = lockKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "acquiring lock")
		}
		if ok {
			return func() {
				if err := releaseScript.Run(context.Background(), l.rdb, []string{key}, token).Err(); err != nil {
					pterm.Warning.Printf("releasing lock %s failed, it expires in %s: %v\n", key, l.ttl, err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrLockHeld, key)
		case <-ticker.C:
		}
	}
}

// LocalLocker serialises writers inside a single process. It is the
// fallback when no redis is configured.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
