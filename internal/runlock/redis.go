package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock is a lease on a redis key shared by every host running against
// the same store. While held the lease is renewed every ttl/3; it expires
// after ttl if the holder dies.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	token  string
	owned  bool
	stop   func()
}

// NewRedisLock creates a lock on key. The client is owned by the lock.
func NewRedisLock(client redis.UniversalClient, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) Lock(ctx context.Context) (context.Context, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	l.token = token
	l.owned = true

	leaseCtx, stop := keepAlive(ctx, max(l.ttl/3, time.Millisecond), l.renew)
	l.stop = stop
	return leaseCtx, nil
}

func (l *RedisLock) renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renewing %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s is no longer ours", l.key)
	}
	return nil
}

func (l *RedisLock) Unlock(ctx context.Context) error {
	if !l.owned {
		return nil
	}
	l.owned = false
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("releasing %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s expired before release", l.key)
	}
	return nil
}

func (l *RedisLock) Close() error {
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}
	return l.client.Close()
}
