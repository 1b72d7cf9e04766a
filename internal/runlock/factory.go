package runlock

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"fsv-go/internal/config"
)

// DefaultTTL bounds a redis lease when the config leaves it empty.
const DefaultTTL = 10 * time.Minute

// NewLockerFromConfig builds the Locker selected by cfg.Lock. File locks live
// under cfg.DataDir.
func NewLockerFromConfig(ctx context.Context, cfg *config.Config) (Locker, error) {
	lc := cfg.Lock
	switch lc.Type {
	case "", "file":
		return NewFileLock(filepath.Join(cfg.DataDir, "fsv.lock")), nil
	case "none":
		return NopLocker{}, nil
	case "redis":
		ttl := DefaultTTL
		if lc.TTL != "" {
			d, err := time.ParseDuration(lc.TTL)
			if err != nil {
				return nil, fmt.Errorf("lock.ttl: %w", err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("lock.ttl must be positive, got %s", lc.TTL)
			}
			ttl = d
		}
		key := lc.Key
		if key == "" {
			key = "fsv:run:" + cfg.StoreID
		}

		client := redis.NewClient(&redis.Options{
			Addr:     lc.RedisAddr,
			Password: lc.RedisPassword,
			DB:       lc.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", lc.RedisAddr, err)
		}
		return NewRedisLock(client, key, ttl), nil
	default:
		return nil, fmt.Errorf("unknown lock type: %q", lc.Type)
	}
}
