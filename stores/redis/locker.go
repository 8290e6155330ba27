// Package redis provides a linkauth.KeyLocker shared by every broker
// instance pointing at the same Redis.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	la "github.com/fjrd84/linkauth"
)

const (
	// DefaultTTL matches the Config.LockTTL derived from la.DefaultStoreTimeout.
	DefaultTTL        = 4 * la.DefaultStoreTimeout
	DefaultRetryDelay = 20 * time.Millisecond
	DefaultPrefix     = "linkauth:lock:"
)

// release deletes the lock only if we still own it.
var release = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker takes SET NX PX locks, one per identity key. A lock expires after
// TTL so a crashed holder cannot block a key forever.
type Locker struct {
	Client     goredis.UniversalClient
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
}

var _ la.KeyLocker = (*Locker)(nil)

func NewLocker(client goredis.UniversalClient) *Locker {
	return &Locker{
		Client:     client,
		Prefix:     DefaultPrefix,
		TTL:        DefaultTTL,
		RetryDelay: DefaultRetryDelay,
	}
}

func (l *Locker) ensureDefaults() {
	if l.Prefix == "" {
		l.Prefix = DefaultPrefix
	}
	if l.TTL == 0 {
		l.TTL = DefaultTTL
	}
	if l.RetryDelay == 0 {
		l.RetryDelay = DefaultRetryDelay
	}
}

// Lock blocks until every key is held or ctx ends.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	l.ensureDefaults()
	token := uuid.NewString()
	var held []string

	unlock := func() {
		// release even if the request context is already done
		rctx, cancel := context.WithTimeout(context.Background(), l.TTL)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := release.Run(rctx, l.Client, []string{held[i]}, token).Err(); err != nil {
				slog.Warn("failed to release lock", "key", held[i], "error", err)
			}
		}
	}

	for _, key := range la.SortKeys(keys) {
		redisKey := l.Prefix + key
		if err := l.acquire(ctx, redisKey, token); err != nil {
			unlock()
			return nil, err
		}
		held = append(held, redisKey)
	}
	return unlock, nil
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.RetryDelay)
	defer ticker.Stop()
	for {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
