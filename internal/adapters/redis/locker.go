package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

const lockRetryInterval = 20 * time.Millisecond

// Locker is a domain.Locker shared across api replicas. The ttl bounds how
// long a crashed holder blocks others.
type Locker struct {
	cache  *Cache
	ttl    time.Duration
	logger observability.Logger
}

func NewLocker(cache *Cache, ttl time.Duration, logger observability.Logger) *Locker {
	return &Locker{cache: cache, ttl: ttl, logger: logger}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	fullKey := "lock:cart:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.cache.TryLock(ctx, fullKey, token, l.ttl)
		if err != nil {
			return nil, domain.StorageError(err, "acquire cart lock")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for cart lock of %s", key)
		case <-ticker.C:
		}
	}
	observability.LockWait.Observe(time.Since(start).Seconds())

	return func() {
		// The request context may already be gone.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.cache.Release(releaseCtx, fullKey, token); err != nil {
			l.logger.WithField("key", key).Warn("failed to release cart lock", err)
		}
	}, nil
}
