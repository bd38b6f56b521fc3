package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/ticket-storefront/internal/adapters/crdb"
	"github.com/robertarktes/ticket-storefront/internal/adapters/memory"
	mongoadapter "github.com/robertarktes/ticket-storefront/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/ticket-storefront/internal/adapters/redis"
	"github.com/robertarktes/ticket-storefront/internal/config"
	"github.com/robertarktes/ticket-storefront/internal/domain"
	httphandler "github.com/robertarktes/ticket-storefront/internal/http"
	"github.com/robertarktes/ticket-storefront/internal/idempotency"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/rateLimit"
)

type deps struct {
	store   domain.Store
	catalog domain.Catalog
	locker  domain.Locker
	limiter httphandler.Limiter
	idemp   *idempotency.Idempotency
	checks  map[string]httphandler.ReadinessCheck
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps wires the adapters for cfg.StorageDriver. The memory driver
// needs no external services. With crdb, missing Mongo or Redis settings
// fall back to the in-process catalog, locker and idempotency store.
func buildDeps(ctx context.Context, cfg *config.Config, logger observability.Logger) (*deps, error) {
	d := &deps{checks: map[string]httphandler.ReadinessCheck{}}

	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("using in-memory storage; state is lost on restart")
		d.store = memory.NewStore()
		d.catalog = memory.NewCatalog(domain.SampleEvents()...)
		d.locker = memory.NewLocker()
		d.idemp = idempotency.NewIdempotency(idempotency.NewMemoryBackend(), cfg.IdempotencyTTL)
		return d, nil
	}

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		return nil, errors.Wrap(err, "connect to crdb")
	}
	d.closers = append(d.closers, pool.Close)
	if err := crdb.Migrate(ctx, pool); err != nil {
		d.close()
		return nil, err
	}
	d.store = crdb.NewRepository(pool)
	d.checks["crdb"] = pool.Ping

	var catalog domain.Catalog
	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			d.close()
			return nil, errors.Wrap(err, "connect to mongo")
		}
		d.closers = append(d.closers, func() { _ = client.Disconnect(context.Background()) })
		catalog = mongoadapter.NewCatalogRepository(client.Database(cfg.MongoDB), logger)
		d.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	} else {
		logger.Warn("MONGO_URI not set; serving the built-in sample catalog")
		catalog = memory.NewCatalog(domain.SampleEvents()...)
	}

	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set; cart locks are process-local")
		d.catalog = catalog
		d.locker = memory.NewLocker()
		d.idemp = idempotency.NewIdempotency(idempotency.NewMemoryBackend(), cfg.IdempotencyTTL)
		return d, nil
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	d.closers = append(d.closers, func() { _ = redisClient.Close() })
	cache := redisadapter.NewCache(redisClient)
	d.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	d.catalog = redisadapter.NewCachedCatalog(cache, catalog, cfg.CatalogCacheTTL, logger)
	d.locker = redisadapter.NewLocker(cache, cfg.LockTTL, logger)
	d.limiter = rateLimit.NewRateLimiter(cache, cfg.RateLimitPerMinute, time.Minute, logger)
	d.idemp = idempotency.NewIdempotency(idempotency.FromRedis(redisadapter.NewIdempotency(redisClient)), cfg.IdempotencyTTL)
	return d, nil
}
