package main

import (
	"context"
	"log"
	"time"

	"github.com/cockroachdb/errors"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/robertarktes/ticket-storefront/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/ticket-storefront/internal/adapters/redis"
	"github.com/robertarktes/ticket-storefront/internal/config"
	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

type catalogWriter interface {
	Upsert(ctx context.Context, ev domain.Event) error
}

// cacheInvalidator drops cached catalog entries so running API instances
// pick up the new prices.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, eventID string) error
}

func seed(ctx context.Context, events []domain.Event, catalog catalogWriter, cache cacheInvalidator, logger observability.Logger) error {
	for _, ev := range events {
		if err := catalog.Upsert(ctx, ev); err != nil {
			return errors.Wrapf(err, "seed %s", ev.EventID)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, ev.EventID); err != nil {
				return errors.Wrapf(err, "invalidate cached %s", ev.EventID)
			}
		}
		logger.WithField("event_id", ev.EventID).Info("event seeded")
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.MongoURI == "" {
		log.Fatal("MONGO_URI is required")
	}
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer client.Disconnect(context.Background())

	catalog := mongoadapter.NewCatalogRepository(client.Database(cfg.MongoDB), logger)

	var cache cacheInvalidator
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		cache = redisadapter.NewCachedCatalog(redisadapter.NewCache(redisClient), catalog, cfg.CatalogCacheTTL, logger)
	} else {
		logger.Warn("REDIS_ADDR not set; cached catalog entries expire on their own")
	}

	if err := seed(ctx, domain.SampleEvents(), catalog, cache, logger); err != nil {
		log.Fatalf("failed to seed events: %v", err)
	}
}
