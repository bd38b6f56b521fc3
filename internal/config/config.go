package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageCRDB   = "crdb"
	StorageMemory = "memory"
)

type Config struct {
	HTTPAddr           string
	StorageDriver      string
	CRDBDSN            string
	MongoURI           string
	MongoDB            string
	RedisAddr          string
	RabbitURL          string
	JWTSecret          string
	PromoCode          string
	PromoRate          decimal.Decimal
	LockTTL            time.Duration
	CatalogCacheTTL    time.Duration
	IdempotencyTTL     time.Duration
	RateLimitPerMinute int
	OutboxInterval     time.Duration
	OTLPEndpoint       string
	LogLevel           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		StorageDriver:      getenv("STORAGE_DRIVER", StorageCRDB),
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getenv("MONGO_DB", "storefront"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		PromoCode:          getenv("PROMO_CODE", "FINAL"),
		LockTTL:            duration("LOCK_TTL", 5*time.Second),
		CatalogCacheTTL:    duration("CATALOG_CACHE_TTL", time.Minute),
		IdempotencyTTL:     duration("IDEMPOTENCY_TTL", time.Hour),
		OutboxInterval:     duration("OUTBOX_INTERVAL", 5*time.Second),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		RateLimitPerMinute: 60,
	}

	rate, err := decimal.NewFromString(getenv("PROMO_RATE", "0.10"))
	if err != nil {
		return nil, errors.Wrap(err, "parse PROMO_RATE")
	}
	cfg.PromoRate = rate

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "parse RATE_LIMIT_PER_MINUTE")
		}
		cfg.RateLimitPerMinute = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageCRDB:
		if c.CRDBDSN == "" {
			return errors.New("CRDB_DSN is required for the crdb storage driver")
		}
	case StorageMemory:
	default:
		return errors.Newf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if !c.PromoRate.IsPositive() || c.PromoRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.Newf("PROMO_RATE %s outside (0, 1]", c.PromoRate)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return fallback
	}
	return d
}
