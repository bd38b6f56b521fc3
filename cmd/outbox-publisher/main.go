package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/ticket-storefront/internal/adapters/crdb"
	"github.com/robertarktes/ticket-storefront/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-storefront/internal/config"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.StorageDriver != config.StorageCRDB {
		log.Fatalf("outbox publisher needs STORAGE_DRIVER=%s", config.StorageCRDB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "storefront-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	relay := outbox.NewRelay(repo, rabbitPub, cfg.OutboxInterval, logger)

	logger.WithField("interval", cfg.OutboxInterval.String()).Info("Outbox publisher started")
	if err := relay.Run(ctx); err != nil {
		logger.Error("outbox publisher stopped: ", err)
	}
	logger.Info("Shutdown outbox publisher")
}
