package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/robertarktes/ticket-storefront/internal/adapters/mongo"
	"github.com/robertarktes/ticket-storefront/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-storefront/internal/checkout"
	"github.com/robertarktes/ticket-storefront/internal/config"
	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

const queueName = "storefront.order-audit"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "storefront-order-auditor")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, queueName, "order.*")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	auditor := NewOrderAuditor(audit, logger)
	logger.WithField("queue", queueName).Info("Order auditor started")
	auditor.Run(ctx, deliveries)
	logger.Info("Shutdown order auditor")
}

type AuditRecorder interface {
	LogOrderCreated(ctx context.Context, evt domain.OrderCreated) error
}

type OrderAuditor struct {
	audit  AuditRecorder
	logger observability.Logger
}

func NewOrderAuditor(audit AuditRecorder, logger observability.Logger) *OrderAuditor {
	return &OrderAuditor{audit: audit, logger: logger}
}

func (a *OrderAuditor) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			a.process(ctx, d)
		}
	}
}

func (a *OrderAuditor) process(ctx context.Context, d amqp.Delivery) {
	log := a.logger.WithFields(map[string]interface{}{
		"routing_key": d.RoutingKey,
		"message_id":  d.MessageId,
	})
	err := a.handle(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, domain.ErrStorageFailure):
		log.Warn("audit write failed, requeueing: ", err)
		_ = d.Nack(false, true)
	default:
		log.Error("dropping undecodable message: ", err)
		_ = d.Nack(false, false)
	}
}

// handle records one message. Unknown routing keys are acknowledged and
// ignored.
func (a *OrderAuditor) handle(ctx context.Context, routingKey string, body []byte) error {
	if routingKey != checkout.EventOrderCreated {
		return nil
	}
	var evt domain.OrderCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return errors.Wrap(err, "decode order.created")
	}
	return a.audit.LogOrderCreated(ctx, evt)
}
