package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	OwnerID   string    `bson:"owner_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// LogEvent records one audit entry. A non-empty dedupeKey becomes the
// document id, so redelivered messages are written once.
func (a *AuditLogger) LogEvent(ctx context.Context, action, ownerID, dedupeKey string, data map[string]interface{}) error {
	id := dedupeKey
	if id == "" {
		id = uuid.NewString()
	}
	log := AuditLog{
		ID:        id,
		Action:    action,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.ReplaceOne(ctx, bson.M{"_id": id}, log, options.Replace().SetUpsert(true))
	if err != nil {
		a.logger.WithField("action", action).Error("failed to insert audit log", err)
		return domain.StorageError(err, "insert audit log")
	}
	return nil
}

func (a *AuditLogger) LogOrderCreated(ctx context.Context, evt domain.OrderCreated) error {
	data := map[string]interface{}{
		"order_id":     evt.OrderID.String(),
		"total_amount": evt.TotalAmount.String(),
		"discount":     evt.Discount.String(),
		"promo_code":   evt.PromoCode,
		"items_count":  evt.ItemCount,
		"tickets":      evt.Tickets,
		"created_at":   evt.CreatedAt.Format(time.RFC3339),
	}
	return a.LogEvent(ctx, "order.created", evt.OwnerID, evt.OrderID.String(), data)
}
