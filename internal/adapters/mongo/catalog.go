package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID        string               `bson:"_id"`
	Title     string               `bson:"title"`
	Price     primitive.Decimal128 `bson:"price"`
	ImageURL  string               `bson:"image_url"`
	Venue     string               `bson:"venue"`
	Category  string               `bson:"category"`
	Date      time.Time            `bson:"date"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

func toDoc(ev domain.Event) (EventDoc, error) {
	price, err := primitive.ParseDecimal128(ev.BasePrice.String())
	if err != nil {
		return EventDoc{}, errors.Wrapf(err, "price of %s", ev.EventID)
	}
	return EventDoc{
		ID:       ev.EventID,
		Title:    ev.Title,
		Price:    price,
		ImageURL: ev.ImageURL,
		Venue:    ev.Venue,
		Category: ev.Category,
		Date:     ev.Date,
	}, nil
}

func (d EventDoc) toEvent() (domain.Event, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return domain.Event{}, errors.Wrapf(err, "price of %s", d.ID)
	}
	return domain.Event{
		EventID:   d.ID,
		Title:     d.Title,
		BasePrice: price,
		ImageURL:  d.ImageURL,
		Venue:     d.Venue,
		Category:  d.Category,
		Date:      d.Date.UTC(),
	}, nil
}

func (c *CatalogRepository) Lookup(ctx context.Context, eventID string) (*domain.Event, error) {
	var doc EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": eventID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "event %s", eventID)
	}
	if err != nil {
		c.logger.WithField("event_id", eventID).Error("failed to get event", err)
		return nil, domain.StorageError(err, "find event")
	}
	ev, err := doc.toEvent()
	if err != nil {
		return nil, domain.StorageError(err, "decode event")
	}
	return &ev, nil
}

func (c *CatalogRepository) List(ctx context.Context) ([]domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := c.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		c.logger.Error("failed to list events", err)
		return nil, domain.StorageError(err, "find events")
	}
	defer cur.Close(ctx)

	var docs []EventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.StorageError(err, "decode events")
	}
	events := make([]domain.Event, 0, len(docs))
	for _, doc := range docs {
		ev, err := doc.toEvent()
		if err != nil {
			return nil, domain.StorageError(err, "decode event")
		}
		events = append(events, ev)
	}
	return events, nil
}

// Upsert inserts or replaces an event keyed by its id.
func (c *CatalogRepository) Upsert(ctx context.Context, ev domain.Event) error {
	doc, err := toDoc(ev)
	if err != nil {
		return errors.Mark(err, domain.ErrInvalidInput)
	}
	doc.UpdatedAt = time.Now().UTC()
	_, err = c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithField("event_id", ev.EventID).Error("failed to upsert event", err)
		return domain.StorageError(err, "upsert event")
	}
	return nil
}
