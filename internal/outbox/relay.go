package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

const defaultBatchSize = 10

type EventPublisher interface {
	Publish(ctx context.Context, key, messageID string, body []byte) error
}

// Relay moves committed outbox messages to the broker. Delivery is at least
// once: a crash between publish and MarkPublished republishes the message
// with the same dedupe key.
type Relay struct {
	store     domain.OutboxStore
	publisher EventPublisher
	logger    observability.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewRelay(store domain.OutboxStore, publisher EventPublisher, interval time.Duration, logger observability.Logger) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.Error("outbox relay failed", err)
			}
		}
	}
}

// RelayOnce publishes one batch and reports how many messages went out.
// A failed publish stops the batch so ordering is kept.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := r.store.GetUnpublishedOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "load outbox")
	}
	if len(msgs) == 0 {
		observability.OutboxLag.Set(0)
		return 0, nil
	}
	observability.OutboxLag.Set(r.now().Sub(msgs[0].CreatedAt).Seconds())

	sent := 0
	for _, msg := range msgs {
		if err := r.publisher.Publish(ctx, msg.EventType, msg.DedupeKey, msg.Payload); err != nil {
			return sent, errors.Wrapf(err, "publish outbox message %s", msg.ID)
		}
		if err := r.store.MarkPublished(ctx, msg.ID, r.now().UTC()); err != nil {
			return sent, errors.Wrapf(err, "mark outbox message %s", msg.ID)
		}
		sent++
		r.logger.WithFields(map[string]interface{}{
			"event_type": msg.EventType,
			"dedupe_key": msg.DedupeKey,
		}).Debug("outbox message published")
	}
	return sent, nil
}
