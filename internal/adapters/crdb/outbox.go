package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/ticket-storefront/internal/domain"
)

const (
	outboxNew       = "NEW"
	outboxPublished = "PUBLISHED"
)

func (t *txRepo) InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, outboxNew, msg.DedupeKey, msg.CreatedAt)
	if err != nil {
		return domain.StorageError(err, "insert outbox")
	}
	return nil
}

func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, dedupe_key
		FROM outbox WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, outboxNew, limit)
	if err != nil {
		return nil, domain.StorageError(err, "select outbox")
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt, &msg.PublishedAt, &msg.DedupeKey)
		if err != nil {
			return nil, domain.StorageError(err, "scan outbox")
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError(err, "iterate outbox")
	}
	return msgs, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = $2, published_at = $3 WHERE id = $1
	`, id, outboxPublished, publishedAt)
	if err != nil {
		return domain.StorageError(err, "mark outbox published")
	}
	return nil
}
