package crdb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robertarktes/ticket-storefront/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS carts (
		owner_id STRING PRIMARY KEY,
		items JSONB NOT NULL DEFAULT '[]',
		promo_code STRING,
		discount DECIMAL NOT NULL DEFAULT 0,
		version INT8 NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		owner_id STRING NOT NULL,
		subtotal DECIMAL NOT NULL,
		total_amount DECIMAL NOT NULL,
		promo_code_used STRING,
		discount DECIMAL NOT NULL DEFAULT 0,
		status STRING NOT NULL CHECK (status IN ('Pending', 'Paid', 'Completed', 'Canceled')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		INDEX orders_owner_created_idx (owner_id, created_at DESC)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id UUID NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		position INT4 NOT NULL,
		event_id STRING NOT NULL,
		title STRING NOT NULL,
		unit_price DECIMAL NOT NULL,
		image_url STRING,
		quantity INT4 NOT NULL CHECK (quantity > 0),
		PRIMARY KEY (order_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type STRING NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type STRING NOT NULL,
		payload_json JSONB NOT NULL,
		status STRING NOT NULL DEFAULT 'NEW',
		dedupe_key STRING NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		UNIQUE (dedupe_key),
		INDEX outbox_status_created_idx (status, created_at)
	)`,
}

// Migrate creates the storefront tables. Statements run one by one; the
// extended protocol rejects multi-statement strings.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return domain.StorageError(err, "migrate")
		}
	}
	return nil
}
