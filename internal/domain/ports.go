package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Catalog is the read-only event lookup. Lookup returns ErrNotFound for
// unknown ids.
type Catalog interface {
	Lookup(ctx context.Context, eventID string) (*Event, error)
	List(ctx context.Context) ([]Event, error)
}

// Tx is one unit of work. SaveCart is a compare-and-swap on Cart.Version:
// it fails with ErrConflict when the stored version moved, and bumps
// cart.Version on success.
type Tx interface {
	GetCart(ctx context.Context, ownerID string) (*Cart, error)
	SaveCart(ctx context.Context, cart *Cart) error
	CreateOrder(ctx context.Context, order *Order) error
	InsertOutbox(ctx context.Context, msg OutboxMessage) error
}

type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	GetCart(ctx context.Context, ownerID string) (*Cart, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]Order, error)
}

type OutboxStore interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

// Locker serializes work on one key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
