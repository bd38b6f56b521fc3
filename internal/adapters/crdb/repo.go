package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

// querier is what pgxpool.Pool and pgx.Tx have in common.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.StorageError(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return domain.StorageError(err, "set isolation")
	}

	if err := fn(&txRepo{tx: tx}); err != nil {
		if isSerializationFailure(err) {
			return errors.Mark(err, domain.ErrSerializationFailure)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return errors.Mark(err, domain.ErrSerializationFailure)
		}
		return domain.StorageError(err, "commit")
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode
}

func (r *Repository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	return getCart(ctx, r.pool, ownerID, false)
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	orders, err := queryOrders(ctx, r.pool, "o.id = $1", orderID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "order %s", orderID)
	}
	return &orders[0], nil
}

func (r *Repository) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	return queryOrders(ctx, r.pool, "o.owner_id = $1", ownerID)
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	return getCart(ctx, t.tx, ownerID, true)
}

func (t *txRepo) SaveCart(ctx context.Context, cart *domain.Cart) error {
	items, err := json.Marshal(cart.Items)
	if err != nil {
		return errors.Wrap(err, "marshal cart items")
	}

	var tag pgconn.CommandTag
	if cart.Version == 0 {
		tag, err = t.tx.Exec(ctx, `
			INSERT INTO carts (owner_id, items, promo_code, discount, version, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), $4::DECIMAL, 1, $5)
			ON CONFLICT (owner_id) DO NOTHING
		`, cart.OwnerID, items, cart.PromoCode, cart.Discount.String(), cart.UpdatedAt)
	} else {
		tag, err = t.tx.Exec(ctx, `
			UPDATE carts
			SET items = $2, promo_code = NULLIF($3, ''), discount = $4::DECIMAL,
				version = version + 1, updated_at = $5
			WHERE owner_id = $1 AND version = $6
		`, cart.OwnerID, items, cart.PromoCode, cart.Discount.String(), cart.UpdatedAt, cart.Version)
	}
	if err != nil {
		if isSerializationFailure(err) {
			return errors.Mark(err, domain.ErrSerializationFailure)
		}
		return domain.StorageError(err, "save cart")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrConflict, "cart of %s is no longer at version %d", cart.OwnerID, cart.Version)
	}
	cart.Version++
	return nil
}

func (t *txRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, owner_id, subtotal, total_amount, promo_code_used, discount, status, created_at)
		VALUES ($1, $2, $3::DECIMAL, $4::DECIMAL, NULLIF($5, ''), $6::DECIMAL, $7, $8)
	`, order.ID, order.OwnerID, order.Subtotal.String(), order.TotalAmount.String(),
		order.PromoCodeUsed, order.Discount.String(), string(order.Status), order.CreatedAt)
	if err != nil {
		return domain.StorageError(err, "insert order")
	}

	batch := &pgx.Batch{}
	for i, item := range order.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, event_id, title, unit_price, image_url, quantity)
			VALUES ($1, $2, $3, $4, $5::DECIMAL, $6, $7)
		`, order.ID, i, item.EventID, item.Title, item.UnitPrice.String(), item.ImageURL, item.Quantity)
	}
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()
	for range order.Items {
		if _, err := br.Exec(); err != nil {
			return domain.StorageError(err, "insert order item")
		}
	}
	return nil
}

func getCart(ctx context.Context, q querier, ownerID string, forUpdate bool) (*domain.Cart, error) {
	query := `
		SELECT owner_id, items, COALESCE(promo_code, ''), discount::STRING, version, updated_at
		FROM carts WHERE owner_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		cart     domain.Cart
		items    []byte
		discount string
	)
	err := q.QueryRow(ctx, query, ownerID).Scan(&cart.OwnerID, &items, &cart.PromoCode, &discount, &cart.Version, &cart.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrNotFound, "cart of %s", ownerID)
	}
	if err != nil {
		return nil, domain.StorageError(err, "select cart")
	}

	if err := json.Unmarshal(items, &cart.Items); err != nil {
		return nil, domain.StorageError(err, "decode cart items")
	}
	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	if cart.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, domain.StorageError(err, "decode cart discount")
	}
	return &cart, nil
}

// queryOrders loads orders matching where (one positional argument) with
// their items, newest first. Rows arrive grouped by order.
func queryOrders(ctx context.Context, q querier, where string, arg any) ([]domain.Order, error) {
	rows, err := q.Query(ctx, `
		SELECT o.id, o.owner_id, o.subtotal::STRING, o.total_amount::STRING,
			COALESCE(o.promo_code_used, ''), o.discount::STRING, o.status, o.created_at,
			i.event_id, i.title, i.unit_price::STRING, COALESCE(i.image_url, ''), i.quantity
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		WHERE `+where+`
		ORDER BY o.created_at DESC, o.id, i.position
	`, arg)
	if err != nil {
		return nil, domain.StorageError(err, "select orders")
	}
	defer rows.Close()

	orders := []domain.Order{}
	var current *domain.Order
	for rows.Next() {
		var (
			id                                uuid.UUID
			o                                 domain.Order
			subtotal, total, discount, status string
			eventID, title, unitPrice, image  *string
			quantity                          *int
		)
		if err := rows.Scan(&id, &o.OwnerID, &subtotal, &total, &o.PromoCodeUsed, &discount, &status, &o.CreatedAt,
			&eventID, &title, &unitPrice, &image, &quantity); err != nil {
			return nil, domain.StorageError(err, "scan order")
		}

		if current == nil || current.ID != id {
			o.ID = id
			o.Status = domain.OrderStatus(status)
			o.Items = []domain.LineItem{}
			if o.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
				return nil, domain.StorageError(err, "decode subtotal")
			}
			if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
				return nil, domain.StorageError(err, "decode total")
			}
			if o.Discount, err = decimal.NewFromString(discount); err != nil {
				return nil, domain.StorageError(err, "decode discount")
			}
			orders = append(orders, o)
			current = &orders[len(orders)-1]
		}

		if eventID == nil {
			continue
		}
		price, err := decimal.NewFromString(*unitPrice)
		if err != nil {
			return nil, domain.StorageError(err, "decode unit price")
		}
		current.Items = append(current.Items, domain.LineItem{
			EventID:   *eventID,
			Title:     *title,
			UnitPrice: price,
			ImageURL:  *image,
			Quantity:  *quantity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError(err, "iterate orders")
	}
	return orders, nil
}
