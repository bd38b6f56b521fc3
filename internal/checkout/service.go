// Package checkout turns a cart into an order and owns the order history.
package checkout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/pricing"
)

const EventOrderCreated = "order.created"

type Receipt struct {
	OrderID     uuid.UUID       `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"items_count"`
}

type Service struct {
	store       domain.Store
	locker      domain.Locker
	pricing     *pricing.Engine
	logger      observability.Logger
	now         func() time.Time
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetry bounds how often a checkout that lost a write race is re-run.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		s.maxAttempts = attempts
		s.backoff = backoff
	}
}

func NewService(store domain.Store, locker domain.Locker, engine *pricing.Engine, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		locker:      locker,
		pricing:     engine,
		logger:      logger,
		now:         time.Now,
		maxAttempts: 3,
		backoff:     50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	return s
}

// Checkout creates a paid order from the owner's cart and clears the cart
// in the same unit of work. A second checkout of the same cart state sees
// an empty cart and fails with ErrEmptyCart.
func (s *Service) Checkout(ctx context.Context, ownerID string) (Receipt, error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	receipt, err := s.checkout(ctx, ownerID)

	result := "ok"
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		result = "empty_cart"
	case errors.Is(err, domain.ErrInvariantViolation):
		result = "invariant_violation"
	case err != nil:
		result = "error"
	}
	observability.CheckoutsTotal.WithLabelValues(result).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		return Receipt{}, err
	}
	span.SetAttributes(attribute.String("order.id", receipt.OrderID.String()))
	return receipt, nil
}

func (s *Service) checkout(ctx context.Context, ownerID string) (Receipt, error) {
	if ownerID == "" {
		return Receipt{}, errors.Wrap(domain.ErrInvalidInput, "owner id is required")
	}
	log := observability.FromContext(ctx, s.logger).WithField("owner_id", ownerID)

	unlock, err := s.locker.Lock(ctx, ownerID)
	if err != nil {
		return Receipt{}, errors.Wrapf(err, "lock cart of %s", ownerID)
	}
	defer unlock()

	var receipt Receipt
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		receipt, err = s.checkoutOnce(ctx, ownerID)
		if err == nil || !domain.Retryable(err) || attempt == s.maxAttempts-1 {
			break
		}
		log.WithField("attempt", attempt+1).Warn("checkout lost a write race, retrying: ", err)

		backoff := time.Duration(1<<attempt) * s.backoff
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if errors.Is(err, domain.ErrInvariantViolation) {
		log.Error("refusing checkout: ", err)
	}
	if err != nil {
		return Receipt{}, err
	}
	log.WithFields(map[string]interface{}{
		"order_id": receipt.OrderID,
		"total":    receipt.TotalAmount.String(),
	}).Info("checkout completed")
	return receipt, nil
}

func (s *Service) checkoutOnce(ctx context.Context, ownerID string) (Receipt, error) {
	var receipt Receipt
	err := s.store.WithTx(ctx, func(tx domain.Tx) error {
		c, err := tx.GetCart(ctx, ownerID)
		if errors.Is(err, domain.ErrNotFound) {
			return errors.Wrapf(domain.ErrEmptyCart, "owner %s has no cart", ownerID)
		}
		if err != nil {
			return err
		}
		if c.IsEmpty() {
			return errors.Wrapf(domain.ErrEmptyCart, "owner %s", ownerID)
		}

		subtotal := s.pricing.Subtotal(c.Items)
		if err := s.verifyDiscount(c, subtotal); err != nil {
			return err
		}
		total := s.pricing.Total(subtotal, c.Discount)

		now := s.now()
		order := domain.NewOrder(c, subtotal, total, now)
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.NewOrderCreated(order))
		if err != nil {
			return errors.Wrap(err, "marshal order event")
		}
		if err := tx.InsertOutbox(ctx, domain.OutboxMessage{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     EventOrderCreated,
			Payload:       payload,
			DedupeKey:     order.ID.String(),
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		c.Clear()
		c.UpdatedAt = now
		if err := tx.SaveCart(ctx, c); err != nil {
			return err
		}

		receipt = Receipt{
			OrderID:     order.ID,
			TotalAmount: order.TotalAmount,
			ItemCount:   order.ItemCount(),
		}
		return nil
	})
	return receipt, err
}

// verifyDiscount checks the cached discount against a fresh computation.
// The cached value is what the user last saw, so a mismatch aborts.
func (s *Service) verifyDiscount(c *domain.Cart, subtotal decimal.Decimal) error {
	expected := decimal.Zero
	if c.PromoCode != "" {
		d, ok := s.pricing.Discount(subtotal, c.PromoCode)
		if !ok {
			return errors.Wrapf(domain.ErrInvariantViolation, "cart of %s carries unknown promo code %q", c.OwnerID, c.PromoCode)
		}
		expected = d
	}
	if !expected.Equal(c.Discount) {
		return errors.Wrapf(domain.ErrInvariantViolation, "cart of %s has discount %s, pricing gives %s", c.OwnerID, c.Discount, expected)
	}
	return nil
}

// ListOrders returns the owner's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	if ownerID == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "owner id is required")
	}
	return s.store.ListOrders(ctx, ownerID)
}

// GetOrder hides orders of other owners behind ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, ownerID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OwnerID != ownerID {
		return nil, errors.Wrapf(domain.ErrNotFound, "order %s", orderID)
	}
	return order, nil
}
