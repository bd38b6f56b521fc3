// Package cart owns the per-owner shopping cart: adding and removing
// tickets and applying the promo code. Every mutation holds the owner's
// lock and is saved with a version compare-and-swap.
package cart

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/pricing"
)

// View is a cart together with its computed totals.
type View struct {
	OwnerID    string            `json:"owner_id"`
	Items      []domain.LineItem `json:"items"`
	PromoCode  string            `json:"promo_code,omitempty"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Discount   decimal.Decimal   `json:"discount"`
	Total      decimal.Decimal   `json:"total"`
	TotalCount int               `json:"total_count"`
}

type PromoResult struct {
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"new_total"`
}

type Service struct {
	store   domain.Store
	catalog domain.Catalog
	locker  domain.Locker
	pricing *pricing.Engine
	logger  observability.Logger
	now     func() time.Time
}

func NewService(store domain.Store, catalog domain.Catalog, locker domain.Locker, engine *pricing.Engine, logger observability.Logger) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		locker:  locker,
		pricing: engine,
		logger:  logger,
		now:     time.Now,
	}
}

// GetCart never reports a missing cart: an owner without one gets an
// empty view.
func (s *Service) GetCart(ctx context.Context, ownerID string) (View, error) {
	if ownerID == "" {
		return View{}, errors.Wrap(domain.ErrInvalidInput, "owner id is required")
	}
	c, err := s.store.GetCart(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.view(domain.NewCart(ownerID)), nil
	}
	if err != nil {
		return View{}, err
	}
	return s.view(c), nil
}

func (s *Service) AddItem(ctx context.Context, ownerID, eventID string, quantity int) (View, error) {
	if ownerID == "" || eventID == "" {
		return View{}, errors.Wrap(domain.ErrInvalidInput, "owner id and event id are required")
	}
	if quantity <= 0 || quantity > domain.MaxLineQuantity {
		return View{}, errors.Wrapf(domain.ErrInvalidInput, "quantity must be in 1..%d, got %d", domain.MaxLineQuantity, quantity)
	}

	ev, err := s.catalog.Lookup(ctx, eventID)
	if err != nil {
		return View{}, err
	}

	c, err := s.mutate(ctx, ownerID, "add_item", true, func(c *domain.Cart) error {
		return c.AddItem(*ev, quantity)
	})
	if err != nil {
		return View{}, err
	}
	return s.view(c), nil
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, eventID string, removeAll bool) (View, error) {
	if ownerID == "" || eventID == "" {
		return View{}, errors.Wrap(domain.ErrInvalidInput, "owner id and event id are required")
	}
	c, err := s.mutate(ctx, ownerID, "remove_item", false, func(c *domain.Cart) error {
		return c.RemoveItem(eventID, removeAll)
	})
	if err != nil {
		return View{}, err
	}
	return s.view(c), nil
}

// ApplyPromoCode sets the promo on a match. On a mismatch it still wipes
// any previously applied promo and then fails with ErrInvalidPromoCode.
func (s *Service) ApplyPromoCode(ctx context.Context, ownerID, code string) (PromoResult, error) {
	if ownerID == "" || strings.TrimSpace(code) == "" {
		return PromoResult{}, errors.Wrap(domain.ErrInvalidInput, "owner id and promo code are required")
	}

	invalid := false
	c, err := s.mutate(ctx, ownerID, "apply_promo", false, func(c *domain.Cart) error {
		if !s.pricing.Recognizes(code) {
			c.ClearPromo()
			invalid = true
			return nil
		}
		c.PromoCode = s.pricing.Code()
		return nil
	})
	if err != nil {
		return PromoResult{}, err
	}
	if invalid {
		observability.FromContext(ctx, s.logger).WithField("owner_id", ownerID).Info("promo code rejected, discount cleared")
		return PromoResult{}, errors.Wrapf(domain.ErrInvalidPromoCode, "code %q", code)
	}

	subtotal := s.pricing.Subtotal(c.Items)
	return PromoResult{
		Discount: c.Discount,
		Total:    s.pricing.Total(subtotal, c.Discount),
	}, nil
}

func (s *Service) ClearPromoCode(ctx context.Context, ownerID string) (View, error) {
	if ownerID == "" {
		return View{}, errors.Wrap(domain.ErrInvalidInput, "owner id is required")
	}
	c, err := s.mutate(ctx, ownerID, "clear_promo", false, func(c *domain.Cart) error {
		c.ClearPromo()
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.view(c), nil
}

// mutate loads the owner's cart under the owner lock, applies fn, reprices
// and saves it in one unit of work. With create set a missing cart starts
// out empty; otherwise it is ErrNotFound.
func (s *Service) mutate(ctx context.Context, ownerID, op string, create bool, fn func(c *domain.Cart) error) (*domain.Cart, error) {
	unlock, err := s.locker.Lock(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "lock cart of %s", ownerID)
	}
	defer unlock()

	var updated *domain.Cart
	err = s.store.WithTx(ctx, func(tx domain.Tx) error {
		c, err := tx.GetCart(ctx, ownerID)
		if errors.Is(err, domain.ErrNotFound) && create {
			c = domain.NewCart(ownerID)
		} else if err != nil {
			return err
		}

		if err := fn(c); err != nil {
			return err
		}
		c.Reprice(s.pricing)
		c.UpdatedAt = s.now()

		if err := tx.SaveCart(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	observability.CartMutations.WithLabelValues(op, observability.ResultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) view(c *domain.Cart) View {
	subtotal := s.pricing.Subtotal(c.Items)
	items := c.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	return View{
		OwnerID:    c.OwnerID,
		Items:      items,
		PromoCode:  c.PromoCode,
		Subtotal:   subtotal,
		Discount:   c.Discount,
		Total:      s.pricing.Total(subtotal, c.Discount),
		TotalCount: c.TotalCount(),
	}
}
