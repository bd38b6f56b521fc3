// Package memory holds in-process implementations of the storage, locking
// and catalog ports. They back the memory storage driver and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/ticket-storefront/internal/domain"
)

// Store keeps committed state behind one RWMutex that is only held while
// reading or committing. Transactions buffer their writes and validate cart
// versions at commit, so concurrent units of work on one cart race
// optimistically and exactly one of them commits.
type Store struct {
	mu        sync.RWMutex
	carts     map[string]domain.Cart
	orders    []domain.Order
	outbox    []domain.OutboxMessage
	failNext  error
	commitHit func()
}

func NewStore() *Store {
	return &Store{carts: make(map[string]domain.Cart)}
}

// FailNextCommit makes the next commit return err without applying writes.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// BeforeCommit registers a hook run right before a commit takes the lock.
func (s *Store) BeforeCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHit = fn
}

func (s *Store) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[ownerID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "cart of %s", ownerID)
	}
	return c.Clone(), nil
}

func (s *Store) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			o.Items = domain.CloneItems(o.Items)
			return &o, nil
		}
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "order %s", orderID)
}

func (s *Store) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := []domain.Order{}
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		if o.OwnerID != ownerID {
			continue
		}
		o.Items = domain.CloneItems(o.Items)
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Store) GetUnpublishedOutbox(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OutboxMessage
	for _, m := range s.outbox {
		if m.PublishedAt != nil {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			at := publishedAt
			s.outbox[i].PublishedAt = &at
			return nil
		}
	}
	return errors.Wrapf(domain.ErrNotFound, "outbox message %s", id)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx := &memTx{store: s, carts: make(map[string]pendingCart)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.RLock()
	hook := s.commitHit
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return domain.StorageError(err, "commit")
	}
	for owner, p := range tx.carts {
		if current := s.carts[owner].Version; current != p.expected {
			return errors.Wrapf(domain.ErrConflict, "cart of %s moved from version %d to %d", owner, p.expected, current)
		}
	}
	for owner, p := range tx.carts {
		s.carts[owner] = p.cart
	}
	s.orders = append(s.orders, tx.orders...)
	s.outbox = append(s.outbox, tx.outbox...)
	return nil
}

type pendingCart struct {
	cart     domain.Cart
	expected int64
}

type memTx struct {
	store  *Store
	carts  map[string]pendingCart
	orders []domain.Order
	outbox []domain.OutboxMessage
}

func (t *memTx) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if p, ok := t.carts[ownerID]; ok {
		return p.cart.Clone(), nil
	}
	return t.store.GetCart(ctx, ownerID)
}

func (t *memTx) SaveCart(ctx context.Context, cart *domain.Cart) error {
	expected := cart.Version
	if p, ok := t.carts[cart.OwnerID]; ok {
		if p.cart.Version != expected {
			return errors.Wrapf(domain.ErrConflict, "cart of %s", cart.OwnerID)
		}
		expected = p.expected
	} else {
		t.store.mu.RLock()
		current := t.store.carts[cart.OwnerID].Version
		t.store.mu.RUnlock()
		if current != expected {
			return errors.Wrapf(domain.ErrConflict, "cart of %s moved from version %d to %d", cart.OwnerID, expected, current)
		}
	}
	cart.Version++
	t.carts[cart.OwnerID] = pendingCart{cart: *cart.Clone(), expected: expected}
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	o := *order
	o.Items = domain.CloneItems(order.Items)
	t.orders = append(t.orders, o)
	return nil
}

func (t *memTx) InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	t.outbox = append(t.outbox, msg)
	return nil
}
