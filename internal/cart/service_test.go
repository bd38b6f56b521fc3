package cart_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/ticket-storefront/internal/adapters/memory"
	"github.com/robertarktes/ticket-storefront/internal/cart"
	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/pricing"
)

type fixture struct {
	store   *memory.Store
	catalog *memory.Catalog
	svc     *cart.Service
}

func newFixture() fixture {
	store := memory.NewStore()
	catalog := memory.NewCatalog(domain.SampleEvents()...)
	svc := cart.NewService(store, catalog, memory.NewLocker(), pricing.Default(), observability.NewNopLogger())
	return fixture{store: store, catalog: catalog, svc: svc}
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestGetCart_MissingCartIsEmpty(t *testing.T) {
	f := newFixture()
	v, err := f.svc.GetCart(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, v.Items)
	assert.NotNil(t, v.Items)
	assert.Equal(t, 0, v.TotalCount)
	assert.True(t, v.Total.IsZero())
}

func TestAddItem_CreatesCartAndAccumulates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1001", 2)
	require.NoError(t, err)
	v, err := f.svc.AddItem(ctx, "user-1", "E1001", 1)
	require.NoError(t, err)

	require.Len(t, v.Items, 1)
	assert.Equal(t, 3, v.Items[0].Quantity)
	assert.True(t, v.Subtotal.Equal(dec(11400)))
	assert.Equal(t, 3, v.TotalCount)

	stored, err := f.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestAddItem_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name     string
		owner    string
		eventID  string
		quantity int
		want     error
	}{
		{name: "zero quantity", owner: "user-1", eventID: "E1001", quantity: 0, want: domain.ErrInvalidInput},
		{name: "negative quantity", owner: "user-1", eventID: "E1001", quantity: -1, want: domain.ErrInvalidInput},
		{name: "missing event id", owner: "user-1", quantity: 1, want: domain.ErrInvalidInput},
		{name: "missing owner", eventID: "E1001", quantity: 1, want: domain.ErrInvalidInput},
		{name: "unknown event", owner: "user-1", eventID: "E404", quantity: 1, want: domain.ErrNotFound},
		{name: "above line max", owner: "user-1", eventID: "E1001", quantity: domain.MaxLineQuantity + 1, want: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddItem(ctx, tt.owner, tt.eventID, tt.quantity)
			assert.True(t, errors.Is(err, tt.want), "%v", err)
		})
	}

	_, err := f.store.GetCart(ctx, "user-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "no cart may be created by a failed add")
}

func TestAddItem_OverflowingLineIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1001", domain.MaxLineQuantity)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "user-1", "E1001", 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "%v", err)
	_, err = f.svc.AddItem(ctx, "user-1", "E1001", math.MaxInt)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "%v", err)

	v, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, domain.MaxLineQuantity, v.Items[0].Quantity)
	assert.True(t, v.Subtotal.Equal(dec(3800).Mul(decimal.NewFromInt(domain.MaxLineQuantity))))
	assert.True(t, v.Subtotal.IsPositive())
}

func TestAddItem_PriceSnapshot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1001", 1)
	require.NoError(t, err)

	ev, err := f.catalog.Lookup(ctx, "E1001")
	require.NoError(t, err)
	ev.BasePrice = dec(9999)
	f.catalog.Put(*ev)

	v, err := f.svc.AddItem(ctx, "user-1", "E1001", 1)
	require.NoError(t, err)
	assert.True(t, v.Items[0].UnitPrice.Equal(dec(3800)))
	assert.True(t, v.Subtotal.Equal(dec(7600)))
}

func TestRemoveItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.RemoveItem(ctx, "user-1", "E1001", false)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "no cart yet")

	_, err = f.svc.AddItem(ctx, "user-1", "E1001", 3)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "user-1", "E1002", 1)
	require.NoError(t, err)

	v, err := f.svc.RemoveItem(ctx, "user-1", "E1001", false)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Items[0].Quantity)

	v, err = f.svc.RemoveItem(ctx, "user-1", "E1002", false)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)

	v, err = f.svc.RemoveItem(ctx, "user-1", "E1001", true)
	require.NoError(t, err)
	assert.Empty(t, v.Items)

	_, err = f.svc.RemoveItem(ctx, "user-1", "E1001", true)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "item already gone")
}

func TestApplyPromoCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.ApplyPromoCode(ctx, "user-1", "FINAL")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "no cart yet")

	_, err = f.svc.AddItem(ctx, "user-1", "E1001", 3)
	require.NoError(t, err)

	res, err := f.svc.ApplyPromoCode(ctx, "user-1", "final")
	require.NoError(t, err)
	assert.True(t, res.Discount.Equal(dec(1140)), res.Discount.String())
	assert.True(t, res.Total.Equal(dec(10260)), res.Total.String())

	v, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "FINAL", v.PromoCode)
}

func TestApplyPromoCode_InvalidClearsPriorDiscount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1001", 2)
	require.NoError(t, err)
	_, err = f.svc.ApplyPromoCode(ctx, "user-1", "FINAL")
	require.NoError(t, err)

	_, err = f.svc.ApplyPromoCode(ctx, "user-1", "HALFOFF")
	assert.True(t, errors.Is(err, domain.ErrInvalidPromoCode), "%v", err)

	stored, err := f.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, stored.PromoCode)
	assert.True(t, stored.Discount.IsZero())
}

func TestApplyPromoCode_BlankCodeMutatesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1001", 2)
	require.NoError(t, err)
	_, err = f.svc.ApplyPromoCode(ctx, "user-1", "FINAL")
	require.NoError(t, err)

	_, err = f.svc.ApplyPromoCode(ctx, "user-1", "  ")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	stored, err := f.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "FINAL", stored.PromoCode)
}

func TestDiscountFollowsItemChanges(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1001", 2)
	require.NoError(t, err)
	_, err = f.svc.ApplyPromoCode(ctx, "user-1", "FINAL")
	require.NoError(t, err)

	v, err := f.svc.AddItem(ctx, "user-1", "E1001", 1)
	require.NoError(t, err)
	assert.True(t, v.Discount.Equal(dec(1140)), v.Discount.String())
	assert.True(t, v.Total.Equal(dec(10260)), v.Total.String())

	v, err = f.svc.RemoveItem(ctx, "user-1", "E1001", true)
	require.NoError(t, err)
	assert.True(t, v.Discount.IsZero())
	assert.True(t, v.Total.IsZero())
}

func TestClearPromoCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1003", 1)
	require.NoError(t, err)
	_, err = f.svc.ApplyPromoCode(ctx, "user-1", "FINAL")
	require.NoError(t, err)

	v, err := f.svc.ClearPromoCode(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, v.PromoCode)
	assert.True(t, v.Total.Equal(dec(800)))
}

func TestConcurrentAddsOnOneOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddItem(ctx, "user-1", "E1002", 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 50, v.Items[0].Quantity)
}

func TestStorageFailureLeavesCartUntouched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "E1001", 1)
	require.NoError(t, err)

	f.store.FailNextCommit(errors.New("connection reset"))
	_, err = f.svc.AddItem(ctx, "user-1", "E1001", 5)
	assert.True(t, errors.Is(err, domain.ErrStorageFailure), "%v", err)

	v, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Items[0].Quantity)
}
