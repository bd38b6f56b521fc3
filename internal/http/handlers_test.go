package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/ticket-storefront/internal/adapters/memory"
	"github.com/robertarktes/ticket-storefront/internal/cart"
	"github.com/robertarktes/ticket-storefront/internal/checkout"
	"github.com/robertarktes/ticket-storefront/internal/domain"
	storehttp "github.com/robertarktes/ticket-storefront/internal/http"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/pricing"
)

type testAPI struct {
	router *chi.Mux
	store  *memory.Store
}

func newTestAPI(t *testing.T, opts storehttp.RouterOptions) *testAPI {
	t.Helper()
	logger := observability.NewNopLogger()
	store := memory.NewStore()
	catalog := memory.NewCatalog(domain.SampleEvents()...)
	locker := memory.NewLocker()
	engine := pricing.Default()

	carts := cart.NewService(store, catalog, locker, engine, logger)
	orders := checkout.NewService(store, locker, engine, logger)
	checks := map[string]storehttp.ReadinessCheck{
		"store": func(context.Context) error { return nil },
	}
	h := storehttp.NewHandlers(carts, orders, catalog, logger, checks)
	return &testAPI{router: storehttp.SetupRouter(h, logger, opts), store: store}
}

func (a *testAPI) do(t *testing.T, method, path, owner string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set(storehttp.HeaderUserID, owner)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCheckoutFlow(t *testing.T) {
	api := newTestAPI(t, storehttp.RouterOptions{})

	rec := api.do(t, http.MethodPost, "/v1/cart/items", "u1", map[string]interface{}{"event_id": "E1001", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPost, "/v1/cart/items", "u1", map[string]interface{}{"event_id": "E1001", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody(t, rec)
	assert.Equal(t, "11400", view["subtotal"])
	assert.EqualValues(t, 3, view["total_count"])

	rec = api.do(t, http.MethodPost, "/v1/cart/promo", "u1", map[string]string{"promo_code": "final"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	promo := decodeBody(t, rec)
	assert.Equal(t, "1140", promo["discount"])
	assert.Equal(t, "10260", promo["new_total"])

	rec = api.do(t, http.MethodPost, "/v1/checkout", "u1", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeBody(t, rec)
	assert.Equal(t, "10260", receipt["total_amount"])
	assert.EqualValues(t, 1, receipt["items_count"])
	orderID := receipt["order_id"].(string)

	rec = api.do(t, http.MethodGet, "/v1/cart", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBody(t, rec)
	assert.Empty(t, view["items"])
	assert.Nil(t, view["promo_code"])

	rec = api.do(t, http.MethodGet, "/v1/orders", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, orderID, orders[0]["id"])

	rec = api.do(t, http.MethodGet, "/v1/orders/"+orderID, "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/v1/orders/"+orderID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodGet, "/v1/orders/not-a-uuid", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorCodes(t *testing.T) {
	api := newTestAPI(t, storehttp.RouterOptions{})
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/v1/cart/items", "u1",
		map[string]interface{}{"event_id": "E1002", "quantity": 1}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		owner  string
		body   interface{}
		status int
		code   string
	}{
		{"no identity", http.MethodGet, "/v1/cart", "", nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"unknown event", http.MethodPost, "/v1/cart/items", "u1", map[string]interface{}{"event_id": "E404", "quantity": 1}, http.StatusNotFound, "NOT_FOUND"},
		{"zero quantity", http.MethodPost, "/v1/cart/items", "u1", map[string]interface{}{"event_id": "E1001", "quantity": 0}, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed body", http.MethodPost, "/v1/cart/items", "u1", "not an object", http.StatusBadRequest, "INVALID_INPUT"},
		{"remove missing line", http.MethodDelete, "/v1/cart/items/E1003", "u1", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad all flag", http.MethodDelete, "/v1/cart/items/E1002?all=maybe", "u1", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"promo without cart", http.MethodPost, "/v1/cart/promo", "u9", map[string]string{"promo_code": "FINAL"}, http.StatusNotFound, "NOT_FOUND"},
		{"empty checkout", http.MethodPost, "/v1/checkout", "u9", nil, http.StatusBadRequest, "EMPTY_CART"},
		{"unknown event page", http.MethodGet, "/v1/events/E404", "", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.owner, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestInvalidPromoClearsExistingPromo(t *testing.T) {
	api := newTestAPI(t, storehttp.RouterOptions{})
	api.do(t, http.MethodPost, "/v1/cart/items", "u1", map[string]interface{}{"event_id": "E1002", "quantity": 2})
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/v1/cart/promo", "u1", map[string]string{"promo_code": "FINAL"}).Code)

	rec := api.do(t, http.MethodPost, "/v1/cart/promo", "u1", map[string]string{"promo_code": "BOGUS"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PROMO_CODE", decodeBody(t, rec)["error"])

	view := decodeBody(t, api.do(t, http.MethodGet, "/v1/cart", "u1", nil))
	assert.Nil(t, view["promo_code"])
	assert.Equal(t, "0", view["discount"])
	assert.Equal(t, "5000", view["total"])
}

func TestRemoveItemAndClearPromo(t *testing.T) {
	api := newTestAPI(t, storehttp.RouterOptions{})
	api.do(t, http.MethodPost, "/v1/cart/items", "u1", map[string]interface{}{"event_id": "E1003", "quantity": 3})
	api.do(t, http.MethodPost, "/v1/cart/promo", "u1", map[string]string{"promo_code": "FINAL"})

	view := decodeBody(t, api.do(t, http.MethodDelete, "/v1/cart/items/E1003", "u1", nil))
	assert.EqualValues(t, 2, view["total_count"])
	assert.Equal(t, "160", view["discount"])

	view = decodeBody(t, api.do(t, http.MethodDelete, "/v1/cart/promo", "u1", nil))
	assert.Equal(t, "0", view["discount"])
	assert.Equal(t, "1600", view["total"])

	view = decodeBody(t, api.do(t, http.MethodDelete, "/v1/cart/items/E1003?all=true", "u1", nil))
	assert.EqualValues(t, 0, view["total_count"])
}

func TestEvents(t *testing.T) {
	api := newTestAPI(t, storehttp.RouterOptions{})

	rec := api.do(t, http.MethodGet, "/v1/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 3)
	assert.Equal(t, "E1002", events[0]["event_id"])

	rec = api.do(t, http.MethodGet, "/v1/events/E1001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3800", decodeBody(t, rec)["base_price"])
}

func TestOps(t *testing.T) {
	api := newTestAPI(t, storehttp.RouterOptions{})
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/v1/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/v1/readyz", "", nil).Code)

	rec := api.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_requests_total")
}
