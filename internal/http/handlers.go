package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/robertarktes/ticket-storefront/internal/cart"
	"github.com/robertarktes/ticket-storefront/internal/checkout"
	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Handlers struct {
	carts    *cart.Service
	checkout *checkout.Service
	catalog  domain.Catalog
	logger   observability.Logger
	checks   map[string]ReadinessCheck
}

func NewHandlers(carts *cart.Service, orders *checkout.Service, catalog domain.Catalog, logger observability.Logger, checks map[string]ReadinessCheck) *Handlers {
	return &Handlers{
		carts:    carts,
		checkout: orders,
		catalog:  catalog,
		logger:   logger,
		checks:   checks,
	}
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.catalog.Lookup(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.GetCart(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID  string `json:"event_id"`
		Quantity int    `json:"quantity"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	view, err := h.carts.AddItem(r.Context(), OwnerFromContext(r.Context()), req.EventID, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	removeAll := false
	if v := r.URL.Query().Get("all"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, h.logger, errors.Wrapf(domain.ErrInvalidInput, "all=%q is not a boolean", v))
			return
		}
		removeAll = parsed
	}

	view, err := h.carts.RemoveItem(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "eventID"), removeAll)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromoCode string `json:"promo_code"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.carts.ApplyPromoCode(r.Context(), OwnerFromContext(r.Context()), req.PromoCode)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) ClearPromo(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.ClearPromoCode(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.checkout.Checkout(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.checkout.ListOrders(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, errors.Wrap(domain.ErrInvalidInput, "invalid order id"))
		return
	}

	order, err := h.checkout.GetOrder(r.Context(), OwnerFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.logger.WithField("failed", failed).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, "malformed JSON body")
	}
	return nil
}
