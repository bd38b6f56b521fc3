package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertarktes/ticket-storefront/internal/idempotency"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

type RouterOptions struct {
	JWTSecret   string
	Limiter     Limiter
	Idempotency *idempotency.Idempotency
}

func SetupRouter(h *Handlers, logger observability.Logger, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(opts.Limiter, logger))
		r.Get("/v1/events", h.ListEvents)
		r.Get("/v1/events/{eventID}", h.GetEvent)
	})

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(opts.JWTSecret, logger))
		r.Use(RateLimitMiddleware(opts.Limiter, logger))

		r.Get("/v1/cart", h.GetCart)
		r.Post("/v1/cart/items", h.AddItem)
		r.Delete("/v1/cart/items/{eventID}", h.RemoveItem)
		r.Post("/v1/cart/promo", h.ApplyPromo)
		r.Delete("/v1/cart/promo", h.ClearPromo)
		r.With(IdempotencyMiddleware(opts.Idempotency, logger)).Post("/v1/checkout", h.Checkout)
		r.Get("/v1/orders", h.ListOrders)
		r.Get("/v1/orders/{id}", h.GetOrder)
	})

	return r
}
