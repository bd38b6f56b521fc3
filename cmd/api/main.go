package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/ticket-storefront/internal/cart"
	"github.com/robertarktes/ticket-storefront/internal/checkout"
	"github.com/robertarktes/ticket-storefront/internal/config"
	httphandler "github.com/robertarktes/ticket-storefront/internal/http"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "storefront-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	engine, err := pricing.NewEngine(cfg.PromoCode, cfg.PromoRate)
	if err != nil {
		log.Fatalf("invalid promo configuration: %v", err)
	}

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build dependencies: %v", err)
	}
	defer d.close()

	carts := cart.NewService(d.store, d.catalog, d.locker, engine, logger)
	orders := checkout.NewService(d.store, d.locker, engine, logger)
	handlers := httphandler.NewHandlers(carts, orders, d.catalog, logger, d.checks)

	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterOptions{
		JWTSecret:   cfg.JWTSecret,
		Limiter:     d.limiter,
		Idempotency: d.idemp,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(map[string]interface{}{
			"addr":    cfg.HTTPAddr,
			"storage": cfg.StorageDriver,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error: ", err)
		return
	}
	logger.Info("Server exiting")
}
