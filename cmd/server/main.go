package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caramelapple/storefront/internal/cache"
	"github.com/caramelapple/storefront/internal/config"
	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/handler"
	"github.com/caramelapple/storefront/internal/images"
	"github.com/caramelapple/storefront/internal/invoice"
	"github.com/caramelapple/storefront/internal/payment"
	"github.com/caramelapple/storefront/internal/router"
	"github.com/caramelapple/storefront/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Catalog cache is optional; the storefront reads straight from
	// postgres when redis is not configured or unreachable.
	var catalogCache handler.CatalogCache
	if cfg.RedisURL != "" {
		c, err := cache.NewCatalog(ctx, cfg.RedisURL, time.Duration(cfg.CatalogCacheTTL)*time.Second)
		if err != nil {
			log.Printf("WARNING: catalog cache disabled: %v", err)
		} else {
			defer c.Close()
			catalogCache = c
			log.Println("Catalog cache enabled")
		}
	}

	var payments *payment.Gateway
	if cfg.StripeSecretKey != "" || cfg.StripeWebhookSecret != "" {
		payments = payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency, cfg.PublicBaseURL)
	} else {
		log.Println("WARNING: Stripe not configured, online payment disabled")
	}
	if cfg.StripeWebhookSecret == "" {
		log.Println("WARNING: STRIPE_WEBHOOK_SECRET not set, webhook endpoint disabled")
	}

	invoices, err := invoice.NewRenderer(invoice.NewChromeConverter(cfg.ChromeURL))
	if err != nil {
		log.Fatalf("Unable to load invoice template: %v", err)
	}

	imageStore, err := images.NewStore(cfg.ImageDir, cfg.ImageBaseURL)
	if err != nil {
		log.Printf("WARNING: image uploads disabled: %v", err)
	}

	r := router.New(cfg, queries, pool, hub, router.Integrations{
		Cache:    catalogCache,
		Payments: payments,
		Invoices: invoices,
		Images:   imageStore,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}
