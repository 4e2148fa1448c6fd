package router

import (
	"log"
	"net/http"

	"github.com/caramelapple/storefront/internal/config"
	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/caramelapple/storefront/internal/handler"
	"github.com/caramelapple/storefront/internal/images"
	"github.com/caramelapple/storefront/internal/invoice"
	mw "github.com/caramelapple/storefront/internal/middleware"
	"github.com/caramelapple/storefront/internal/payment"
	"github.com/caramelapple/storefront/internal/service"
	"github.com/caramelapple/storefront/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integrations carries the optional external collaborators built in main.
// A nil Cache disables catalog caching; nil Images disables uploads.
type Integrations struct {
	Cache    handler.CatalogCache
	Payments *payment.Gateway
	Invoices *invoice.Renderer
	Images   *images.Store
}

// New creates a Chi router with all application routes wired up.
// Storefront routes are public; everything under /admin requires a staff
// token, and staff management requires ADMIN.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, ext Integrations) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Services
	newCheckoutStore := func(db database.DBTX) service.CheckoutStore {
		return database.New(db)
	}
	checkoutService := service.NewCheckoutService(pool, newCheckoutStore, cfg.DeliveryFeeCents, hub)

	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, cfg.DeliveryFeeCents, hub)

	newCatalogStore := func(db database.DBTX) service.CatalogStore {
		return database.New(db)
	}
	catalogService := service.NewCatalogService(pool, newCatalogStore)

	newDirectoryStore := func(db database.DBTX) service.DirectoryStore {
		return database.New(db)
	}
	directoryService := service.NewDirectoryService(pool, newDirectoryStore)

	// Handlers
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	productHandler := handler.NewProductHandler(queries, catalogService, ext.Cache)
	scheduleHandler := handler.NewScheduleHandler(queries)
	invoiceHandler := handler.NewInvoiceHandler(queries, ext.Invoices, cfg.JWTSecret, cfg.PublicBaseURL)
	storeHandler := handler.NewStoreHandler(queries, directoryService)

	var imageHandler *handler.ImageHandler
	if ext.Images != nil {
		imageHandler = handler.NewImageHandler(ext.Images, queries, ext.Cache)
	}

	var sessions handler.PaymentSessions
	if ext.Payments != nil {
		sessions = ext.Payments
	}
	checkoutHandler := handler.NewCheckoutHandler(checkoutService, sessions)

	// Storefront (public)
	authHandler.RegisterRoutes(r)
	productHandler.RegisterRoutes(r)
	r.Route("/schedule", scheduleHandler.RegisterPublicRoutes)
	r.Route("/checkout", checkoutHandler.RegisterRoutes)
	r.Route("/invoices", invoiceHandler.RegisterPublicRoutes)
	r.Route("/stores", storeHandler.RegisterPublicRoutes)

	if ext.Images != nil {
		r.Handle("/images/*", http.StripPrefix("/images/", ext.Images.Handler()))
	}

	// Without a signing secret nothing could be verified, so the endpoint
	// is not exposed at all.
	if ext.Payments != nil && cfg.StripeWebhookSecret != "" {
		webhookHandler := handler.NewWebhookHandler(ext.Payments, checkoutService)
		r.Route("/webhooks/stripe", webhookHandler.RegisterRoutes)
	}

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Back office
	r.Route("/admin", func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireStaff)

		r.Route("/account", authHandler.RegisterAccountRoutes)
		r.Route("/products", func(r chi.Router) {
			productHandler.RegisterAdminRoutes(r)
			if imageHandler != nil {
				imageHandler.RegisterProductRoutes(r)
			}
		})
		if imageHandler != nil {
			r.Route("/images", imageHandler.RegisterAdminRoutes)
		}
		r.Route("/schedule", scheduleHandler.RegisterAdminRoutes)

		customerHandler := handler.NewCustomerHandler(queries)
		r.Route("/customers", customerHandler.RegisterRoutes)

		orderHandler := handler.NewOrderHandler(queries, orderService, checkoutService, hub)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			invoiceHandler.RegisterAdminRoutes(r)
		})

		// Staff management and the store directory (ADMIN only)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			userHandler := handler.NewUserHandler(queries)
			r.Route("/users", userHandler.RegisterRoutes)
			r.Route("/stores", storeHandler.RegisterAdminRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
