package http

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	JWTSecret          []byte
	SessionCookie      string
	CheckoutRateRPS    int
	CheckoutRateBurst  int
	TrustedProxies     []netip.Prefix // peers allowed to set X-Forwarded-For
}

type Handlers struct {
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Products *ProductHandler
	Cart     *CartHandler
	Account  *AccountHandler
	Content  *ContentHandler
	Admin    *AdminSessionHandler
	Sessions SessionStore
}

func NewRouter(cfg RouterConfig, h Handlers, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(ClientIP(cfg.TrustedProxies))
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(MaxBodySize(cfg.MaxRequestBodySize))

	requireAdmin := func(c domain.Capability) func(http.Handler) http.Handler {
		return RequireCapability(h.Sessions, cfg.SessionCookie, c, log)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", h.Checkout.Webhook)

		r.With(RateLimit(cfg.CheckoutRateRPS, cfg.CheckoutRateBurst)).
			Post("/checkout", h.Checkout.CreateSession)

		r.Get("/stores", h.Content.ListStores)
		r.Get("/posts", h.Content.ListPosts)
		r.Get("/posts/{slug}", h.Content.GetPost)

		r.Route("/products", func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Get("/", h.Products.List)
			r.Get("/{product_id}", h.Products.Get)
		})

		// customer routes
		r.Group(func(r chi.Router) {
			r.Use(CustomerAuth(cfg.JWTSecret))
			r.Post("/checkout/success", h.Checkout.Success)
			r.Get("/orders", h.Orders.ListOrders)
			r.Get("/orders/{order_id}", h.Orders.GetOrder)
			r.Get("/account/loyalty", h.Account.Loyalty)
			r.Get("/cart", h.Cart.GetCart)
			r.Post("/cart/actions", h.Cart.Dispatch)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sessions", h.Admin.Login)
			r.Delete("/sessions", h.Admin.Logout)
			r.With(requireAdmin(domain.CapViewDashboard)).Get("/me", h.Admin.Me)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin(domain.CapManageOrders))
				r.Get("/orders", h.Orders.AdminListOrders)
				r.Get("/orders/{order_id}", h.Orders.AdminGetOrder)
				r.Patch("/orders/{order_id}/status", h.Orders.UpdateStatus)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin(domain.CapManageProducts))
				r.Post("/products", h.Products.Create)
				r.Put("/products/{product_id}/variants/{variant_id}", h.Products.UpsertVariant)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin(domain.CapManageStores))
				r.Get("/stores", h.Content.AdminListStores)
				r.Post("/stores", h.Content.CreateStore)
				r.Put("/stores/{store_id}", h.Content.UpdateStore)
				r.Delete("/stores/{store_id}", h.Content.DeleteStore)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin(domain.CapManagePosts))
				r.Get("/posts", h.Content.AdminListPosts)
				r.Post("/posts", h.Content.CreatePost)
				r.Get("/posts/{post_id}", h.Content.AdminGetPost)
				r.Put("/posts/{post_id}", h.Content.UpdatePost)
				r.Delete("/posts/{post_id}", h.Content.DeletePost)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront-http")
}
