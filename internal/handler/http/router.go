// Package http exposes the engine to the storefront UI as a local
// JSON API: session, cart, coupon, and checkout endpoints that all
// read from and mutate the same shared state.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dugo220203tg/storefront/internal/cart"
	"github.com/Dugo220203tg/storefront/internal/checkout"
	"github.com/Dugo220203tg/storefront/internal/coupon"
	"github.com/Dugo220203tg/storefront/internal/credential"
	"github.com/Dugo220203tg/storefront/internal/gateway"
	"github.com/Dugo220203tg/storefront/pkg/health"
	"github.com/Dugo220203tg/storefront/pkg/middleware"
)

// Deps bundles everything the router serves.
type Deps struct {
	Credentials *credential.Store
	Gateway     *gateway.Gateway
	Cart        *cart.Aggregator
	Coupons     *coupon.Engine
	Checkout    *checkout.Orchestrator
	Health      *health.Handler
	Logger      *slog.Logger

	CORS           middleware.CORSConfig
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(d.CORS))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestLogging(d.Logger))
	r.Use(middleware.PrometheusMetrics())
	if d.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(d.RateLimitRPS, d.RateLimitBurst, d.Logger))
	}

	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(d.Credentials, d.Gateway, d.Logger)
	cartHandler := NewCartHandler(d.Cart, d.Logger)
	couponHandler := NewCouponHandler(d.Coupons, d.Logger)
	checkoutHandler := NewCheckoutHandler(d.Checkout, d.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/session", authHandler.Session)
			r.Post("/register", authHandler.Register)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
			r.Post("/change-password", authHandler.ChangePassword)
			r.Get("/account", authHandler.Account)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Get("/summary", cartHandler.Summary)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{productId}/increase", cartHandler.Increase)
			r.Put("/items/{productId}/decrease", cartHandler.Decrease)
			r.Delete("/items/{productId}", cartHandler.Remove)
		})

		r.Route("/coupon", func(r chi.Router) {
			r.Get("/", couponHandler.Get)
			r.Post("/", couponHandler.Apply)
			r.Delete("/", couponHandler.Clear)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.Submit)
			r.Get("/state", checkoutHandler.Status)
			r.Delete("/", checkoutHandler.Reset)
			r.Get("/{method}/callback", checkoutHandler.Callback)
		})
	})

	return r
}
