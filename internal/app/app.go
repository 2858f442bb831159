// Package app wires the engine together: redis-backed session
// storage, the backend HTTP client, and the state stores, behind one
// local HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dugo220203tg/storefront/internal/cart"
	"github.com/Dugo220203tg/storefront/internal/checkout"
	"github.com/Dugo220203tg/storefront/internal/config"
	"github.com/Dugo220203tg/storefront/internal/coupon"
	"github.com/Dugo220203tg/storefront/internal/credential"
	"github.com/Dugo220203tg/storefront/internal/gateway"
	handler "github.com/Dugo220203tg/storefront/internal/handler/http"
	"github.com/Dugo220203tg/storefront/internal/session"
	"github.com/Dugo220203tg/storefront/pkg/health"
	"github.com/Dugo220203tg/storefront/pkg/httpclient"
	"github.com/Dugo220203tg/storefront/pkg/middleware"
)

// App wires together all dependencies and runs the storefront engine.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	redis      *redis.Client
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all
// dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Redis keeps the durable session blobs (credential, coupon,
	// pending checkout draft) so they survive a restart.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to redis", slog.String("addr", cfg.RedisAddr))

	storage := session.NewRedisStore(redisClient, time.Duration(cfg.SessionTTL)*time.Hour)

	// The backend client carries bounded retry plus a circuit breaker
	// so a flapping backend does not melt the session.
	client := httpclient.New(httpclient.DefaultConfig())
	breaker := httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("storefront-backend"), logger)

	// Build the dependency graph.
	creds := credential.New(breaker, storage, cfg.APIBaseURL, logger)
	gw := gateway.New(breaker, creds, cfg.APIBaseURL, logger)
	coupons := coupon.New(gw, storage, logger)
	carts := cart.New(gw, creds, coupons, logger)
	orchestrator := checkout.New(
		gw, carts, coupons, creds, storage,
		cfg.ShippingFee,
		time.Duration(cfg.CheckoutTimeout)*time.Second,
		logger,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.Register("backend", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIBaseURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(ctx, req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		return nil
	})

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.AllowedOrigins

	router := handler.NewRouter(handler.Deps{
		Credentials:    creds,
		Gateway:        gw,
		Cart:           carts,
		Coupons:        coupons,
		Checkout:       orchestrator,
		Health:         healthHandler,
		Logger:         logger,
		CORS:           corsCfg,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		redis:      redisClient,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and blocks until the context is
// canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
