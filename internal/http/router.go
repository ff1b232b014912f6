package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/qr-table-ordering/internal/config"
	"github.com/tendant/qr-table-ordering/internal/http/features/admin"
	"github.com/tendant/qr-table-ordering/internal/http/features/order"
	"github.com/tendant/qr-table-ordering/internal/http/features/session"
	"github.com/tendant/qr-table-ordering/internal/http/middleware"
	"github.com/tendant/qr-table-ordering/internal/httputil"
	"github.com/tendant/qr-table-ordering/pkg/adminauth"
	"github.com/tendant/qr-table-ordering/pkg/ordering"
	"github.com/tendant/qr-table-ordering/pkg/tablesession"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger            *slog.Logger
	Validator         *tablesession.Validator
	Console           *tablesession.Console
	OrderService      *ordering.Service
	AdminAuth         *adminauth.Service
	RateLimitConfig   config.RateLimitConfig
	SecurityHeaders   config.SecurityHeadersConfig
	Validation        config.ValidationConfig
	TrustProxyHeaders bool
	CookieSecure      bool // Whether to use Secure flag on cookies (should be true for HTTPS)
	// HealthCheck reports store reachability on /health. Optional.
	HealthCheck func(ctx context.Context) error
	// MetricsHandler serves /metrics. Defaults to the Prometheus default registry.
	MetricsHandler http.Handler
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.HealthCheck(ctx); err != nil {
				cfg.Logger.Warn("health check failed", "error", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	metrics := cfg.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	// Create rate limiters for different endpoint types
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.TrustProxyHeaders, cfg.Logger)

	// Register table session routes
	sessionHandler := session.NewHandler(cfg.Logger, cfg.Validator, cfg.OrderService, cfg.TrustProxyHeaders)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters[middleware.LimitPublic])
		sessionHandler.RegisterRoutes(r)
	})

	// Register order routes
	orderHandler := order.NewHandler(cfg.Logger, cfg.OrderService, cfg.TrustProxyHeaders)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters[middleware.LimitOrders])
		orderHandler.RegisterRoutes(r)
	})

	// Register admin routes
	adminHandler := admin.NewHandler(cfg.Logger, cfg.AdminAuth, cfg.Console, cfg.Validator, cfg.CookieSecure)
	adminHandler.RegisterRoutes(r, middleware.AdminAuth(cfg.AdminAuth), rateLimiters[middleware.LimitAdminLogin])

	return r
}
