package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/qr-table-ordering/internal/config"
	"github.com/tendant/qr-table-ordering/internal/httputil"
)

// Limiter groups returned by CreateRateLimiters.
const (
	LimitPublic     = "public"
	LimitOrders     = "orders"
	LimitAdminLogin = "admin_login"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// TrustProxy keys clients by X-Forwarded-For / X-Real-IP instead of the
	// connection address.
	TrustProxy bool
	Logger     *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
// These limits sit in front of the session-aware order limiter and only
// protect the service from request floods.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := httprate.KeyByIP
	if cfg.TrustProxy {
		keyFunc = httprate.KeyByRealIP
	}

	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters creates rate limiting middleware functions based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, trustProxy bool, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimitPublic:     noOp,
			LimitOrders:     noOp,
			LimitAdminLogin: noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		LimitPublic: RateLimit(RateLimitConfig{
			Requests:   cfg.PublicRequestsPerMinute,
			Window:     time.Duration(cfg.PublicWindowMinutes) * time.Minute,
			TrustProxy: trustProxy,
			Logger:     logger,
		}),
		LimitOrders: RateLimit(RateLimitConfig{
			Requests:   cfg.OrderRequestsPerMinute,
			Window:     time.Duration(cfg.OrderWindowMinutes) * time.Minute,
			TrustProxy: trustProxy,
			Logger:     logger,
		}),
		LimitAdminLogin: RateLimit(RateLimitConfig{
			Requests:   cfg.AdminLoginRequestsPerWindow,
			Window:     time.Duration(cfg.AdminLoginWindowMinutes) * time.Minute,
			TrustProxy: trustProxy,
			Logger:     logger,
		}),
	}
}
