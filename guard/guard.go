// Package guard embeds the table session guard in another service.
//
// Basic usage with an in-process store:
//
//	g, err := guard.New(ctx, guard.Config{
//	    JWTSecret: os.Getenv("JWT_SECRET"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", g.Router())
//
// With a document database:
//
//	db, _ := repository.NewDB(ctx, repository.Config{URI: "mongodb://localhost:27017", Database: "qr_ordering"})
//	g, err := guard.New(ctx, guard.Config{DB: db, JWTSecret: secret})
//
// Protecting your own session-scoped routes:
//
//	r.With(g.SessionMiddleware("sessionId")).Get("/menu/{sessionId}", menuHandler)
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/qr-table-ordering/internal/config"
	httpserver "github.com/tendant/qr-table-ordering/internal/http"
	"github.com/tendant/qr-table-ordering/internal/http/features/common"
	"github.com/tendant/qr-table-ordering/pkg/adminauth"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/ordering"
	"github.com/tendant/qr-table-ordering/pkg/ratelimit"
	"github.com/tendant/qr-table-ordering/pkg/repository"
	"github.com/tendant/qr-table-ordering/pkg/repository/memory"
	"github.com/tendant/qr-table-ordering/pkg/tablesession"
)

// Config holds the configuration for an embedded guard.
type Config struct {
	// DB is a connected document database. When nil an in-process store is
	// used and all state is lost on restart.
	DB *repository.DB

	// JWTSecret signs admin tokens (required).
	JWTSecret string

	// JWTIssuer is the issuer claim in admin tokens (default: "qr-ordering").
	JWTIssuer string

	// Admin credentials. Admin login is disabled without a password hash.
	AdminUsername     string
	AdminPasswordHash string
	AdminTOTPSecret   string
	AdminTokenTTL     time.Duration

	// SessionTTL is the lifetime of a table session (default: 3 hours).
	SessionTTL time.Duration

	// DeviceThreshold flags a session once it has this many devices
	// (default: 15).
	DeviceThreshold int

	// MaxOrderItems caps the line items of one order (default: 50).
	MaxOrderItems int

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// SessionStore is the session collection the guard needs.
type SessionStore interface {
	tablesession.SessionStore
	ratelimit.OrderRecorder
	ordering.SessionTotals
}

// OrderStore is the order collection the guard needs.
type OrderStore interface {
	ratelimit.OrderCounter
	ordering.OrderStore
}

// TableStore is the table collection the guard needs.
type TableStore interface {
	tablesession.TableStore
	Create(ctx context.Context, table *domain.Table) error
}

// Guard is an assembled session guard.
type Guard struct {
	config    Config
	db        *repository.DB
	sessions  SessionStore
	orders    OrderStore
	tables    TableStore
	validator *tablesession.Validator
	console   *tablesession.Console
	limiter   *ratelimit.Limiter
	ordering  *ordering.Service
	admin     *adminauth.Service
}

// New assembles a guard. With a DB it ensures the indexes the session and
// rate limit queries rely on.
func New(ctx context.Context, cfg Config) (*Guard, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	g := &Guard{config: cfg, db: cfg.DB}
	if cfg.DB != nil {
		if err := cfg.DB.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("guard: ensure indexes: %w", err)
		}
		g.sessions = repository.NewSessionsRepository(cfg.DB)
		g.orders = repository.NewOrdersRepository(cfg.DB)
		g.tables = repository.NewTablesRepository(cfg.DB)
	} else {
		store := memory.NewStore()
		g.sessions = store.Sessions()
		g.orders = store.Orders()
		g.tables = store.Tables()
	}

	g.validator = tablesession.NewValidator(tablesession.Config{
		SessionTTL:      cfg.SessionTTL,
		DeviceThreshold: cfg.DeviceThreshold,
	}, g.sessions, g.tables, cfg.Logger)
	g.console = tablesession.NewConsole(g.sessions, g.tables, cfg.Logger)
	g.limiter = ratelimit.NewLimiter(g.orders, g.sessions, cfg.Logger)
	g.ordering = ordering.NewService(g.validator, g.limiter, g.orders, g.sessions, cfg.Logger)
	g.ordering.SetMaxItems(cfg.MaxOrderItems)
	g.admin = adminauth.NewService(adminauth.Config{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
		TOTPSecret:   cfg.AdminTOTPSecret,
		JWTSecret:    []byte(cfg.JWTSecret),
		Issuer:       cfg.JWTIssuer,
		TokenTTL:     cfg.AdminTokenTTL,
	})

	return g, nil
}

// Validator returns the session validator.
func (g *Guard) Validator() *tablesession.Validator { return g.validator }

// Console returns the admin session console.
func (g *Guard) Console() *tablesession.Console { return g.console }

// Orders returns the ordering service.
func (g *Guard) Orders() *ordering.Service { return g.ordering }

// AdminAuth returns the admin authentication service.
func (g *Guard) AdminAuth() *adminauth.Service { return g.admin }

// Tables returns the table collection, for seeding.
func (g *Guard) Tables() TableStore { return g.tables }

// HasAdminLogin reports whether admin login is configured.
func (g *Guard) HasAdminLogin() bool {
	return g.config.AdminUsername != "" && g.config.AdminPasswordHash != ""
}

// Ping checks the database. It always succeeds for the in-process store.
func (g *Guard) Ping(ctx context.Context) error {
	if g.db == nil {
		return nil
	}
	return g.db.Ping(ctx)
}

// SweepExpired expires every active session past its deadline.
func (g *Guard) SweepExpired(ctx context.Context) (int64, error) {
	return g.validator.SweepExpired(ctx)
}

// RouterOptions tunes the HTTP surface built by RouterWith.
type RouterOptions struct {
	RateLimit         config.RateLimitConfig
	SecurityHeaders   config.SecurityHeadersConfig
	MaxBodyBytes      int64
	TrustProxyHeaders bool
	CookieSecure      bool
	MetricsHandler    http.Handler
}

// Router returns a router with session, order and admin routes. Per-IP
// limits and security headers are left to the host service.
//
// Routes:
//
//	POST /v1/sessions/start                    - Scan a table QR code
//	GET  /v1/sessions/{sessionId}              - Validate a session
//	POST /v1/sessions/{sessionId}/devices      - Register a device
//	GET  /v1/sessions/{sessionId}/orders       - List session orders
//	POST /v1/orders                            - Place an order
//	POST /v1/admin/login                       - Admin login
//	GET  /v1/admin/sessions                    - List sessions (protected)
//	POST /v1/admin/sessions/{sessionId}/close  - Close a session (protected)
func (g *Guard) Router() http.Handler {
	return g.RouterWith(RouterOptions{MaxBodyBytes: 64 * 1024, CookieSecure: true})
}

// RouterWith returns the full router with host-provided options.
func (g *Guard) RouterWith(opts RouterOptions) http.Handler {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:            g.config.Logger,
		Validator:         g.validator,
		Console:           g.console,
		OrderService:      g.ordering,
		AdminAuth:         g.admin,
		RateLimitConfig:   opts.RateLimit,
		SecurityHeaders:   opts.SecurityHeaders,
		Validation:        config.ValidationConfig{MaxRequestBodySize: opts.MaxBodyBytes},
		TrustProxyHeaders: opts.TrustProxyHeaders,
		CookieSecure:      opts.CookieSecure,
		HealthCheck:       g.Ping,
		MetricsHandler:    opts.MetricsHandler,
	})
}

type sessionKey struct{}

// SessionMiddleware validates the session named by the chi URL parameter
// param and rejects the request when it is not valid. The session is
// available to the next handler through GetSession.
//
//	r.With(g.SessionMiddleware("sessionId")).Get("/menu/{sessionId}", menuHandler)
func (g *Guard) SessionMiddleware(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := g.validator.Validate(r.Context(), chi.URLParam(r, param))
			if !result.Valid {
				common.WriteValidationFailure(w, result)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey{}, result.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession extracts the validated session from a request.
// Use after SessionMiddleware:
//
//	session, ok := guard.GetSession(r)
func GetSession(r *http.Request) (*domain.Session, bool) {
	s, ok := r.Context().Value(sessionKey{}).(*domain.Session)
	return s, ok
}

// Routes registers all routes on an http.ServeMux under prefix:
//
//	mux := http.NewServeMux()
//	g.Routes(mux, "/ordering")
func (g *Guard) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, g.Router()))
}

// Close disconnects the database when one was given.
func (g *Guard) Close(ctx context.Context) error {
	if g.db == nil {
		return nil
	}
	return g.db.Close(ctx)
}

func validateConfig(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("guard: JWTSecret is required")
	}
	if cfg.SessionTTL < 0 {
		return errors.New("guard: SessionTTL must not be negative")
	}
	if cfg.AdminPasswordHash != "" && cfg.AdminUsername == "" {
		return errors.New("guard: AdminUsername is required when AdminPasswordHash is set")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "qr-ordering"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = tablesession.DefaultSessionTTL
	}
	if cfg.DeviceThreshold == 0 {
		cfg.DeviceThreshold = tablesession.DefaultDeviceThreshold
	}
	if cfg.MaxOrderItems == 0 {
		cfg.MaxOrderItems = ordering.DefaultMaxItems
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}
