package middleware

import (
	"net/http"
	"strconv"

	"github.com/tendant/qr-table-ordering/internal/config"
)

type header struct {
	name, value string
}

// SecurityHeaders sets the configured security response headers. Session and
// order responses are never cacheable, so Cache-Control: no-store is always
// added while the middleware is enabled.
func SecurityHeaders(cfg config.SecurityHeadersConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	headers := securityHeaders(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hv := range headers {
				h.Set(hv.name, hv.value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// securityHeaders resolves the header list once; empty values are skipped.
func securityHeaders(cfg config.SecurityHeadersConfig) []header {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge) + "; includeSubDomains"
	}

	candidates := []header{
		{"Content-Security-Policy", cfg.CSP},
		{"Strict-Transport-Security", hsts},
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-Content-Type-Options", cfg.ContentTypeOptions},
		{"X-XSS-Protection", cfg.XSSProtection},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
		{"Cache-Control", "no-store"},
	}

	out := candidates[:0]
	for _, hv := range candidates {
		if hv.value != "" {
			out = append(out, hv)
		}
	}
	return out
}
