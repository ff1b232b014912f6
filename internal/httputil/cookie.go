package httputil

import (
	"net/http"
	"time"
)

// AdminTokenCookie is the cookie carrying the admin access token for the
// browser back-office.
const AdminTokenCookie = "admin_token"

// CookieConfig holds cookie configuration.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool // Set to true in production (HTTPS)
	SameSite http.SameSite
}

// DefaultCookieConfig returns default cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteStrictMode,
	}
}

// SetAdminTokenCookie sets the HttpOnly admin token cookie.
func SetAdminTokenCookie(w http.ResponseWriter, token string, ttl time.Duration, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminTokenCookie,
		Value:    token,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// ClearAdminTokenCookie clears the admin token cookie.
func ClearAdminTokenCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminTokenCookie,
		Value:    "",
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// GetAdminTokenFromCookie extracts the admin token from its cookie.
func GetAdminTokenFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(AdminTokenCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// IsBrowserClient reports whether the client asked for cookie-based auth.
// Browser clients should set header: X-Client-Type: web
func IsBrowserClient(r *http.Request) bool {
	return r.Header.Get("X-Client-Type") == "web"
}
