package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/tendant/qr-table-ordering/internal/config"
)

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := RateLimitConfig{
		Requests: 2,
		Window:   time.Second,
		Logger:   logger,
	}

	handler := RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if got := send("192.168.1.1:12345"); got != http.StatusOK {
		t.Errorf("First request: got status %d, want %d", got, http.StatusOK)
	}
	if got := send("192.168.1.1:12345"); got != http.StatusOK {
		t.Errorf("Second request: got status %d, want %d", got, http.StatusOK)
	}
	if got := send("192.168.1.1:12345"); got != http.StatusTooManyRequests {
		t.Errorf("Third request: got status %d, want %d", got, http.StatusTooManyRequests)
	}

	// Another phone at the same table has its own budget
	if got := send("192.168.1.2:12345"); got != http.StatusOK {
		t.Errorf("Other client: got status %d, want %d", got, http.StatusOK)
	}
}

func TestNoRateLimit(t *testing.T) {
	handler := NoRateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	// All requests should succeed
	for i := 0; i < 100; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: got status %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestCreateRateLimiters_Disabled(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: false,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	limiters := CreateRateLimiters(cfg, false, logger)

	// All limiters should be no-op
	handler := limiters[LimitOrders](http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: got status %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestCreateRateLimiters_Enabled(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:                     true,
		PublicRequestsPerMinute:     100,
		PublicWindowMinutes:         1,
		OrderRequestsPerMinute:      5,
		OrderWindowMinutes:          1,
		AdminLoginRequestsPerWindow: 1,
		AdminLoginWindowMinutes:     15,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	limiters := CreateRateLimiters(cfg, false, logger)

	for _, group := range []string{LimitPublic, LimitOrders, LimitAdminLogin} {
		if limiters[group] == nil {
			t.Errorf("%s limiter should not be nil", group)
		}
	}

	handler := limiters[LimitAdminLogin](http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	codes := make([]int, 2)
	for i := range codes {
		req := httptest.NewRequest("POST", "/v1/admin/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("admin login limiter codes = %v, want [200 429]", codes)
	}
}
