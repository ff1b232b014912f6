package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tendant/qr-table-ordering/internal/httputil"
	"github.com/tendant/qr-table-ordering/pkg/adminauth"
)

func TestAdminAuth(t *testing.T) {
	svc := adminauth.NewService(adminauth.Config{
		JWTSecret: []byte("test-secret"),
		Issuer:    "qr-ordering",
		TokenTTL:  time.Hour,
	})
	token, err := svc.IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var gotAdmin string
	handler := AdminAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAdmin, _ = GetAdmin(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		setupReq   func(r *http.Request)
		wantStatus int
		wantAdmin  string
	}{
		{
			name:       "missing token",
			setupReq:   func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "bearer token",
			setupReq: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+token)
			},
			wantStatus: http.StatusOK,
			wantAdmin:  "alice",
		},
		{
			name: "cookie token",
			setupReq: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: httputil.AdminTokenCookie, Value: token})
			},
			wantStatus: http.StatusOK,
			wantAdmin:  "alice",
		},
		{
			name: "invalid token",
			setupReq: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer garbage")
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAdmin = ""
			req := httptest.NewRequest("GET", "/v1/admin/sessions", nil)
			tt.setupReq(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", w.Code, tt.wantStatus)
			}
			if gotAdmin != tt.wantAdmin {
				t.Errorf("admin = %q, want %q", gotAdmin, tt.wantAdmin)
			}
		})
	}
}
