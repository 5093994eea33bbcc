package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireOperatorToken(t *testing.T) {
	guarded := RequireOperatorToken("s3cret")(okHandler())

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{
			name:       "missing token",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "valid bearer token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer s3cret")
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "valid fallback header",
			setup: func(r *http.Request) {
				r.Header.Set("X-Operator-Token", "s3cret")
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "wrong token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer nope")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed authorization scheme",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic s3cret")
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			guarded.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireOperatorToken_OpenWhenUnset(t *testing.T) {
	open := RequireOperatorToken("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no token configured", rec.Code)
	}
}
