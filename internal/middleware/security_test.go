package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saproto/identity/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		wantHSTS bool
	}{
		{"development", "development", false},
		{"production", "production", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nonce string
			h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nonce = GetNonce(r.Context())
			}), Config(&config.Config{AppEnv: tt.env}), NonceMiddleware, SecurityHeaders)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.NotEmpty(t, nonce)
			assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "'nonce-"+nonce+"'")
			assert.NotContains(t, rec.Header().Get("Content-Security-Policy"), "form-action")
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, tt.wantHSTS, rec.Header().Get("Strict-Transport-Security") != "")
		})
	}
}
