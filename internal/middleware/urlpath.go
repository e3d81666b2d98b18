package middleware

import (
	"net/http"

	"github.com/saproto/identity/internal/ctxkeys"
)

// WithURLPath exposes the request path to the page layout.
func WithURLPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(ctxkeys.WithURLPath(r.Context(), r.URL.Path)))
	})
}
