package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/saproto/identity/internal/ctxkeys"
	"github.com/saproto/identity/internal/service"
	"github.com/saproto/identity/internal/session"
)

// Session loads the session cookie and, when it names a user, the user and
// their membership into the request context.
func Session(store session.Store, authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data := store.Load(r)
			ctx := ctxkeys.WithSession(r.Context(), data)

			if data.Authenticated() {
				user, err := authService.UserByID(ctx, data.UserID)
				if err != nil {
					// user deleted since login
					slog.Warn("session user not found, clearing session", "user_id", data.UserID, "error", err)
					store.Clear(w)
					ctx = ctxkeys.WithSession(r.Context(), &session.Data{})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}

				// Security: Remove password hash from context
				user.PasswordHash = nil
				ctx = ctxkeys.WithUser(ctx, user)

				member, err := authService.Member(ctx, user)
				if err != nil {
					slog.Error("failed to load membership", "user_id", user.ID, "error", err)
				}
				ctx = ctxkeys.WithMember(ctx, member)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth sends anonymous visitors to the login page and remembers where
// they were going.
func RequireAuth(store session.Store) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := ctxkeys.User(r.Context())
			if user == nil {
				data := ctxkeys.Session(r.Context())
				data.Flash = "Please log-in first."
				err := store.Save(w, data)
				if err != nil {
					slog.Error("failed to save session", "error", err)
				}
				http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.Path), http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		}
	}
}

// RequireGuest sends logged-in users home.
func RequireGuest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := ctxkeys.User(r.Context())
		if user != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	}
}
