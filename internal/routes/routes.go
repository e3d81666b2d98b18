package routes

import (
	"net/http"
	"time"

	"github.com/saproto/identity/internal/app"
	"github.com/saproto/identity/internal/handler"
	"github.com/saproto/identity/internal/middleware"
	"github.com/saproto/identity/internal/ui"
)

func SetupRoutes(app *app.App) http.Handler {
	var responder handler.SAMLResponder
	if app.IdentityProvider != nil {
		responder = app.IdentityProvider
	}

	// Handlers
	home := handler.NewHomeHandler(app.Sessions)
	auth := handler.NewAuthHandler(app.AuthService, app.Sessions, responder)
	password := handler.NewPasswordHandler(app.AuthService, app.Sessions)

	requireAuth := middleware.RequireAuth(app.Sessions)
	rateLimiter := middleware.RateLimitCredentials(10, 15*time.Minute)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	// Static files
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(ui.Assets()))))

	// Home
	mux.HandleFunc("GET /{$}", home.HomePage)
	mux.HandleFunc("GET /becomeamember", home.BecomeMemberPage)

	// Login (GET also accepts SAMLRequest from service providers)
	mux.HandleFunc("GET /login", auth.LoginPage)
	mux.HandleFunc("POST /login", rateLimiter(auth.Login))
	mux.HandleFunc("POST /logout", auth.Logout)
	mux.HandleFunc("POST /login/cancel", auth.CancelTwoFactor)

	// Forgotten username
	mux.HandleFunc("GET /login/username", middleware.RequireGuest(auth.UsernamePage))
	mux.HandleFunc("POST /login/username", rateLimiter(middleware.RequireGuest(auth.RequestUsername)))

	// Password reset
	mux.HandleFunc("GET /password/reset", password.ResetRequestPage)
	mux.HandleFunc("POST /password/reset", rateLimiter(password.RequestReset))
	mux.HandleFunc("GET /password/reset/{token}", password.ResetPage)
	mux.HandleFunc("POST /password/reset/{token}", rateLimiter(password.Reset))

	// ============================================================================
	// PROTECTED ROUTES
	// ============================================================================

	mux.HandleFunc("GET /password/change", requireAuth(password.ChangePage))
	mux.HandleFunc("POST /password/change", rateLimiter(requireAuth(password.Change)))
	mux.HandleFunc("GET /password/sync", requireAuth(password.SyncPage))
	mux.HandleFunc("POST /password/sync", rateLimiter(requireAuth(password.Sync)))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	// 404
	mux.HandleFunc("/{path...}", home.NotFoundPage)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.Config(app.Cfg), // Config must be first (needed by SecurityHeaders)
		middleware.NonceMiddleware, // Generate CSP nonce for each request (must be before SecurityHeaders)
		middleware.SecurityHeaders,
		middleware.RequestLogging,
		middleware.CSRFProtection,
		middleware.Session(app.Sessions, app.AuthService),
		middleware.WithURLPath,
	)

	return handler
}
