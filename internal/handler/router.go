package handler

import (
	"log/slog"
	"net/http"

	"github.com/Knifucrab/mauro-zen-notes/internal/security/middleware"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/ratelimit"
)

// Routes bundles everything the API mux is built from
type Routes struct {
	Auth   *AuthHandler
	Notes  *NoteHandler
	Tags   *TagHandler
	Health *HealthHandler

	Tokens middleware.TokenValidator
	Users  middleware.UserLookup
	// AuthLimiter throttles register and login per client address
	AuthLimiter ratelimit.Limiter
	// Metrics serves /metrics when set
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewMux registers every endpoint on a fresh ServeMux
func NewMux(rt Routes) *http.ServeMux {
	logger := rt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	protected := middleware.RequireAuth(rt.Tokens, rt.Users, logger)
	optional := middleware.OptionalAuth(rt.Tokens, rt.Users, logger)
	public := func(h http.Handler) http.Handler { return h }
	throttled := public
	if rt.AuthLimiter != nil {
		throttled = middleware.RateLimit(rt.AuthLimiter, "auth", logger)
	}

	mux := http.NewServeMux()
	handle := func(pattern string, wrap func(http.Handler) http.Handler, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(middleware.ValidateJSONContentType(fn)))
	}

	// Auth
	handle("POST /api/auth/register", throttled, rt.Auth.Register)
	handle("POST /api/auth/login", throttled, rt.Auth.Login)
	handle("GET /api/auth/profile", protected, rt.Auth.Profile)
	handle("POST /api/auth/change-password", protected, rt.Auth.ChangePassword)
	handle("POST /api/auth/refresh-token", protected, rt.Auth.RefreshToken)
	handle("POST /api/auth/logout", protected, rt.Auth.Logout)

	// Notes
	handle("GET /api/notes", protected, rt.Notes.List)
	handle("POST /api/notes", protected, rt.Notes.Create)
	handle("GET /api/notes/stats", protected, rt.Notes.Stats)
	handle("GET /api/notes/{id}", protected, rt.Notes.Get)
	handle("PUT /api/notes/{id}", protected, rt.Notes.Update)
	handle("DELETE /api/notes/{id}", protected, rt.Notes.Delete)
	handle("POST /api/notes/{id}/archive", protected, rt.Notes.Archive)
	handle("POST /api/notes/{id}/unarchive", protected, rt.Notes.Unarchive)
	handle("POST /api/notes/{id}/tags/{tagId}", protected, rt.Notes.AddTag)
	handle("DELETE /api/notes/{id}/tags/{tagId}", protected, rt.Notes.RemoveTag)

	// Tags
	handle("GET /api/tags", optional, rt.Tags.List)
	handle("POST /api/tags", protected, rt.Tags.Create)
	handle("GET /api/tags/colors", public, rt.Tags.Colors)
	handle("GET /api/tags/stats", protected, rt.Tags.Stats)
	handle("GET /api/tags/mine", protected, rt.Tags.Mine)
	handle("GET /api/tags/{id}", public, rt.Tags.Get)
	handle("PUT /api/tags/{id}", protected, rt.Tags.Update)
	handle("DELETE /api/tags/{id}", protected, rt.Tags.Delete)
	handle("GET /api/tags/{id}/notes", protected, rt.Tags.Notes)

	// Health
	mux.HandleFunc("GET /healthz", rt.Health.Health)
	mux.HandleFunc("GET /readyz", rt.Health.Ready)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	return mux
}
