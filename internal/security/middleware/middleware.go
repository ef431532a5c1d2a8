package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/observability/metrics"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/auth"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/ratelimit"
)

const (
	MsgTokenRequired = "Access token required"
	MsgTokenExpired  = "Token has expired"
	MsgTokenInvalid  = "Invalid token"
	MsgUserNotFound  = "User not found"
	MsgAuthFailed    = "Authentication failed"
)

type identityContextKey struct{}

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// UserLookup resolves token subjects to live accounts
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// RequireAuth rejects requests without a valid bearer token for an existing user.
// On success the caller's domain.Identity is stored in the request context.
func RequireAuth(tokens TokenValidator, users UserLookup, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, status, msg := authenticate(r, tokens, users, log)
			if identity == nil {
				metrics.ObserveAuthFailure(reasonLabel(msg))
				writeError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *identity)))
		})
	}
}

// OptionalAuth attaches the caller's identity when a valid token is supplied and passes through otherwise.
func OptionalAuth(tokens TokenValidator, users UserLookup, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				if identity, _, _ := authenticate(r, tokens, users, log); identity != nil {
					r = r.WithContext(WithIdentity(r.Context(), *identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, tokens TokenValidator, users UserLookup, log *slog.Logger) (*domain.Identity, int, string) {
	tokenString, err := auth.ExtractToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, http.StatusUnauthorized, MsgTokenRequired
	}

	claims, err := tokens.ValidateToken(tokenString)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, http.StatusUnauthorized, MsgTokenExpired
		}
		return nil, http.StatusUnauthorized, MsgTokenInvalid
	}

	user, err := users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, http.StatusUnauthorized, MsgUserNotFound
		}
		log.Error("failed to resolve token subject",
			slog.String("user_id", claims.UserID),
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		return nil, http.StatusInternalServerError, MsgAuthFailed
	}

	identity := user.Identity()
	return &identity, http.StatusOK, ""
}

func reasonLabel(msg string) string {
	switch msg {
	case MsgTokenRequired:
		return "missing"
	case MsgTokenExpired:
		return "expired"
	case MsgTokenInvalid:
		return "invalid"
	case MsgUserNotFound:
		return "unknown_user"
	}
	return "error"
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok
}

// RateLimit throttles requests per client address. scope separates independent budgets.
func RateLimit(limiter ratelimit.Limiter, scope string, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			if !limiter.Allow(r.Context(), key) {
				log.Warn("rate limit exceeded",
					slog.String("scope", scope),
					slog.String("client", clientIP(r)),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				metrics.ObserveRateLimited(scope)
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: http.StatusText(status), Message: msg})
}
