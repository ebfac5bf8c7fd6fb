package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/event-ticketing/internal/auth"
)

type identityKey struct{}

// denial mirrors the API error body so clients parse one shape.
type denial struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="event-ticketing"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(denial{Error: message, Code: code})
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate resolves the caller's identity from a bearer token issued by the
// identity provider. Requests without a valid token are rejected with 401.
func Authenticate(jwtService *auth.JWTService, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				deny(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				message := "invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					message = "token expired"
				}
				logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
				deny(w, http.StatusUnauthorized, "unauthenticated", message)
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("enduser.id", claims.UserID),
				attribute.String("enduser.role", claims.Role),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims)))
		})
	}
}

// RequireRole lets through only identities carrying role. It must run after
// Authenticate.
func RequireRole(role string, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := IdentityFrom(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthenticated", "missing identity")
				return
			}
			if claims.Role != role {
				logger.Info("role denied",
					zap.String("user_id", claims.UserID),
					zap.String("role", claims.Role),
					zap.String("required", role),
					zap.String("path", r.URL.Path),
				)
				deny(w, http.StatusForbidden, "forbidden", "requires role "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithIdentity(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, claims)
}

func IdentityFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(identityKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// UserID returns the authenticated caller's id, or "" when there is none.
func UserID(ctx context.Context) string {
	if claims, ok := IdentityFrom(ctx); ok {
		return claims.UserID
	}
	return ""
}
