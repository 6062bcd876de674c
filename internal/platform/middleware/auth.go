package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"attesto/internal/accesstoken"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*accesstoken.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated actor, issuer address, and scopes in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.Actor)
			ctx = requestcontext.WithScopes(ctx, claims.Scopes)
			if claims.Issuer != "" {
				if addr, err := id.ParseIssuerAddress(claims.Issuer); err == nil {
					ctx = requestcontext.WithIssuer(ctx, addr)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects authenticated requests whose token lacks the scope.
// Must be mounted after RequireAuth.
func RequireScope(scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.HasScope(ctx, scope) {
				logger.WarnContext(ctx, "forbidden - missing scope",
					"request_id", requestcontext.RequestID(ctx),
					"actor", requestcontext.Actor(ctx),
					"scope", scope,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token lacks required scope"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
