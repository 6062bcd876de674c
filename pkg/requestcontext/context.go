// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	actor := requestcontext.Actor(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActor(ctx, actor)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "Mozilla/5.0")
package requestcontext

import (
	"context"
	"time"

	id "attesto/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorKey       struct{}
	issuerKey      struct{}
	scopesKey      struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	deviceLabelKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyActor       = actorKey{}
	ContextKeyIssuer      = issuerKey{}
	ContextKeyScopes      = scopesKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyDeviceLabel = deviceLabelKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Auth context (actor, issuer, scopes)
// -----------------------------------------------------------------------------

// Actor retrieves the authenticated caller identity from the context.
// Returns the empty string if not set.
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(ContextKeyActor).(string); ok {
		return actor
	}
	return ""
}

// WithActor injects an actor identity into the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// Issuer retrieves the issuer address bound to the caller's credentials.
// Returns the zero value if the caller is not an issuer.
func Issuer(ctx context.Context) id.IssuerAddress {
	if issuer, ok := ctx.Value(ContextKeyIssuer).(id.IssuerAddress); ok {
		return issuer
	}
	return ""
}

// WithIssuer injects an issuer address into the context.
func WithIssuer(ctx context.Context, issuer id.IssuerAddress) context.Context {
	return context.WithValue(ctx, ContextKeyIssuer, issuer)
}

// Scopes retrieves the bearer token scopes from the context.
func Scopes(ctx context.Context) []string {
	if scopes, ok := ctx.Value(ContextKeyScopes).([]string); ok {
		return scopes
	}
	return nil
}

// WithScopes injects bearer scopes into the context.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, ContextKeyScopes, scopes)
}

// HasScope reports whether the context carries the given scope.
func HasScope(ctx context.Context, scope string) bool {
	for _, s := range Scopes(ctx) {
		if s == scope {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent, device label)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// DeviceLabel retrieves the parsed browser/platform label recorded in
// consume audit events.
func DeviceLabel(ctx context.Context) string {
	if label, ok := ctx.Value(ContextKeyDeviceLabel).(string); ok {
		return label
	}
	return ""
}

// WithDeviceLabel injects a device label into a context.
func WithDeviceLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, ContextKeyDeviceLabel, label)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
//   - Expiry edge cases pinned to an exact instant
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
