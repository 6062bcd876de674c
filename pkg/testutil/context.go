package testutil

import (
	"context"
	"net/http"

	id "attesto/pkg/domain"
	"attesto/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actor string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actor)
	return req.WithContext(ctx)
}

// WithIssuer adds an issuer address to the request context.
// If the address is not valid hex, it will not be added to the context.
func WithIssuer(req *http.Request, address string) *http.Request {
	if parsed, err := id.ParseIssuerAddress(address); err == nil {
		ctx := requestcontext.WithIssuer(req.Context(), parsed)
		return req.WithContext(ctx)
	}
	return req
}

// WithAuth adds actor, issuer, and scopes to the request context.
// This is the typical state for an authenticated request.
// An invalid issuer address is silently ignored.
func WithAuth(req *http.Request, actor, issuerAddress string, scopes ...string) *http.Request {
	ctx := req.Context()
	if actor != "" {
		ctx = requestcontext.WithActor(ctx, actor)
	}
	if issuerAddress != "" {
		if parsed, err := id.ParseIssuerAddress(issuerAddress); err == nil {
			ctx = requestcontext.WithIssuer(ctx, parsed)
		}
	}
	if len(scopes) > 0 {
		ctx = requestcontext.WithScopes(ctx, scopes)
	}
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
