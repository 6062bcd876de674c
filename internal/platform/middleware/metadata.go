package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"attesto/pkg/requestcontext"
)

// ClientMetadata extracts client IP, User-Agent, and a parsed device label
// from the request and adds them to the context. Consume audit events record
// the label so verification points are attributable without storing raw
// header strings.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		rawUA := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, rawUA)
		if label := deviceLabel(rawUA); label != "" {
			ctx = requestcontext.WithDeviceLabel(ctx, label)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceLabel reduces a User-Agent to "browser/os" (or "bot") for audit
// annotation.
func deviceLabel(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	if ua.Bot() {
		return "bot"
	}
	name, _ := ua.Browser()
	os := ua.OS()
	switch {
	case name != "" && os != "":
		return name + "/" + os
	case name != "":
		return name
	case os != "":
		return os
	default:
		return "unknown"
	}
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// Check X-Forwarded-For header first (standard for proxied requests)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
		// Take the first IP which is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header (used by nginx and other proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr (direct connection)
	// RemoteAddr is in format "ip:port", so we need to strip the port
	if addr := r.RemoteAddr; addr != "" {
		// For IPv6, format is [::1]:port
		// For IPv4, format is 127.0.0.1:port
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
