package middleware

import (
	"net/http"
	"time"

	"attesto/pkg/requestcontext"
)

// RequestTime pins a single time.Now() per request so every expiry check and
// timestamp within one operation sees the same instant.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
