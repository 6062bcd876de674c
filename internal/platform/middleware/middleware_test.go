package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attesto/internal/accesstoken"
	"attesto/pkg/requestcontext"
	"attesto/pkg/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoHandler(t *testing.T, onRequest func(r *http.Request)) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			onRequest(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	t.Run("assigns id when absent", func(t *testing.T) {
		var seen string
		h := RequestID(echoHandler(t, func(r *http.Request) {
			seen = requestcontext.RequestID(r.Context())
		}))

		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/healthz"))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))
	})

	t.Run("honors supplied id", func(t *testing.T) {
		var seen string
		h := RequestID(echoHandler(t, func(r *http.Request) {
			seen = requestcontext.RequestID(r.Context())
		}))

		req := testutil.NewRequest(t, http.MethodGet, "/healthz")
		req.Header.Set("X-Request-ID", "req-fixed")
		testutil.DoRequest(h, req)

		assert.Equal(t, "req-fixed", seen)
	})
}

func TestRequireAuth(t *testing.T) {
	svc := accesstoken.NewService("test-key", "attesto", "attesto-api")

	t.Run("missing token rejected", func(t *testing.T) {
		h := RequireAuth(svc, discardLogger())(echoHandler(t, nil))
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/tokens"))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		h := RequireAuth(svc, discardLogger())(echoHandler(t, nil))
		req := testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens", "garbage", nil)
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("valid token populates context", func(t *testing.T) {
		token, err := svc.Generate("clinic-api", "", []string{accesstoken.ScopeConsume}, time.Hour)
		require.NoError(t, err)

		var actor string
		var scopes []string
		h := RequireAuth(svc, discardLogger())(echoHandler(t, func(r *http.Request) {
			actor = requestcontext.Actor(r.Context())
			scopes = requestcontext.Scopes(r.Context())
		}))

		req := testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens", token, nil)
		rr := testutil.DoRequest(h, req)

		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "clinic-api", actor)
		assert.Equal(t, []string{accesstoken.ScopeConsume}, scopes)
	})
}

func TestRequireScope(t *testing.T) {
	svc := accesstoken.NewService("test-key", "attesto", "attesto-api")

	newChain := func(scope string) http.Handler {
		return RequireAuth(svc, discardLogger())(
			RequireScope(scope, discardLogger())(echoHandler(t, nil)),
		)
	}

	t.Run("scope present passes", func(t *testing.T) {
		token, err := svc.Generate("auditor", "", []string{accesstoken.ScopeAudit}, time.Hour)
		require.NoError(t, err)

		rr := testutil.DoRequest(newChain(accesstoken.ScopeAudit),
			testutil.NewBearerJSONRequest(t, http.MethodGet, "/audit/events", token, nil))
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("scope missing forbidden", func(t *testing.T) {
		token, err := svc.Generate("auditor", "", []string{accesstoken.ScopeConsume}, time.Hour)
		require.NoError(t, err)

		rr := testutil.DoRequest(newChain(accesstoken.ScopeAudit),
			testutil.NewBearerJSONRequest(t, http.MethodGet, "/audit/events", token, nil))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})
}

func TestClientMetadata(t *testing.T) {
	var ip, label string
	h := ClientMetadata(echoHandler(t, func(r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		label = requestcontext.DeviceLabel(r.Context())
	}))

	req := testutil.NewRequest(t, http.MethodGet, "/verify")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	testutil.DoRequest(h, req)

	assert.Equal(t, "203.0.113.7", ip)
	assert.NotEmpty(t, label)
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(echoHandler(t, nil))

	t.Run("json accepted", func(t *testing.T) {
		rr := testutil.DoRequest(h, testutil.NewJSONRequest(t, http.MethodPost, "/tokens", map[string]string{}))
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("xml rejected", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/tokens", "<xml/>")
		req.Header.Set("Content-Type", "application/xml")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("get untouched", func(t *testing.T) {
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/verify"))
		testutil.AssertStatusOK(t, rr)
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/verify"))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}

func TestRequestTime(t *testing.T) {
	var first, second time.Time
	h := RequestTime(echoHandler(t, func(r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(5 * time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))

	testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/verify"))

	assert.Equal(t, first, second, "one instant per request")
	assert.False(t, first.IsZero())
}
