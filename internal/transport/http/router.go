// Package httptransport assembles the public HTTP surface. Feature handlers
// own their subrouters and middleware chains; this package only mounts them
// next to the unauthenticated status and metrics endpoints.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "attesto/internal/auditquery/handler"
	ledgerhandler "attesto/internal/ledger/handler"
	"attesto/internal/platform/status"
	registryhandler "attesto/internal/registry/handler"
)

// Handlers collects everything NewRouter mounts.
type Handlers struct {
	Ledger   *ledgerhandler.Handler
	Registry *registryhandler.Handler
	Audit    *audithandler.Handler
	Status   *status.Handler
}

// NewRouter builds the process-wide router:
//
//	/healthz, /readyz, /status   liveness, readiness, process stats
//	/metrics                     Prometheus scrape
//	/tokens/...                  mint, verify, consume, revoke
//	/admin/issuers/...           issuer registry administration
//	/audit/...                   read-only audit queries
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	h.Status.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	h.Ledger.Register(r)
	h.Registry.Register(r)
	h.Audit.Register(r)

	return r
}
