// Package status serves the process health endpoints: liveness, readiness,
// and an operator status page with process statistics and the event log head.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"

	"attesto/pkg/platform/httputil"
)

// probeTimeout bounds each readiness probe so a hung backend cannot stall
// the whole readiness response.
const probeTimeout = 2 * time.Second

// Check is one readiness probe against a backing dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler serves /healthz, /readyz, and /status.
type Handler struct {
	logger  *slog.Logger
	started time.Time
	checks  []Check
	// head reads the event log head for the status page. Optional.
	head func(ctx context.Context) (uint64, error)
}

// Option configures the handler.
type Option func(*Handler)

// WithCheck adds a readiness probe. Probes run in registration order.
func WithCheck(name string, probe func(ctx context.Context) error) Option {
	return func(h *Handler) {
		h.checks = append(h.checks, Check{Name: name, Probe: probe})
	}
}

// WithEventHead exposes the event log head on the status page.
func WithEventHead(head func(ctx context.Context) (uint64, error)) Option {
	return func(h *Handler) {
		h.head = head
	}
}

// New creates a status handler. Uptime counts from this call.
func New(logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:  logger,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the status routes. They carry no middleware and no auth:
// orchestrators and scrapers hit them constantly and they reveal no record
// contents.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	r.Get("/status", h.handleStatus)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := check.Probe(ctx)
		cancel()
		if err != nil {
			h.logger.WarnContext(r.Context(), "readiness probe failed",
				"check", check.Name, "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"failed": check.Name,
			})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Status         string  `json:"status"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	CPULoadPercent float64 `json:"cpu_load_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	Goroutines     int     `json:"goroutines"`
	GoVersion      string  `json:"go_version"`
	EventHead      uint64  `json:"event_head"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Instantaneous sample; an error simply reports zero load.
	cpuLoad := 0.0
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuLoad = percents[0]
	}

	resp := statusResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(h.started).Seconds()),
		CPULoadPercent: cpuLoad,
		MemoryMB:       float64(m.Alloc) / (1024 * 1024),
		Goroutines:     runtime.NumGoroutine(),
		GoVersion:      runtime.Version(),
	}
	if h.head != nil {
		head, err := h.head(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "event head read failed", "error", err)
		} else {
			resp.EventHead = head
		}
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
