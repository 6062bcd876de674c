// Package handler exposes the read-only audit endpoints. Every route sits
// behind the audit scope: these responses include actor names, device labels,
// and revoke reasons, which the public verification endpoint deliberately
// never returns.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"attesto/internal/accesstoken"
	"attesto/internal/auditquery"
	"attesto/internal/eventlog"
	"attesto/internal/platform/metrics"
	"attesto/internal/platform/middleware"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// maxEventRangeSpan caps one export page. Larger exports page through the
// range with repeated calls.
const maxEventRangeSpan = 1000

// defaultActivityWindow applies when the activity query names no window.
const defaultActivityWindow = 24 * time.Hour

// Service is the audit query surface the handler needs.
type Service interface {
	Token(ctx context.Context, tokenID id.TokenID) (auditquery.TokenHistory, error)
	Events(ctx context.Context, from, to uint64) ([]eventlog.Entry, error)
	IssuerActivity(ctx context.Context, issuer id.IssuerAddress, window time.Duration) (auditquery.IssuerActivity, error)
}

// Handler serves the audit HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	audit     Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

// New creates an audit handler.
func New(audit Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		audit:     audit,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the audit routes on the router.
func (h *Handler) Register(r chi.Router) {
	auditRouter := chi.NewRouter()
	auditRouter.Use(middleware.Recovery(h.logger))
	auditRouter.Use(middleware.RequestID)
	auditRouter.Use(middleware.Logger(h.logger))
	auditRouter.Use(middleware.RequestTime)
	auditRouter.Use(middleware.Timeout(30 * time.Second))
	auditRouter.Use(middleware.LatencyMiddleware(h.metrics))
	auditRouter.Use(middleware.RequireAuth(h.validator, h.logger))
	auditRouter.Use(middleware.RequireScope(accesstoken.ScopeAudit, h.logger))

	auditRouter.Get("/tokens/{token_id}", h.handleTokenHistory)
	auditRouter.Get("/events", h.handleEvents)
	auditRouter.Get("/issuers/{issuer}/activity", h.handleIssuerActivity)

	r.Mount("/audit", auditRouter)
}

func (h *Handler) handleTokenHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenID, err := id.ParseTokenID(chi.URLParam(r, "token_id"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid token id in audit path",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}

	history, err := h.audit.Token(ctx, tokenID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTokenHistoryResponse(history))
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, err := queryUint(r, "from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := queryUint(r, "to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if to >= from && to-from+1 > maxEventRangeSpan {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			"range spans more than "+strconv.Itoa(maxEventRangeSpan)+" entries"))
		return
	}

	entries, err := h.audit.Events(ctx, from, to)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, eventsResponse{
		From:   from,
		To:     to,
		Count:  len(entries),
		Events: entries,
	})
}

func (h *Handler) handleIssuerActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	issuer, err := id.ParseIssuerAddress(chi.URLParam(r, "issuer"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid issuer address in audit path",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}

	window := defaultActivityWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, perr := time.ParseDuration(raw)
		if perr != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
				"window must be a duration such as 24h or 30m"))
			return
		}
		window = parsed
	}

	activity, err := h.audit.IssuerActivity(ctx, issuer, window)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIssuerActivityResponse(activity))
}

// queryUint parses a required unsigned integer query parameter.
func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeValidation, name+" query parameter is required")
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return v, nil
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, "audit query failed", "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, "audit query rejected", "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
