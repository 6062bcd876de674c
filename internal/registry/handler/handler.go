// Package handler exposes the issuer registry admin surface. All routes sit
// behind bearer auth with the registry admin scope; issuer-signed commands
// ride in the request bodies and are checked by the service against the
// issuer's signing policy.
package handler

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attesto/internal/accesstoken"
	"attesto/internal/platform/metrics"
	"attesto/internal/platform/middleware"
	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// Service defines the registry operations the admin surface needs.
type Service interface {
	Register(ctx context.Context, name string, keys []ed25519.PublicKey, policy id.SigningPolicy) (*models.IssuerIdentity, error)
	Get(ctx context.Context, address id.IssuerAddress) (*models.IssuerIdentity, error)
	List(ctx context.Context) ([]*models.IssuerIdentity, error)
	RotateKey(ctx context.Context, address id.IssuerAddress, newKey ed25519.PublicKey, proof models.SignedCommand) (*models.IssuerIdentity, error)
	Suspend(ctx context.Context, address id.IssuerAddress, cmd models.SignedCommand) (*models.IssuerIdentity, error)
	Revoke(ctx context.Context, address id.IssuerAddress, cmd models.SignedCommand) (*models.IssuerIdentity, error)
}

// Handler handles issuer registry admin endpoints.
type Handler struct {
	logger    *slog.Logger
	registry  Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

// New creates a new registry admin Handler.
func New(registry Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		registry:  registry,
		metrics:   m,
		validator: validator,
	}
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(middleware.Recovery(h.logger))
	adminRouter.Use(middleware.RequestID)
	adminRouter.Use(middleware.Logger(h.logger))
	adminRouter.Use(middleware.RequestTime)
	adminRouter.Use(middleware.Timeout(30 * time.Second))
	adminRouter.Use(middleware.ContentTypeJSON)
	adminRouter.Use(middleware.LatencyMiddleware(h.metrics))
	adminRouter.Use(middleware.RequireAuth(h.validator, h.logger))
	adminRouter.Use(middleware.RequireScope(accesstoken.ScopeAdmin, h.logger))

	adminRouter.Post("/issuers", h.handleRegisterIssuer)
	adminRouter.Get("/issuers", h.handleListIssuers)
	adminRouter.Get("/issuers/{address}", h.handleGetIssuer)
	adminRouter.Post("/issuers/{address}/rotate", h.handleRotateKey)
	adminRouter.Post("/issuers/{address}/suspend", h.handleSuspendIssuer)
	adminRouter.Post("/issuers/{address}/revoke", h.handleRevokeIssuer)

	r.Mount("/admin", adminRouter)
}

func (h *Handler) handleRegisterIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterIssuerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := h.registry.Register(ctx, req.Name, req.PublicKeys(), req.SigningPolicy())
	if err != nil {
		h.writeServiceError(w, ctx, "issuer registration failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toIssuerResponse(identity))
}

func (h *Handler) handleListIssuers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identities, err := h.registry.List(ctx)
	if err != nil {
		h.writeServiceError(w, ctx, "issuer listing failed", err)
		return
	}

	issuers := make([]issuerResponse, 0, len(identities))
	for _, identity := range identities {
		issuers = append(issuers, toIssuerResponse(identity))
	}
	httputil.WriteJSON(w, http.StatusOK, listIssuersResponse{Issuers: issuers})
}

func (h *Handler) handleGetIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address, ok := h.issuerAddress(w, r)
	if !ok {
		return
	}

	identity, err := h.registry.Get(ctx, address)
	if err != nil {
		h.writeServiceError(w, ctx, "issuer lookup failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIssuerResponse(identity))
}

func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	address, ok := h.issuerAddress(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RotateKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := h.registry.RotateKey(ctx, address, req.PublicKey(), req.Proof)
	if err != nil {
		h.writeServiceError(w, ctx, "key rotation failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIssuerResponse(identity))
}

func (h *Handler) handleSuspendIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	address, ok := h.issuerAddress(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssuerCommandRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := h.registry.Suspend(ctx, address, req.Command)
	if err != nil {
		h.writeServiceError(w, ctx, "issuer suspension failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIssuerResponse(identity))
}

func (h *Handler) handleRevokeIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	address, ok := h.issuerAddress(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssuerCommandRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := h.registry.Revoke(ctx, address, req.Command)
	if err != nil {
		h.writeServiceError(w, ctx, "issuer revocation failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIssuerResponse(identity))
}

// issuerAddress parses the {address} route parameter, writing the error
// response itself on failure.
func (h *Handler) issuerAddress(w http.ResponseWriter, r *http.Request) (id.IssuerAddress, bool) {
	ctx := r.Context()
	address, err := id.ParseIssuerAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid issuer address in path",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return "", false
	}
	return address, true
}

// writeServiceError logs and translates a service error. Client-caused
// failures log at warn; everything else is an operational error.
func (h *Handler) writeServiceError(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
