// Package handler exposes the token ledger over HTTP. Minting, consuming, and
// revoking sit behind bearer auth with per-operation scopes; verification is
// deliberately public, since anyone holding a presentation payload may check
// it before deciding to act on the document it references.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attesto/internal/accesstoken"
	"attesto/internal/ledger/models"
	"attesto/internal/platform/metrics"
	"attesto/internal/platform/middleware"
	"attesto/internal/presentation"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"

	id "attesto/pkg/domain"
)

// maxMintBodyBytes bounds the mint request body read for schema validation.
const maxMintBodyBytes = 1 << 20

// Service defines the ledger operations the token surface needs.
type Service interface {
	Mint(ctx context.Context, cmd models.MintCommand) (*models.TokenRecord, error)
	Verify(ctx context.Context, tokenID id.TokenID, presentedNonce string) (models.VerificationView, error)
	Consume(ctx context.Context, cmd models.ConsumeCommand) error
	Revoke(ctx context.Context, cmd models.RevokeCommand) error
}

// Handler handles token ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	ledger    Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

// New creates a new ledger Handler.
func New(ledger Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		ledger:    ledger,
		metrics:   m,
		validator: validator,
	}
}

// Register registers the token routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	tokenRouter := chi.NewRouter()
	tokenRouter.Use(middleware.Recovery(h.logger))
	tokenRouter.Use(middleware.RequestID)
	tokenRouter.Use(middleware.Logger(h.logger))
	tokenRouter.Use(middleware.RequestTime)
	tokenRouter.Use(middleware.Timeout(30 * time.Second))
	tokenRouter.Use(middleware.ContentTypeJSON)
	tokenRouter.Use(middleware.ClientMetadata)
	tokenRouter.Use(middleware.LatencyMiddleware(h.metrics))

	// Public: verification needs no credentials, only a payload.
	tokenRouter.Post("/verify", h.handleVerifyToken)

	tokenRouter.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.validator, h.logger))
		g.With(middleware.RequireScope(accesstoken.ScopeMint, h.logger)).Post("/", h.handleMintToken)
		g.With(middleware.RequireScope(accesstoken.ScopeConsume, h.logger)).Post("/{token_id}/consume", h.handleConsumeToken)
		g.With(middleware.RequireScope(accesstoken.ScopeRevoke, h.logger)).Post("/{token_id}/revoke", h.handleRevokeToken)
	})

	r.Mount("/tokens", tokenRouter)
}

func (h *Handler) handleMintToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMintBodyBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "mint body read failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validateMintBody(body); err != nil {
		h.logger.WarnContext(ctx, "mint request failed schema validation", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	var req MintTokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.WarnContext(ctx, "mint body decode failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.WarnContext(ctx, "mint request validation failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	record, err := h.ledger.Mint(ctx, req.ToCommand(requestcontext.Actor(ctx)))
	if err != nil {
		h.writeServiceError(w, ctx, "token mint failed", err)
		return
	}

	payload, err := presentation.Encode(presentation.Payload{TokenID: record.ID, Nonce: record.Nonce})
	if err != nil {
		h.writeServiceError(w, ctx, "presentation encoding failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, mintTokenResponse{
		TokenID:   record.ID.String(),
		Status:    record.Status.String(),
		ExpiresAt: record.ExpiresAt,
		Payload:   payload,
	})
}

func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.ledger.Verify(ctx, req.ParsedTokenID(), req.PresentedNonce())
	if err != nil {
		h.writeServiceError(w, ctx, "token verification failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(view))
}

func (h *Handler) handleConsumeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tokenID, ok := h.tokenID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConsumeTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.ledger.Consume(ctx, models.ConsumeCommand{
		TokenID:     tokenID,
		Nonce:       req.Nonce,
		Actor:       requestcontext.Actor(ctx),
		DeviceLabel: requestcontext.DeviceLabel(ctx),
		Command:     req.Command,
	})
	if err != nil {
		h.writeServiceError(w, ctx, "token consume failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, transitionResponse{
		TokenID: tokenID.String(),
		Status:  models.TokenStatusConsumed.String(),
	})
}

func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tokenID, ok := h.tokenID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RevokeTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.ledger.Revoke(ctx, models.RevokeCommand{
		TokenID: tokenID,
		Actor:   requestcontext.Actor(ctx),
		Reason:  req.Reason,
		Command: req.Command,
	})
	if err != nil {
		h.writeServiceError(w, ctx, "token revoke failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, transitionResponse{
		TokenID: tokenID.String(),
		Status:  models.TokenStatusRevoked.String(),
	})
}

// tokenID parses the {token_id} route parameter, writing the error response
// itself on failure.
func (h *Handler) tokenID(w http.ResponseWriter, r *http.Request) (id.TokenID, bool) {
	ctx := r.Context()
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "token_id"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid token id in path",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return id.TokenID{}, false
	}
	return tokenID, true
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
