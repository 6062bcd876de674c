// Package service orchestrates the issuer registry: registration,
// authorization of ledger commands, key rotation and issuer lifecycle.
package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"strings"

	regmetrics "attesto/internal/registry/metrics"
	"attesto/internal/registry/models"
	"attesto/internal/registry/verifier"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/requestcontext"
)

// Store is the persistence contract for issuer identities.
//
// Create returns sentinel.ErrAlreadyUsed when the address is taken.
// FindByAddress returns sentinel.ErrNotFound for unknown addresses. Execute
// runs validate then apply while holding the record lock, so checks and
// mutations see the same state; it returns the updated identity.
type Store interface {
	Create(ctx context.Context, identity *models.IssuerIdentity) error
	FindByAddress(ctx context.Context, address id.IssuerAddress) (*models.IssuerIdentity, error)
	List(ctx context.Context) ([]*models.IssuerIdentity, error)
	Execute(ctx context.Context, address id.IssuerAddress, validate func(*models.IssuerIdentity) error, apply func(*models.IssuerIdentity)) (*models.IssuerIdentity, error)
}

// Service orchestrates issuer registration, authorization and key lifecycle.
type Service struct {
	issuers  Store
	verifier verifier.Verifier
	logger   *slog.Logger
	metrics  *regmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *regmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithVerifier swaps the signature verifier. Tests use this to stub validity.
func WithVerifier(v verifier.Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// New constructs a Service verifying Ed25519 signatures.
func New(issuers Store, opts ...Option) *Service {
	s := &Service{issuers: issuers, verifier: verifier.NewEd25519()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an active issuer identity. The address is derived from the
// first key and is the identity's permanent handle.
func (s *Service) Register(ctx context.Context, name string, keys []ed25519.PublicKey, policy id.SigningPolicy) (*models.IssuerIdentity, error) {
	name = strings.TrimSpace(name)

	// Use constructor which validates invariants
	identity, err := models.NewIssuerIdentity(name, keys, policy, requestcontext.Now(ctx))
	if err != nil {
		// Convert invariant violations to validation errors for API response
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.issuers.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "issuer address already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register issuer")
	}

	s.incrementIssuerRegistered()
	s.logAudit(ctx, "registry.issuer_registered",
		"issuer", identity.Address,
		"name", identity.Name,
		"policy", string(identity.Policy.Kind))
	return identity, nil
}

// Get returns the issuer identity for an address.
func (s *Service) Get(ctx context.Context, address id.IssuerAddress) (*models.IssuerIdentity, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer address is required")
	}
	identity, err := s.issuers.FindByAddress(ctx, address)
	if err != nil {
		return nil, wrapIssuerErr(err)
	}
	return identity, nil
}

// List returns all registered issuer identities.
func (s *Service) List(ctx context.Context) ([]*models.IssuerIdentity, error) {
	identities, err := s.issuers.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuers")
	}
	return identities, nil
}

// Suspend freezes an issuer. Suspension blocks every new command from the
// issuer but is not terminal; a suspended issuer can still be revoked.
//
// Suspension is a sensitive operation: cmd must satisfy the issuer's signing
// policy quorum against the current key set.
//
// Uses the Execute callback pattern for atomic validate-then-mutate. The
// store's Execute method holds the lock (mutex or FOR UPDATE) during both
// validation and mutation, so the quorum is counted against the key set the
// transition commits with.
func (s *Service) Suspend(ctx context.Context, address id.IssuerAddress, cmd models.SignedCommand) (*models.IssuerIdentity, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer address is required")
	}

	now := requestcontext.Now(ctx)
	identity, err := s.issuers.Execute(ctx, address,
		func(i *models.IssuerIdentity) error {
			if err := i.CanSuspend(); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "issuer is not active")
				}
				return err
			}
			return s.requireQuorum(i, cmd)
		},
		func(i *models.IssuerIdentity) {
			i.ApplySuspension(now)
		},
	)
	if err != nil {
		return nil, wrapIssuerErr(err)
	}

	s.incrementStatusChange(models.IssuerStatusSuspended)
	s.logAudit(ctx, "registry.issuer_suspended", "issuer", identity.Address)
	return identity, nil
}

// Revoke retires an issuer permanently. Identities are never deleted, so the
// address stays resolvable for historical events; the issuer just can never
// act again.
//
// Revocation is a sensitive operation: cmd must satisfy the issuer's signing
// policy quorum against the current key set.
func (s *Service) Revoke(ctx context.Context, address id.IssuerAddress, cmd models.SignedCommand) (*models.IssuerIdentity, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer address is required")
	}

	now := requestcontext.Now(ctx)
	identity, err := s.issuers.Execute(ctx, address,
		func(i *models.IssuerIdentity) error {
			if err := i.CanRevoke(); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "issuer is already revoked")
				}
				return err
			}
			return s.requireQuorum(i, cmd)
		},
		func(i *models.IssuerIdentity) {
			i.ApplyRevocation(now)
		},
	)
	if err != nil {
		return nil, wrapIssuerErr(err)
	}

	s.incrementStatusChange(models.IssuerStatusRevoked)
	s.logAudit(ctx, "registry.issuer_revoked", "issuer", identity.Address)
	return identity, nil
}

// wrapIssuerErr translates store sentinels into coded errors. Errors that
// already carry a code pass through unchanged so validate callbacks keep
// their precise classification.
func wrapIssuerErr(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "issuer not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "issuer address already registered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "issuer store operation failed")
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	// Add request_id from context if available
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) incrementIssuerRegistered() {
	if s.metrics != nil {
		s.metrics.IncrementIssuerRegistered()
	}
}

func (s *Service) incrementAuthzDenial(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementAuthzDenial(reason)
	}
}

func (s *Service) incrementKeyRotation() {
	if s.metrics != nil {
		s.metrics.IncrementKeyRotation()
	}
}

func (s *Service) incrementStatusChange(status models.IssuerStatus) {
	if s.metrics != nil {
		s.metrics.IncrementStatusChange(status.String())
	}
}
