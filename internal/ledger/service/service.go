// Package service orchestrates the proof token lifecycle: minting against the
// issuer registry, repeatable verification, single-use consumption, and
// revocation with its storage side effect. Every successful transition commits
// atomically with its audit event through the Store contract.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"attesto/internal/eventlog"
	ledgermetrics "attesto/internal/ledger/metrics"
	"attesto/internal/ledger/models"
	regmodels "attesto/internal/registry/models"
	"attesto/internal/vault"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/requestcontext"

	id "attesto/pkg/domain"
)

// DefaultMaxExpiry bounds how far in the future a minted token may expire.
const DefaultMaxExpiry = 365 * 24 * time.Hour

const tracerName = "attesto/ledger"

// Store is the persistence contract for token records.
//
// Mint persists the record and its minted event in one commit; it returns
// sentinel.ErrAlreadyUsed when the token id is taken and appends nothing.
// Find returns sentinel.ErrNotFound for unknown ids. Execute serializes
// transitions per token: validate then apply run while the token is locked,
// and the mutated record commits atomically with the event apply returns.
// Errors from validate pass through unchanged; a lock wait that exceeds the
// store's bound surfaces sentinel.ErrContended.
type Store interface {
	Mint(ctx context.Context, record *models.TokenRecord, entry eventlog.Entry) (eventlog.Entry, error)
	Find(ctx context.Context, tokenID id.TokenID) (*models.TokenRecord, error)
	Execute(ctx context.Context, tokenID id.TokenID, validate func(*models.TokenRecord) error, apply func(*models.TokenRecord) eventlog.Entry) (*models.TokenRecord, eventlog.Entry, error)
}

// Registry authorizes ledger commands against the issuer registry. It returns
// a coded error when the issuer cannot act: unauthorized for unknown or
// revoked issuers, forbidden for suspended ones or a failed quorum.
type Registry interface {
	Authorize(ctx context.Context, address id.IssuerAddress, op regmodels.Operation, cmd regmodels.SignedCommand) error
}

// StorageNotifier receives the delete instruction for a revoked token after
// the revocation has committed.
type StorageNotifier interface {
	NotifyDelete(ctx context.Context, instruction vault.DeleteInstruction) error
}

// VerifyCache short-circuits verification for tokens whose stored status can
// no longer change. Get reports a miss with ok=false; Put ignores records
// that are still mutable.
type VerifyCache interface {
	Get(ctx context.Context, tokenID id.TokenID, presentedNonce string) (models.VerificationView, bool, error)
	Put(ctx context.Context, record *models.TokenRecord) error
}

// Service coordinates token transitions across the registry, the store, and
// the storage notifier.
type Service struct {
	tokens        Store
	registry      Registry
	notifier      StorageNotifier
	cache         VerifyCache
	derivationKey []byte
	maxExpiry     time.Duration
	logger        *slog.Logger
	metrics       *ledgermetrics.Metrics
	tracer        trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifier wires the storage notifier invoked after revocations commit.
func WithNotifier(n StorageNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithCache enables the terminal-status verification cache.
func WithCache(c VerifyCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithMaxExpiry overrides the minting expiry ceiling.
func WithMaxExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxExpiry = d
		}
	}
}

// New constructs a Service. derivationKey feeds token id derivation and must
// match across every instance that mints against the same ledger.
func New(tokens Store, registry Registry, derivationKey []byte, opts ...Option) *Service {
	key := make([]byte, len(derivationKey))
	copy(key, derivationKey)

	s := &Service{
		tokens:        tokens,
		registry:      registry,
		notifier:      vault.Noop{},
		derivationKey: key,
		maxExpiry:     DefaultMaxExpiry,
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// wrapTokenErr translates store sentinels into coded errors. Errors that
// already carry a code pass through unchanged so validate callbacks keep
// their precise classification.
func wrapTokenErr(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "token not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "token already minted for this document and nonce")
	case errors.Is(err, sentinel.ErrContended):
		return dErrors.New(dErrors.CodeContention, "token transition contended, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "token store operation failed")
	}
}

// outcomeFor buckets an operation result for the transitions counter.
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case dErrors.HasCode(err, dErrors.CodeUnauthorized), dErrors.HasCode(err, dErrors.CodeForbidden):
		return "denied"
	case dErrors.HasCode(err, dErrors.CodeContention):
		return "contention"
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return "conflict"
	case dErrors.HasCode(err, dErrors.CodeInvalidInput),
		dErrors.HasCode(err, dErrors.CodeValidation),
		dErrors.HasCode(err, dErrors.CodeBadRequest),
		dErrors.HasCode(err, dErrors.CodeNotFound):
		return "rejected"
	default:
		return "error"
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

func (s *Service) finishTransition(kind eventlog.Kind, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementTransition(string(kind), outcomeFor(err))
	if dErrors.HasCode(err, dErrors.CodeContention) {
		s.metrics.IncrementLockContention()
	}
}

func (s *Service) observeMint(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveMint(start)
	}
}

func (s *Service) observeVerify(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveVerify(start)
	}
}

func (s *Service) incrementVerifyCache(result string) {
	if s.metrics != nil {
		s.metrics.IncrementVerifyCache(result)
	}
}
