package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
)

// Authorize gates a command for the given issuer. Every operation requires an
// active issuer and a signature bundle free of invalid entries; sensitive
// operations additionally require the signing policy quorum.
//
// Errors: CodeUnauthorized for unknown or revoked issuers and for bad
// signatures, CodeForbidden for suspended issuers and unmet quorum. Unknown
// and revoked issuers fail identically so callers cannot probe the registry.
func (s *Service) Authorize(ctx context.Context, address id.IssuerAddress, op models.Operation, cmd models.SignedCommand) error {
	start := time.Now()
	defer s.observeAuthorize(start)

	if address.IsZero() {
		s.incrementAuthzDenial("unknown_issuer")
		return dErrors.New(dErrors.CodeUnauthorized, "issuer not authorized")
	}

	identity, err := s.issuers.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.incrementAuthzDenial("unknown_issuer")
			return dErrors.New(dErrors.CodeUnauthorized, "issuer not authorized")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer")
	}

	switch identity.Status {
	case models.IssuerStatusRevoked:
		// Same message as the unknown case; metrics keep the distinction.
		s.incrementAuthzDenial("issuer_revoked")
		return dErrors.New(dErrors.CodeUnauthorized, "issuer not authorized")
	case models.IssuerStatusSuspended:
		s.incrementAuthzDenial("issuer_suspended")
		return dErrors.New(dErrors.CodeForbidden, "issuer suspended")
	}

	signers, err := s.validSigners(identity, cmd)
	if err != nil {
		s.incrementAuthzDenial("invalid_signature")
		return err
	}
	if op.Sensitive && len(signers) < identity.Policy.RequiredSignatures() {
		s.incrementAuthzDenial("insufficient_signatures")
		return dErrors.New(dErrors.CodeForbidden, "insufficient signatures")
	}

	return nil
}

// validSigners returns the distinct key indexes holding a valid signature
// over the command payload, in key order. Duplicate signatures by the same
// key count once.
//
// A signature from an unregistered key or failing verification rejects the
// whole bundle rather than being skipped; a forged signature is never
// ignored, even when enough others are valid.
func (s *Service) validSigners(identity *models.IssuerIdentity, cmd models.SignedCommand) ([]int, error) {
	seen := make(map[int]bool, len(cmd.Signatures))
	for _, sig := range cmd.Signatures {
		idx := identity.KeyIndex(sig.PublicKey)
		if idx < 0 {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "signature from unregistered key")
		}
		if !s.verifier.Verify(cmd.Payload, sig.Value, identity.Keys[idx]) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid signature")
		}
		seen[idx] = true
	}

	indexes := make([]int, 0, len(seen))
	for idx := range seen {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	return indexes, nil
}

// requireQuorum checks the signing policy quorum against the current key set.
func (s *Service) requireQuorum(identity *models.IssuerIdentity, cmd models.SignedCommand) error {
	signers, err := s.validSigners(identity, cmd)
	if err != nil {
		return err
	}
	if len(signers) < identity.Policy.RequiredSignatures() {
		return dErrors.New(dErrors.CodeForbidden, "insufficient signatures")
	}
	return nil
}

func (s *Service) observeAuthorize(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAuthorize(start)
	}
}
