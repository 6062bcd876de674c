package service

import (
	"context"
	"crypto/ed25519"

	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/requestcontext"
)

// RotateKey swaps one signing key for newKey while preserving the issuer
// address. The replaced key is invalid for new commands immediately; events
// it signed are untouched.
//
// The proof selects which key is replaced: a single valid signer rotates its
// own key, while two or more signers meeting the threshold policy replace the
// primary key, which covers recovery when the primary is lost. A lost
// secondary key cannot be recovered in place; suspend the issuer and register
// a fresh identity instead.
func (s *Service) RotateKey(ctx context.Context, address id.IssuerAddress, newKey ed25519.PublicKey, proof models.SignedCommand) (*models.IssuerIdentity, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer address is required")
	}

	now := requestcontext.Now(ctx)
	var replaceIdx int
	identity, err := s.issuers.Execute(ctx, address,
		func(i *models.IssuerIdentity) error {
			if err := i.CanRotate(newKey); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "issuer is not active")
				}
				return err
			}
			idx, err := s.rotationTarget(i, proof)
			if err != nil {
				return err
			}
			replaceIdx = idx
			return nil
		},
		func(i *models.IssuerIdentity) {
			i.ApplyRotation(replaceIdx, newKey, now)
		},
	)
	if err != nil {
		return nil, wrapIssuerErr(err)
	}

	s.incrementKeyRotation()
	s.logAudit(ctx, "registry.key_rotated",
		"issuer", identity.Address,
		"key_index", replaceIdx)
	return identity, nil
}

// rotationTarget resolves which key index the proof authorizes replacing.
func (s *Service) rotationTarget(identity *models.IssuerIdentity, proof models.SignedCommand) (int, error) {
	signers, err := s.validSigners(identity, proof)
	if err != nil {
		return 0, err
	}
	switch {
	case len(signers) == 0:
		return 0, dErrors.New(dErrors.CodeUnauthorized, "rotation proof is not signed by a current key")
	case len(signers) == 1:
		return signers[0], nil
	case len(signers) >= identity.Policy.RequiredSignatures():
		return 0, nil
	default:
		return 0, dErrors.New(dErrors.CodeForbidden, "insufficient signatures")
	}
}
