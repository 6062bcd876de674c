package models

import (
	"time"

	regmodels "attesto/internal/registry/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// MintCommand asks the ledger to issue a new proof token. Command carries the
// issuer's signature bundle over the mint payload; the registry verifies it
// before any record is created.
type MintCommand struct {
	Issuer     id.IssuerAddress
	DocHash    id.Digest
	RecordType id.RecordType
	// Expiry is the requested lifetime from the mint instant. Bounded by the
	// ledger's configured maximum.
	Expiry time.Duration
	// Nonce is embedded in the QR payload and checked on consume. Generated
	// by the caller (or the transport layer) per token, never reused.
	Nonce string
	// LocatorHint is the opaque off-chain ciphertext locator retained on the
	// record and forwarded on revoke.
	LocatorHint string
	Actor       string
	Command     regmodels.SignedCommand
}

// Validate checks the mint inputs against the configured expiry ceiling.
// Authorization is the registry's job, not validation.
func (c MintCommand) Validate(maxExpiry time.Duration) error {
	if c.Issuer.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer address is required")
	}
	if c.DocHash.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "document hash is required")
	}
	if !c.RecordType.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid record type")
	}
	if c.Nonce == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "nonce is required")
	}
	if c.Expiry <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "expiry must be positive")
	}
	if c.Expiry > maxExpiry {
		return dErrors.New(dErrors.CodeInvalidInput, "expiry exceeds the configured maximum")
	}
	return nil
}

// ConsumeCommand asks the ledger to redeem a token. The presented nonce is the
// proof of possession from the scanned QR payload. Command is optional: issuer
// systems consuming through the signed-command channel attach one; relying
// parties authenticate at the transport layer and leave it empty.
type ConsumeCommand struct {
	TokenID id.TokenID
	Nonce   string
	Actor   string
	// DeviceLabel annotates the consumed event with the presenting device
	// family, when the transport captured one.
	DeviceLabel string
	Command     regmodels.SignedCommand
}

// Validate checks the command shape. Status and nonce preconditions are
// evaluated against the record under the per-token lock, not here.
func (c ConsumeCommand) Validate() error {
	if c.TokenID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	if c.Nonce == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "nonce is required")
	}
	if c.Actor == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "actor identity is required")
	}
	return nil
}

// RevokeCommand asks the ledger to retire an Active token. Command must clear
// the issuer's signing policy; for high-sensitivity record types that means
// the threshold quorum.
type RevokeCommand struct {
	TokenID id.TokenID
	Actor   string
	// Reason is recorded on the revoked event for auditors.
	Reason  string
	Command regmodels.SignedCommand
}

// Validate checks the command shape.
func (c RevokeCommand) Validate() error {
	if c.TokenID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	if c.Actor == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "actor identity is required")
	}
	return nil
}
