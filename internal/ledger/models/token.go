// Package models holds the token ledger domain entities: the single-use proof
// token record, the commands that drive its transitions, and the verification
// view returned to relying parties.
package models

import (
	"time"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// TokenStatus is the lifecycle state of a proof token. Active, Consumed and
// Revoked are stored; Expired is computed at read time and never written.
type TokenStatus string

const (
	TokenStatusActive   TokenStatus = "active"
	TokenStatusConsumed TokenStatus = "consumed"
	TokenStatusRevoked  TokenStatus = "revoked"
	// TokenStatusExpired is the view-time status of a stored-Active record
	// whose expiry has passed. It never appears in a store.
	TokenStatusExpired TokenStatus = "expired"
)

func (s TokenStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is a stored terminal state. Expired is
// not terminal: an expired record is still stored Active and can be revoked.
func (s TokenStatus) Terminal() bool {
	return s == TokenStatusConsumed || s == TokenStatusRevoked
}

// TokenRecord is the ledger entry for one issued proof token.
//
// Invariants:
//   - exactly one record exists per ID; the ID is derived at mint and never
//     reassigned
//   - Status moves along Active -> {Consumed, Revoked} only; both targets are
//     terminal and mutually exclusive
//   - every field except Status and LastTransitionAt is immutable after mint
//   - expiry is evaluated at read time via EffectiveStatus; the stored Status
//     of an expired token stays Active
type TokenRecord struct {
	ID         id.TokenID       `json:"id"`
	DocHash    id.Digest        `json:"doc_hash"`
	RecordType id.RecordType    `json:"record_type"`
	Issuer     id.IssuerAddress `json:"issuer"`
	Status     TokenStatus      `json:"status"`
	ExpiresAt  time.Time        `json:"expires_at"`
	// Nonce is the single-use value embedded in the QR payload. It guards
	// presentation replay independently of the stored status.
	Nonce string `json:"nonce"`
	// LocatorHint is the opaque off-chain ciphertext locator supplied at mint.
	// The ledger never dereferences it; it is forwarded verbatim in the delete
	// instruction when the token is revoked.
	LocatorHint      string    `json:"locator_hint,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// NewTokenRecord validates and constructs an Active record.
func NewTokenRecord(tokenID id.TokenID, docHash id.Digest, recordType id.RecordType, issuer id.IssuerAddress, nonce, locatorHint string, expiresAt, now time.Time) (*TokenRecord, error) {
	if tokenID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "token id cannot be zero")
	}
	if docHash.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document hash cannot be zero")
	}
	if !recordType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid record type")
	}
	if issuer.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer address is required")
	}
	if nonce == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "nonce cannot be empty")
	}
	if !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be in the future")
	}

	return &TokenRecord{
		ID:               tokenID,
		DocHash:          docHash,
		RecordType:       recordType,
		Issuer:           issuer,
		Status:           TokenStatusActive,
		ExpiresAt:        expiresAt,
		Nonce:            nonce,
		LocatorHint:      locatorHint,
		CreatedAt:        now,
		LastTransitionAt: now,
	}, nil
}

// EffectiveStatus applies the view-time expiry rule: a stored-Active record
// past its expiry reads as Expired. The stored status is never touched.
func (t *TokenRecord) EffectiveStatus(now time.Time) TokenStatus {
	if t.Status == TokenStatusActive && t.ExpiresAt.Before(now) {
		return TokenStatusExpired
	}
	return t.Status
}

// CanConsume checks the consume preconditions in their fixed order: effective
// status first, presented nonce second. An expired-but-stored-Active record
// fails distinctly from a terminal one, and a wrong nonce blocks consumption
// outright because the transition is irreversible.
func (t *TokenRecord) CanConsume(now time.Time, presentedNonce string) error {
	switch t.EffectiveStatus(now) {
	case TokenStatusExpired:
		return dErrors.New(dErrors.CodeConflict, "token expired")
	case TokenStatusConsumed, TokenStatusRevoked:
		return dErrors.New(dErrors.CodeConflict, "token not active")
	}
	if t.Nonce != presentedNonce {
		return dErrors.New(dErrors.CodeUnauthorized, "nonce mismatch")
	}
	return nil
}

// ApplyConsume marks the token consumed. Call CanConsume first.
func (t *TokenRecord) ApplyConsume(now time.Time) {
	t.Status = TokenStatusConsumed
	t.LastTransitionAt = now
}

// CanRevoke checks the revoke precondition: the stored status must be Active.
// Consumption takes precedence and reports its own cause. Expiry does not
// block revocation; the delete instruction for the off-chain ciphertext still
// has to go out.
func (t *TokenRecord) CanRevoke() error {
	switch t.Status {
	case TokenStatusConsumed:
		return dErrors.New(dErrors.CodeConflict, "already consumed")
	case TokenStatusRevoked:
		return dErrors.New(dErrors.CodeConflict, "token not active")
	}
	return nil
}

// ApplyRevoke marks the token revoked. Call CanRevoke first.
func (t *TokenRecord) ApplyRevoke(now time.Time) {
	t.Status = TokenStatusRevoked
	t.LastTransitionAt = now
}

// Clone returns a copy so store reads never alias the stored record.
func (t *TokenRecord) Clone() *TokenRecord {
	out := *t
	return &out
}
