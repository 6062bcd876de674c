package models

import (
	"time"

	id "attesto/pkg/domain"
)

// VerificationView is what a relying party learns about a token: the document
// commitment, the issuing identity, and the effective status. It never exposes
// the stored nonce.
//
// The shape is identical whether or not the presented nonce matched; only the
// NonceMismatch flag differs. Verification is a public read, and a structurally
// different "wrong nonce" answer would hand an enumeration probe more signal
// than the flag does.
type VerificationView struct {
	TokenID       id.TokenID       `json:"token_id"`
	DocHash       id.Digest        `json:"doc_hash"`
	Issuer        id.IssuerAddress `json:"issuer"`
	RecordType    id.RecordType    `json:"record_type"`
	Status        TokenStatus      `json:"status"`
	ExpiresAt     time.Time        `json:"expires_at"`
	NonceMismatch bool             `json:"nonce_mismatch"`
}

// NewVerificationView projects a record into its public view, applying the
// view-time expiry rule and the nonce comparison.
func NewVerificationView(record *TokenRecord, presentedNonce string, now time.Time) VerificationView {
	return VerificationView{
		TokenID:       record.ID,
		DocHash:       record.DocHash,
		Issuer:        record.Issuer,
		RecordType:    record.RecordType,
		Status:        record.EffectiveStatus(now),
		ExpiresAt:     record.ExpiresAt,
		NonceMismatch: record.Nonce != presentedNonce,
	}
}
