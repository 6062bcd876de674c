package handler

import (
	"time"

	"attesto/internal/ledger/models"
)

// mintTokenResponse returns the minted identity plus the encoded presentation
// payload the issuer renders into the patient's QR code.
type mintTokenResponse struct {
	TokenID   string    `json:"token_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Payload   string    `json:"payload"`
}

// verifyTokenResponse has one shape for every outcome: a nonce mismatch flips
// the flag instead of changing the structure, so callers cannot probe which
// part of a presentation was wrong.
type verifyTokenResponse struct {
	TokenID       string    `json:"token_id"`
	DocHash       string    `json:"doc_hash"`
	Issuer        string    `json:"issuer"`
	RecordType    string    `json:"record_type"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
	NonceMismatch bool      `json:"nonce_mismatch"`
}

// transitionResponse acknowledges a consume or revoke.
type transitionResponse struct {
	TokenID string `json:"token_id"`
	Status  string `json:"status"`
}

func toVerifyResponse(view models.VerificationView) verifyTokenResponse {
	return verifyTokenResponse{
		TokenID:       view.TokenID.String(),
		DocHash:       view.DocHash.String(),
		Issuer:        view.Issuer.String(),
		RecordType:    string(view.RecordType),
		Status:        view.Status.String(),
		ExpiresAt:     view.ExpiresAt,
		NonceMismatch: view.NonceMismatch,
	}
}
