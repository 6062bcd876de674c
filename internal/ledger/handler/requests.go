package handler

import (
	"strings"
	"time"

	"attesto/internal/ledger/models"
	"attesto/internal/presentation"
	regmodels "attesto/internal/registry/models"
	dErrors "attesto/pkg/domain-errors"

	id "attesto/pkg/domain"
)

// MintTokenRequest is the POST /tokens payload. The body must already have
// cleared the embedded JSON schema; Validate parses the domain identifiers
// the schema could only shape-check.
type MintTokenRequest struct {
	Issuer        string                  `json:"issuer"`
	DocHash       string                  `json:"doc_hash"`
	RecordType    string                  `json:"record_type"`
	ExpirySeconds int64                   `json:"expiry_seconds"`
	Nonce         string                  `json:"nonce"`
	LocatorHint   string                  `json:"locator_hint,omitempty"`
	Command       regmodels.SignedCommand `json:"command"`

	issuer     id.IssuerAddress
	docHash    id.Digest
	recordType id.RecordType
}

// Validate parses the identifier fields. Shape errors are already caught by
// the schema, so failures here mean semantically invalid values.
func (r *MintTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	issuer, err := id.ParseIssuerAddress(r.Issuer)
	if err != nil {
		return err
	}
	docHash, err := id.ParseDigest(r.DocHash)
	if err != nil {
		return err
	}
	recordType, err := id.ParseRecordType(r.RecordType)
	if err != nil {
		return err
	}
	if r.ExpirySeconds <= 0 {
		return dErrors.New(dErrors.CodeValidation, "expiry_seconds must be positive")
	}
	r.Nonce = strings.TrimSpace(r.Nonce)
	if r.Nonce == "" {
		return dErrors.New(dErrors.CodeValidation, "nonce is required")
	}
	r.issuer, r.docHash, r.recordType = issuer, docHash, recordType
	return nil
}

// ToCommand builds the mint command for the authenticated actor. Only valid
// after Validate.
func (r *MintTokenRequest) ToCommand(actor string) models.MintCommand {
	return models.MintCommand{
		Issuer:      r.issuer,
		DocHash:     r.docHash,
		RecordType:  r.recordType,
		Expiry:      time.Duration(r.ExpirySeconds) * time.Second,
		Nonce:       r.Nonce,
		LocatorHint: strings.TrimSpace(r.LocatorHint),
		Actor:       actor,
		Command:     r.Command,
	}
}

// VerifyTokenRequest is the POST /tokens/verify payload. Scanners that read a
// QR code send the payload string as-is; integrations that already split it
// send token_id and nonce. Exactly one of the two forms is accepted.
type VerifyTokenRequest struct {
	Payload string `json:"payload,omitempty"`
	TokenID string `json:"token_id,omitempty"`
	Nonce   string `json:"nonce,omitempty"`

	tokenID id.TokenID
	nonce   string
}

func (r *VerifyTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if r.Payload != "" {
		if r.TokenID != "" || r.Nonce != "" {
			return dErrors.New(dErrors.CodeValidation, "provide either payload or token_id and nonce, not both")
		}
		decoded, err := presentation.Decode(r.Payload)
		if err != nil {
			return err
		}
		r.tokenID, r.nonce = decoded.TokenID, decoded.Nonce
		return nil
	}

	tokenID, err := id.ParseTokenID(r.TokenID)
	if err != nil {
		return err
	}
	r.tokenID, r.nonce = tokenID, r.Nonce
	return nil
}

// ParsedTokenID returns the token id named by either request form. Only valid
// after Validate.
func (r *VerifyTokenRequest) ParsedTokenID() id.TokenID {
	return r.tokenID
}

// PresentedNonce returns the nonce to check the stored one against. Only
// valid after Validate.
func (r *VerifyTokenRequest) PresentedNonce() string {
	return r.nonce
}

// ConsumeTokenRequest is the POST /tokens/{token_id}/consume payload. The
// command is optional: issuer systems attach a signed command, relying
// parties rely on their consume-scoped bearer token.
type ConsumeTokenRequest struct {
	Nonce   string                  `json:"nonce"`
	Command regmodels.SignedCommand `json:"command,omitempty"`
}

func (r *ConsumeTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	r.Nonce = strings.TrimSpace(r.Nonce)
	if r.Nonce == "" {
		return dErrors.New(dErrors.CodeValidation, "nonce is required")
	}
	return nil
}

// RevokeTokenRequest is the POST /tokens/{token_id}/revoke payload. The
// signature bundle may be empty for non-sensitive record types; the service
// counts signatures against the issuer's policy either way.
type RevokeTokenRequest struct {
	Reason  string                  `json:"reason,omitempty"`
	Command regmodels.SignedCommand `json:"command,omitempty"`
}

func (r *RevokeTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > 512 {
		return dErrors.New(dErrors.CodeValidation, "reason exceeds 512 characters")
	}
	return nil
}
