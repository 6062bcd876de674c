// Package presentation encodes the proof a wallet presents and a scanner
// reads back. The payload carries only the token id and the single-use nonce;
// no document content, no issuer detail. Rendering it as a QR image is the
// wallet's job.
//
// Wire format: "<version>." followed by unpadded base64url JSON. The version
// rides outside the encoded body so a decoder can dispatch before parsing.
package presentation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	dErrors "attesto/pkg/domain-errors"

	id "attesto/pkg/domain"
)

// Payload is the decoded presentation: which token is being presented and the
// nonce that proves possession of the original issuance.
type Payload struct {
	TokenID id.TokenID
	Nonce   string
}

type wirePayload struct {
	TokenID string `json:"token_id"`
	Nonce   string `json:"nonce"`
}

// Encode renders the payload in the current wire version.
func Encode(p Payload) (string, error) {
	if p.TokenID.IsZero() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	if p.Nonce == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nonce is required")
	}
	body, err := json.Marshal(wirePayload{TokenID: p.TokenID.String(), Nonce: p.Nonce})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode payload")
	}
	return id.DefaultVersion().String() + "." + base64.RawURLEncoding.EncodeToString(body), nil
}

// Decode parses a presented payload string. Every malformation is an invalid
// input error naming what broke; Decode never panics on scanner garbage.
func Decode(s string) (Payload, error) {
	version, body, found := strings.Cut(s, ".")
	if !found {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput, "payload is missing a version prefix")
	}
	v, err := id.ParsePayloadVersion(version)
	if err != nil {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("unsupported payload version %q", version))
	}
	if !id.DefaultVersion().IsAtLeast(v) {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("payload version %q is newer than this decoder", version))
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput, "payload body is not valid base64url")
	}
	var wire wirePayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput, "payload body is not valid JSON")
	}

	tokenID, err := id.ParseTokenID(wire.TokenID)
	if err != nil {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput, "payload token id is malformed")
	}
	if wire.Nonce == "" {
		return Payload{}, dErrors.New(dErrors.CodeInvalidInput, "payload nonce is empty")
	}
	return Payload{TokenID: tokenID, Nonce: wire.Nonce}, nil
}
