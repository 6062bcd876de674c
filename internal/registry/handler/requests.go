package handler

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// RegisterIssuerRequest is the POST /admin/issuers payload. Keys are
// hex-encoded Ed25519 public keys, the same format the seed file uses. An
// absent policy registers the issuer without a signing policy.
type RegisterIssuerRequest struct {
	Name   string            `json:"name"`
	Keys   []string          `json:"keys"`
	Policy *id.SigningPolicy `json:"policy,omitempty"`

	decoded []ed25519.PublicKey
}

// Normalize trims surrounding whitespace from the name and key strings.
func (r *RegisterIssuerRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	for i, k := range r.Keys {
		r.Keys[i] = strings.TrimSpace(k)
	}
}

// Validate checks shape and decodes the key material. Domain invariants
// (policy totals, duplicate addresses) are the service's job.
func (r *RegisterIssuerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	r.Normalize()
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Keys) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one key is required")
	}
	keys, err := decodeHexKeys(r.Keys)
	if err != nil {
		return err
	}
	r.decoded = keys
	if r.Policy != nil {
		if err := r.Policy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PublicKeys returns the decoded key set. Only populated after Validate.
func (r *RegisterIssuerRequest) PublicKeys() []ed25519.PublicKey {
	return r.decoded
}

// SigningPolicy returns the requested policy, defaulting to none.
func (r *RegisterIssuerRequest) SigningPolicy() id.SigningPolicy {
	if r.Policy == nil {
		return id.NoPolicy()
	}
	return *r.Policy
}

// RotateKeyRequest is the POST /admin/issuers/{address}/rotate payload. The
// proof payload must be signed by a current key, or by enough keys to satisfy
// the issuer's signing policy when the signing key itself was lost.
type RotateKeyRequest struct {
	NewKey string               `json:"new_key"`
	Proof  models.SignedCommand `json:"proof"`

	decoded ed25519.PublicKey
}

// Validate checks shape and decodes the replacement key.
func (r *RotateKeyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	r.NewKey = strings.TrimSpace(r.NewKey)
	if r.NewKey == "" {
		return dErrors.New(dErrors.CodeValidation, "new_key is required")
	}
	keys, err := decodeHexKeys([]string{r.NewKey})
	if err != nil {
		return err
	}
	r.decoded = keys[0]
	return nil
}

// PublicKey returns the decoded replacement key. Only populated after Validate.
func (r *RotateKeyRequest) PublicKey() ed25519.PublicKey {
	return r.decoded
}

// IssuerCommandRequest carries the signed command for suspend and revoke.
// The signature bundle may be empty for issuers registered without a signing
// policy; the service counts signatures against the policy either way.
type IssuerCommandRequest struct {
	Command models.SignedCommand `json:"command"`
}

func decodeHexKeys(hexKeys []string) ([]ed25519.PublicKey, error) {
	keys := make([]ed25519.PublicKey, 0, len(hexKeys))
	for i, h := range hexKeys {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("key %d is not valid hex", i))
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("key %d must be %d bytes", i, ed25519.PublicKeySize))
		}
		keys = append(keys, ed25519.PublicKey(raw))
	}
	return keys, nil
}
