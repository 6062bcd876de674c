package domain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	dErrors "attesto/pkg/domain-errors"
)

// Typed identifiers for the ledger domain. Construct via the Parse* functions
// at trust boundaries; direct casting bypasses validation.

// TokenID identifies a proof token. It is derived at mint time with a keyed
// hash so identifiers are collision-free and cannot be predicted from public
// inputs alone.
type TokenID [32]byte

// ParseTokenID constructs a TokenID from external hex input.
//
// Errors: returns CodeInvalidInput when the value is empty, not 64 hex
// characters, or all zero.
func ParseTokenID(s string) (TokenID, error) {
	if s == "" {
		return TokenID{}, dErrors.New(dErrors.CodeInvalidInput, "token id cannot be empty")
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return TokenID{}, dErrors.New(dErrors.CodeInvalidInput, "token id must be 64 hex characters")
	}
	var id TokenID
	copy(id[:], raw)
	if id.IsZero() {
		return TokenID{}, dErrors.New(dErrors.CodeInvalidInput, "token id cannot be zero")
	}
	return id, nil
}

// DeriveTokenID computes the identifier minted for (issuer, nonce, docHash).
// The hash is keyed with the ledger's private derivation key; without the key
// an identifier cannot be computed from the public inputs.
func DeriveTokenID(key []byte, issuer IssuerAddress, nonce string, doc Digest) (TokenID, error) {
	if len(key) == 0 {
		return TokenID{}, dErrors.New(dErrors.CodeInternal, "token derivation key is required")
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return TokenID{}, dErrors.Wrap(err, dErrors.CodeInternal, "token id derivation init failed")
	}
	// Length-prefixed fields keep the input encoding unambiguous.
	for _, field := range [][]byte{[]byte(issuer), []byte(nonce), doc[:]} {
		var n [2]byte
		binary.BigEndian.PutUint16(n[:], uint16(len(field)))
		h.Write(n[:])
		h.Write(field)
	}
	var id TokenID
	copy(id[:], h.Sum(nil))
	return id, nil
}

// IsZero reports whether the id is the zero value.
func (id TokenID) IsZero() bool {
	return id == TokenID{}
}

// String returns the lowercase hex representation.
func (id TokenID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id TokenID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler with full validation.
func (id *TokenID) UnmarshalText(text []byte) error {
	parsed, err := ParseTokenID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IssuerAddress identifies an issuing institution: the lowercase hex SHA-256
// of its primary Ed25519 public key. Addresses are stable across key
// rotation.
type IssuerAddress string

// ParseIssuerAddress constructs an IssuerAddress from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or not 64 hex
// characters. Uppercase input is normalized to lowercase.
func ParseIssuerAddress(s string) (IssuerAddress, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "issuer address cannot be empty")
	}
	if len(s) != 64 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "issuer address must be 64 hex characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "issuer address must be 64 hex characters")
	}
	return IssuerAddress(strings.ToLower(s)), nil
}

// AddressFromKey derives the issuer address from an Ed25519 public key.
func AddressFromKey(pub ed25519.PublicKey) IssuerAddress {
	sum := sha256.Sum256(pub)
	return IssuerAddress(hex.EncodeToString(sum[:]))
}

// String returns the string representation of the address.
func (a IssuerAddress) String() string {
	return string(a)
}

// IsZero reports whether the address is empty.
func (a IssuerAddress) IsZero() bool {
	return a == ""
}

// EventID identifies an audit event record.
type EventID uuid.UUID

// NewEventID returns a random event identifier.
func NewEventID() EventID {
	return EventID(uuid.New())
}

// ParseEventID constructs an EventID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the
// nil UUID.
func ParseEventID(s string) (EventID, error) {
	if s == "" {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id cannot be nil")
	}
	return EventID(parsed), nil
}

// String returns the canonical UUID string.
func (e EventID) String() string {
	return uuid.UUID(e).String()
}

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler with full validation.
func (e *EventID) UnmarshalText(text []byte) error {
	parsed, err := ParseEventID(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
