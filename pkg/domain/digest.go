package domain

import (
	"encoding/hex"

	dErrors "attesto/pkg/domain-errors"
)

// DigestSize is the byte length of a document hash commitment.
const DigestSize = 32

// Digest is a 32-byte hash commitment to an off-chain document. The ledger
// stores and compares digests; it never sees document content.
//
// Usage: construct via ParseDigest at trust boundaries; comparison is
// byte-exact via Equal. Digests are immutable values.
type Digest [DigestSize]byte

// ParseDigest constructs a Digest from a hex string.
//
// Errors: returns CodeInvalidInput when the value is empty, not valid hex, or
// does not decode to exactly 32 bytes. Both hex cases are accepted; String
// always emits lowercase.
func ParseDigest(s string) (Digest, error) {
	if s == "" {
		return Digest{}, dErrors.New(dErrors.CodeInvalidInput, "digest cannot be empty")
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != DigestSize {
		return Digest{}, dErrors.New(dErrors.CodeInvalidInput, "digest must be 64 hex characters")
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// Equal reports byte-exact equality with other.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// IsZero reports whether the digest is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the lowercase hex representation.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText implements encoding.TextMarshaler so digests serialize as hex
// in JSON payloads and map keys.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler with full validation.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
