package domain

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attesto/pkg/domain-errors"
)

// TestParseTokenID_Invariants validates the parsing invariant:
// "token ids must be exactly 32 bytes of hex and never the zero value"
//
// Justification: This is a pure function enforcing a domain invariant
// at trust boundaries.
func TestParseTokenID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTokenID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTokenID("not-a-token-id")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects zero id", func(t *testing.T) {
		_, err := ParseTokenID(strings.Repeat("0", 64))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects truncated id", func(t *testing.T) {
		_, err := ParseTokenID(strings.Repeat("ab", 31))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid id and round-trips", func(t *testing.T) {
		id, err := DeriveTokenID([]byte("test-derivation-key"), "issuer", "nonce-1", Digest{1, 2, 3})
		require.NoError(t, err)

		parsed, err := ParseTokenID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})
}

// TestParseTokenID_SecurityInvariants validates security-critical parsing rules.
//
// Justification: These are trust boundary invariants - parsing must reject
// attack vectors at API entry points.
func TestParseTokenID_SecurityInvariants(t *testing.T) {
	valid := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE tokens;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", valid[:32] + "\x00" + valid[33:], true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", valid[:32] + "​" + valid[33:], true},

		// Edge cases
		{"Empty string", "", true},
		{"All-zero id", strings.Repeat("0", 64), true},
		{"Whitespace only", "    ", true},
		{"Uppercase hex", strings.ToUpper(valid), false},

		// Valid
		{"Valid lowercase hex", valid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTokenID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestDeriveTokenID_Unpredictability encodes the invariant that identifiers
// are keyed: the same public inputs under different keys yield different ids,
// and any input change yields a different id.
func TestDeriveTokenID_Unpredictability(t *testing.T) {
	doc := Digest{9, 9, 9}

	base, err := DeriveTokenID([]byte("key-a"), "issuer-1", "nonce-1", doc)
	require.NoError(t, err)

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		again, err := DeriveTokenID([]byte("key-a"), "issuer-1", "nonce-1", doc)
		require.NoError(t, err)
		assert.Equal(t, base, again)
	})

	t.Run("different key changes id", func(t *testing.T) {
		other, err := DeriveTokenID([]byte("key-b"), "issuer-1", "nonce-1", doc)
		require.NoError(t, err)
		assert.NotEqual(t, base, other)
	})

	t.Run("different nonce changes id", func(t *testing.T) {
		other, err := DeriveTokenID([]byte("key-a"), "issuer-1", "nonce-2", doc)
		require.NoError(t, err)
		assert.NotEqual(t, base, other)
	})

	t.Run("field boundaries are unambiguous", func(t *testing.T) {
		// "issuer-1"+"nonce" must not collide with "issuer-"+"1nonce".
		a, err := DeriveTokenID([]byte("key-a"), "issuer-1", "nonce", doc)
		require.NoError(t, err)
		b, err := DeriveTokenID([]byte("key-a"), "issuer-", "1nonce", doc)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := DeriveTokenID(nil, "issuer-1", "nonce-1", doc)
		require.Error(t, err)
	})
}

// TestParseIssuerAddress_Invariants validates address parsing and
// normalization.
func TestParseIssuerAddress_Invariants(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr := AddressFromKey(pub)

	t.Run("derived address is valid", func(t *testing.T) {
		parsed, err := ParseIssuerAddress(addr.String())
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
	})

	t.Run("uppercase normalizes to lowercase", func(t *testing.T) {
		parsed, err := ParseIssuerAddress(strings.ToUpper(addr.String()))
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseIssuerAddress("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ParseIssuerAddress("abcd")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ParseIssuerAddress(strings.Repeat("zz", 32))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	tokenID := TokenID{1}
	var docHash Digest = [32]byte{1}

	// These would fail to compile if types were interchangeable:
	// var _ TokenID = docHash   // compile error
	// var _ Digest = tokenID    // compile error

	// Same bytes, distinct types; verify values survive conversion intact.
	assert.Equal(t, [32]byte(tokenID), [32]byte(docHash))
}
