// Package verifier isolates signature checking behind a small port so the
// registry never handles private key material and tests can stub validity.
package verifier

import (
	"crypto/ed25519"
)

// Verifier reports whether sig is a valid signature over message by key.
type Verifier interface {
	Verify(message, sig []byte, key ed25519.PublicKey) bool
}

// Ed25519Verifier verifies Ed25519 signatures.
type Ed25519Verifier struct{}

func NewEd25519() Ed25519Verifier {
	return Ed25519Verifier{}
}

func (Ed25519Verifier) Verify(message, sig []byte, key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(key, message, sig)
}
