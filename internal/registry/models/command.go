package models

import id "attesto/pkg/domain"

// Signature is one signer's contribution to a command: the public key that
// produced it (so verification does not have to try every registered key)
// and the Ed25519 signature over the command payload.
type Signature struct {
	PublicKey []byte `json:"public_key"`
	Value     []byte `json:"signature"`
}

// SignedCommand carries the exact bytes an issuer signed plus the signature
// bundle. The registry verifies signatures over Payload as-is; callers are
// responsible for binding the payload to the operation they request.
type SignedCommand struct {
	Payload    []byte      `json:"payload"`
	Signatures []Signature `json:"signatures"`
}

// Operation is the command class presented for authorization. Sensitive marks
// commands that must clear the issuer's signing policy quorum; for revoke
// that depends on the record type of the target token, which only the caller
// knows.
type Operation struct {
	Kind      string
	Sensitive bool
}

var (
	OpMint    = Operation{Kind: "mint"}
	OpConsume = Operation{Kind: "consume"}
	OpRotate  = Operation{Kind: "rotate"}
	OpSuspend = Operation{Kind: "suspend", Sensitive: true}
)

// OpRevoke builds the revoke operation for tokens of the given record type.
func OpRevoke(rt id.RecordType) Operation {
	return Operation{Kind: "revoke", Sensitive: rt.Sensitive()}
}
