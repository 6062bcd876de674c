// Package vault carries the storage side effect of revocation. A revoked
// token's ciphertext must be purged from encrypted document storage, so the
// ledger hands a DeleteInstruction to a StorageNotifier once the transition
// has committed. Delivery and retry are the notifier's concern; the ledger
// never blocks a revocation on storage.
package vault

import (
	"context"

	id "attesto/pkg/domain"
)

// DeleteInstruction tells the storage layer which ciphertext to purge.
// Locator is the opaque hint captured at mint time ("" when the issuer did
// not supply one; storage then resolves by document hash).
type DeleteInstruction struct {
	TokenID id.TokenID `json:"token_id"`
	DocHash id.Digest  `json:"doc_hash"`
	Locator string     `json:"locator,omitempty"`
}

// StorageNotifier receives delete instructions for revoked tokens.
type StorageNotifier interface {
	NotifyDelete(ctx context.Context, instruction DeleteInstruction) error
}

// Noop discards instructions. Deployments without a document vault (or local
// development) wire this in.
type Noop struct{}

func (Noop) NotifyDelete(context.Context, DeleteInstruction) error { return nil }
