// Package eventlog defines the append-only transition log: every successful
// mint, consume, and revoke lands here with a gap-free sequence number and a
// hash chain that makes tampering detectable by an external auditor.
//
// Entries are immutable once appended. Sequence numbers are assigned by the
// backing store under its commit ordering, so event order is consistent with
// the order token transitions committed.
package eventlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// Kind names a recorded transition.
type Kind string

const (
	KindMinted   Kind = "minted"
	KindConsumed Kind = "consumed"
	KindRevoked  Kind = "revoked"
)

// GenesisHash is the PrevHash of the first entry in a log.
var GenesisHash = strings.Repeat("0", 64)

// Entry is one immutable transition record.
type Entry struct {
	// Sequence is assigned at append time: strictly increasing, gap-free,
	// starting at 1.
	Sequence uint64 `json:"sequence"`
	// ID deduplicates downstream delivery (export relay, outbox consumers).
	ID      id.EventID       `json:"id"`
	TokenID id.TokenID       `json:"token_id"`
	Kind    Kind             `json:"kind"`
	Actor   string           `json:"actor"`
	Issuer  id.IssuerAddress `json:"issuer"`
	// PriorStatus and NewStatus record the stored statuses around the
	// transition ("" prior for mint).
	PriorStatus string    `json:"prior_status"`
	NewStatus   string    `json:"new_status"`
	Timestamp   time.Time `json:"timestamp"`
	// Meta carries operation annotations (device label, revoke reason).
	Meta map[string]string `json:"meta,omitempty"`

	// PrevHash and EntryHash chain entries together.
	PrevHash  string `json:"prev_hash"`
	EntryHash string `json:"entry_hash"`
}

// Seal assigns chain position: sequence, previous hash, and this entry's
// hash. Stores call it while holding their append lock. The timestamp is
// normalized to UTC microseconds so the hash still verifies after a round
// trip through a backend with microsecond precision.
func (e Entry) Seal(prevSeq uint64, prevHash string) Entry {
	e.Sequence = prevSeq + 1
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	if prevHash == "" {
		prevHash = GenesisHash
	}
	e.PrevHash = prevHash
	e.EntryHash = e.computeHash()
	return e
}

// computeHash digests the canonical field encoding, including PrevHash, so
// any later edit to an entry or its position breaks the chain.
func (e Entry) computeHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s|%d|",
		e.Sequence, e.ID, e.TokenID, e.Kind, e.Actor, e.Issuer,
		e.PriorStatus, e.NewStatus, e.Timestamp.UTC().UnixNano(),
	)
	// Canonicalize meta by sorted key so hashing is deterministic.
	keys := make([]string, 0, len(e.Meta))
	for k := range e.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s|", k, e.Meta[k])
	}
	fmt.Fprintf(h, "%s", e.PrevHash)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the entry hash and reports whether it matches.
func (e Entry) Verify() bool {
	return e.EntryHash == e.computeHash()
}

// Log is the append-only view stores implement. Append assigns the sequence
// and hashes under the store's commit ordering.
type Log interface {
	// Append seals and persists the entry, returning it with Sequence,
	// PrevHash, and EntryHash populated.
	Append(ctx context.Context, e Entry) (Entry, error)
	// Range returns entries with from <= Sequence <= to in order. Sequences
	// beyond the head yield a shorter (possibly empty) result, not an error.
	Range(ctx context.Context, from, to uint64) ([]Entry, error)
	// Head returns the highest assigned sequence, 0 when the log is empty.
	Head(ctx context.Context) (uint64, error)
}

// CursorStore persists relay checkpoints so export resumes after restart.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (uint64, error)
	SaveCursor(ctx context.Context, name string, seq uint64) error
}

// ValidateRange rejects inverted ranges before a store touches its backend.
func ValidateRange(from, to uint64) error {
	if from > to {
		return dErrors.New(dErrors.CodeInvalidInput, "range start must not exceed range end")
	}
	return nil
}

// VerifyChain walks entries (which must be a contiguous ascending range) and
// verifies sequence continuity and hash linkage. The first entry's PrevHash
// is trusted as the anchor.
func VerifyChain(entries []Entry) error {
	for i, e := range entries {
		if !e.Verify() {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("entry %d hash mismatch", e.Sequence))
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Sequence != prev.Sequence+1 {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("sequence gap between %d and %d", prev.Sequence, e.Sequence))
		}
		if e.PrevHash != prev.EntryHash {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("chain break at entry %d", e.Sequence))
		}
	}
	return nil
}
