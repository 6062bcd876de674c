// Package lock provides the bounded per-token lock table the embedded ledger
// stores use to serialize transitions. One capacity-1 channel per token id:
// holders of different ids never contend, and a waiter gives up after the
// configured wait instead of blocking a caller indefinitely.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
)

// DefaultWait bounds lock acquisition when the caller does not override it.
const DefaultWait = 2 * time.Second

// Table hands out per-token locks on demand. Channels are created lazily and
// kept for the table's lifetime; the ledger's working set of distinct tokens
// is what bounds its size.
type Table struct {
	mu    sync.Mutex
	locks map[id.TokenID]chan struct{}
	wait  time.Duration
}

// NewTable constructs a lock table with the given acquisition bound. A
// non-positive wait falls back to DefaultWait.
func NewTable(wait time.Duration) *Table {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Table{
		locks: make(map[id.TokenID]chan struct{}),
		wait:  wait,
	}
}

// Wait returns the configured acquisition bound.
func (t *Table) Wait() time.Duration {
	return t.wait
}

// Acquire takes the lock for tokenID, waiting at most the configured bound.
// It returns the release function on success. An exceeded wait returns
// sentinel.ErrContended so callers can surface a retryable error; context
// cancellation is passed through.
func (t *Table) Acquire(ctx context.Context, tokenID id.TokenID) (func(), error) {
	lock := t.lock(tokenID)

	timer := time.NewTimer(t.wait)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-timer.C:
		return nil, fmt.Errorf("token lock wait exceeded %s: %w", t.wait, sentinel.ErrContended)
	case <-ctx.Done():
		return nil, fmt.Errorf("token lock wait canceled: %w", ctx.Err())
	}
}

func (t *Table) lock(tokenID id.TokenID) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[tokenID]
	if !ok {
		lock = make(chan struct{}, 1)
		t.locks[tokenID] = lock
	}
	return lock
}
