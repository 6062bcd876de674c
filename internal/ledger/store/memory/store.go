// Package memory keeps token records in process memory for tests and
// single-node development. Transitions serialize on the per-token lock table
// and commit together with their event under the event log's append lock, so
// even the in-memory ledger never shows a transition without its event.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"attesto/internal/eventlog"
	memlog "attesto/internal/eventlog/store/memory"
	"attesto/internal/ledger/models"
	"attesto/internal/ledger/store/lock"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested token does not exist
// - Return ErrAlreadyUsed when a mint hits an existing token id
// - Return ErrContended when the per-token lock wait expires
// - Validate callback errors pass through unchanged

// Store holds token records and commits transitions through the shared
// in-memory event log.
type Store struct {
	mu      sync.RWMutex
	records map[id.TokenID]*models.TokenRecord

	locks *lock.Table
	log   *memlog.Log
}

type Option func(*Store)

// WithLockWait bounds per-token lock acquisition. Defaults to lock.DefaultWait.
func WithLockWait(wait time.Duration) Option {
	return func(s *Store) {
		s.locks = lock.NewTable(wait)
	}
}

// New constructs an empty store writing events to log.
func New(log *memlog.Log, opts ...Option) *Store {
	s := &Store{
		records: make(map[id.TokenID]*models.TokenRecord),
		locks:   lock.NewTable(lock.DefaultWait),
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint creates the record and appends its minted event as one atomic step.
func (s *Store) Mint(ctx context.Context, record *models.TokenRecord, entry eventlog.Entry) (eventlog.Entry, error) {
	release, err := s.locks.Acquire(ctx, record.ID)
	if err != nil {
		return eventlog.Entry{}, err
	}
	defer release()

	s.mu.RLock()
	_, exists := s.records[record.ID]
	s.mu.RUnlock()
	if exists {
		return eventlog.Entry{}, fmt.Errorf("token id taken: %w", sentinel.ErrAlreadyUsed)
	}

	stored := record.Clone()
	return s.log.AppendWithin(ctx, entry, func(eventlog.Entry) error {
		s.mu.Lock()
		s.records[stored.ID] = stored
		s.mu.Unlock()
		return nil
	})
}

// Find returns a copy of the record. Reads never wait on transition locks.
func (s *Store) Find(_ context.Context, tokenID id.TokenID) (*models.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[tokenID]; ok {
		return record.Clone(), nil
	}
	return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
}

// Execute linearizes one transition: it loads the record under the per-token
// lock, runs validate, lets apply mutate a working copy and build the event,
// then commits record and event together. Readers observe either the old or
// the new committed state, never the working copy.
func (s *Store) Execute(ctx context.Context, tokenID id.TokenID, validate func(*models.TokenRecord) error, apply func(*models.TokenRecord) eventlog.Entry) (*models.TokenRecord, eventlog.Entry, error) {
	release, err := s.locks.Acquire(ctx, tokenID)
	if err != nil {
		return nil, eventlog.Entry{}, err
	}
	defer release()

	s.mu.RLock()
	current, ok := s.records[tokenID]
	s.mu.RUnlock()
	if !ok {
		return nil, eventlog.Entry{}, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}

	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, eventlog.Entry{}, err
	}
	entry := apply(next)

	sealed, err := s.log.AppendWithin(ctx, entry, func(eventlog.Entry) error {
		s.mu.Lock()
		s.records[tokenID] = next
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, eventlog.Entry{}, err
	}
	return next.Clone(), sealed, nil
}
