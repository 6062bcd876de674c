// Package leveldb persists token records in a LevelDB database shared with
// the event log, so a transition and its event land in one write batch.
// Records live under "tok:" keys; transitions serialize on the per-token lock
// table since LevelDB has no row locks of its own.
package leveldb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goleveldb "github.com/syndtr/goleveldb/leveldb"

	"attesto/internal/eventlog"
	ldblog "attesto/internal/eventlog/store/leveldb"
	"attesto/internal/ledger/models"
	"attesto/internal/ledger/store/lock"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
)

const recordPrefix = "tok:"

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested token does not exist
// - Return ErrAlreadyUsed when a mint hits an existing token id
// - Return ErrContended when the per-token lock wait expires
// - Validate callback errors pass through unchanged

// Store keeps token records in the same database as the event log. The log
// must be constructed over db; batches built through it carry both the event
// and the record write.
type Store struct {
	db    *goleveldb.DB
	log   *ldblog.Log
	locks *lock.Table
}

type Option func(*Store)

// WithLockWait bounds per-token lock acquisition. Defaults to lock.DefaultWait.
func WithLockWait(wait time.Duration) Option {
	return func(s *Store) {
		s.locks = lock.NewTable(wait)
	}
}

// New constructs a store over db, committing events through log.
func New(db *goleveldb.DB, log *ldblog.Log, opts ...Option) *Store {
	s := &Store{
		db:    db,
		log:   log,
		locks: lock.NewTable(lock.DefaultWait),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordKey(tokenID id.TokenID) []byte {
	key := make([]byte, len(recordPrefix)+len(tokenID))
	copy(key, recordPrefix)
	copy(key[len(recordPrefix):], tokenID[:])
	return key
}

// Mint creates the record and appends its minted event in one batch.
func (s *Store) Mint(ctx context.Context, record *models.TokenRecord, entry eventlog.Entry) (eventlog.Entry, error) {
	release, err := s.locks.Acquire(ctx, record.ID)
	if err != nil {
		return eventlog.Entry{}, err
	}
	defer release()

	key := recordKey(record.ID)
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return eventlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "probe token record")
	}
	if exists {
		return eventlog.Entry{}, fmt.Errorf("token id taken: %w", sentinel.ErrAlreadyUsed)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return eventlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode token record")
	}
	return s.log.AppendWith(ctx, entry, func(b *goleveldb.Batch) {
		b.Put(key, raw)
	})
}

// Find returns the stored record.
func (s *Store) Find(_ context.Context, tokenID id.TokenID) (*models.TokenRecord, error) {
	raw, err := s.db.Get(recordKey(tokenID), nil)
	switch {
	case err == goleveldb.ErrNotFound:
		return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read token record")
	}

	var record models.TokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode token record")
	}
	return &record, nil
}

// Execute linearizes one transition under the per-token lock and commits the
// mutated record together with the event apply builds, in one batch.
func (s *Store) Execute(ctx context.Context, tokenID id.TokenID, validate func(*models.TokenRecord) error, apply func(*models.TokenRecord) eventlog.Entry) (*models.TokenRecord, eventlog.Entry, error) {
	release, err := s.locks.Acquire(ctx, tokenID)
	if err != nil {
		return nil, eventlog.Entry{}, err
	}
	defer release()

	record, err := s.Find(ctx, tokenID)
	if err != nil {
		return nil, eventlog.Entry{}, err
	}

	if err := validate(record); err != nil {
		return nil, eventlog.Entry{}, err
	}
	entry := apply(record)

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, eventlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode token record")
	}
	sealed, err := s.log.AppendWith(ctx, entry, func(b *goleveldb.Batch) {
		b.Put(recordKey(tokenID), raw)
	})
	if err != nil {
		return nil, eventlog.Entry{}, err
	}
	return record, sealed, nil
}
