// Package leveldb persists the event log in a LevelDB database. Entries are
// stored under big-endian sequence keys so natural key order is sequence
// order, and every append goes through one write batch so the head pointer
// can never drift from the entries.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"

	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"attesto/internal/eventlog"
	dErrors "attesto/pkg/domain-errors"
)

const (
	entryPrefix  = "evt:"
	cursorPrefix = "evtcur:"
	headKey      = "evtmeta:head"
)

// Log stores entries in a LevelDB database, which may be shared with the
// token record store so both sides of a transition commit in one batch.
type Log struct {
	db *goleveldb.DB

	// mu orders appends; head and lastHash mirror the persisted state so an
	// append needs no reads.
	mu       sync.Mutex
	head     uint64
	lastHash string
}

// NewLog wraps an open database and recovers the head position from it.
func NewLog(db *goleveldb.DB) (*Log, error) {
	l := &Log{db: db}

	raw, err := db.Get([]byte(headKey), nil)
	switch {
	case err == goleveldb.ErrNotFound:
		return l, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read event log head")
	}

	l.head = binary.BigEndian.Uint64(raw)
	if l.head == 0 {
		return l, nil
	}
	last, err := l.get(l.head)
	if err != nil {
		return nil, err
	}
	l.lastHash = last.EntryHash
	return l, nil
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], seq)
	return key
}

// Append seals and writes the entry in its own batch.
func (l *Log) Append(ctx context.Context, e eventlog.Entry) (eventlog.Entry, error) {
	return l.AppendWith(ctx, e, nil)
}

// AppendWith seals the entry and writes it together with whatever the caller
// adds to the batch. The ledger record store uses this to commit a token
// transition and its event atomically.
func (l *Log) AppendWith(_ context.Context, e eventlog.Entry, extra func(*goleveldb.Batch)) (eventlog.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sealed := e.Seal(l.head, l.lastHash)
	raw, err := json.Marshal(sealed)
	if err != nil {
		return eventlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode event entry")
	}

	headBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(headBuf, sealed.Sequence)

	batch := new(goleveldb.Batch)
	batch.Put(entryKey(sealed.Sequence), raw)
	batch.Put([]byte(headKey), headBuf)
	if extra != nil {
		extra(batch)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return eventlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "write event entry")
	}

	l.head = sealed.Sequence
	l.lastHash = sealed.EntryHash
	return sealed, nil
}

func (l *Log) get(seq uint64) (eventlog.Entry, error) {
	raw, err := l.db.Get(entryKey(seq), nil)
	if err != nil {
		return eventlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "read event entry")
	}
	var e eventlog.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return eventlog.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode event entry")
	}
	return e, nil
}

// Range returns entries with from <= Sequence <= to.
func (l *Log) Range(_ context.Context, from, to uint64) ([]eventlog.Entry, error) {
	if err := eventlog.ValidateRange(from, to); err != nil {
		return nil, err
	}
	if from < 1 {
		from = 1
	}

	rng := &util.Range{Start: entryKey(from)}
	if to < ^uint64(0) {
		rng.Limit = entryKey(to + 1)
	} else {
		// to+1 would wrap; scan to the end of the entry keyspace instead.
		rng.Limit = util.BytesPrefix([]byte(entryPrefix)).Limit
	}
	iter := l.db.NewIterator(rng, nil)
	defer iter.Release()

	out := []eventlog.Entry{}
	for iter.Next() {
		var e eventlog.Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode event entry")
		}
		out = append(out, e)
	}
	if err := iter.Error(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan event entries")
	}
	return out, nil
}

// Head returns the highest assigned sequence.
func (l *Log) Head(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head, nil
}

// LoadCursor returns the saved relay checkpoint, 0 when absent.
func (l *Log) LoadCursor(_ context.Context, name string) (uint64, error) {
	raw, err := l.db.Get([]byte(cursorPrefix+name), nil)
	switch {
	case err == goleveldb.ErrNotFound:
		return 0, nil
	case err != nil:
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read relay cursor")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SaveCursor persists a relay checkpoint.
func (l *Log) SaveCursor(_ context.Context, name string, seq uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := l.db.Put([]byte(cursorPrefix+name), buf, nil); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write relay cursor")
	}
	return nil
}
