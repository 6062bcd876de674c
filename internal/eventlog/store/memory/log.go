package memory

import (
	"context"
	"sync"

	"attesto/internal/eventlog"
)

// Log is the in-memory event log used by tests and single-process
// deployments. Appends serialize on one mutex, which is also what makes the
// sequence gap-free.
type Log struct {
	mu      sync.RWMutex
	entries []eventlog.Entry
	cursors map[string]uint64
}

func NewLog() *Log {
	return &Log{cursors: make(map[string]uint64)}
}

// Append seals the entry against the current head and stores it.
func (l *Log) Append(_ context.Context, e eventlog.Entry) (eventlog.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(e), nil
}

// appendLocked assigns the next sequence. Callers must hold mu.
func (l *Log) appendLocked(e eventlog.Entry) eventlog.Entry {
	prevSeq := uint64(len(l.entries))
	prevHash := ""
	if prevSeq > 0 {
		prevHash = l.entries[prevSeq-1].EntryHash
	}
	sealed := e.Seal(prevSeq, prevHash)
	l.entries = append(l.entries, sealed)
	return sealed
}

// Range returns entries with from <= Sequence <= to.
func (l *Log) Range(_ context.Context, from, to uint64) ([]eventlog.Entry, error) {
	if err := eventlog.ValidateRange(from, to); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	head := uint64(len(l.entries))
	if from < 1 {
		from = 1
	}
	if from > head {
		return []eventlog.Entry{}, nil
	}
	if to > head {
		to = head
	}
	out := make([]eventlog.Entry, to-from+1)
	copy(out, l.entries[from-1:to])
	return out, nil
}

// Head returns the highest assigned sequence.
func (l *Log) Head(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries)), nil
}

// LoadCursor returns the saved relay checkpoint, 0 when absent.
func (l *Log) LoadCursor(_ context.Context, name string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursors[name], nil
}

// SaveCursor persists a relay checkpoint.
func (l *Log) SaveCursor(_ context.Context, name string, seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursors[name] = seq
	return nil
}

// AppendWithin runs fn while holding the append lock so a caller can commit
// its own state change and the event as one atomic step. The entry is only
// retained if fn succeeds.
func (l *Log) AppendWithin(_ context.Context, e eventlog.Entry, fn func(sealed eventlog.Entry) error) (eventlog.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevSeq := uint64(len(l.entries))
	prevHash := ""
	if prevSeq > 0 {
		prevHash = l.entries[prevSeq-1].EntryHash
	}
	sealed := e.Seal(prevSeq, prevHash)
	if fn != nil {
		if err := fn(sealed); err != nil {
			return eventlog.Entry{}, err
		}
	}
	l.entries = append(l.entries, sealed)
	return sealed, nil
}
