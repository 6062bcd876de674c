// Package postgres persists the event log in PostgreSQL. Appends take a
// transaction-scoped advisory lock so sequences stay gap-free under
// concurrent writers, and AppendTx lets the token record store commit a
// transition and its event in one transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"attesto/internal/eventlog"
	id "attesto/pkg/domain"
)

// Schema is applied at startup. Sequence is the primary key; the unique id
// column lets downstream consumers deduplicate redelivered entries.
const Schema = `
	CREATE TABLE IF NOT EXISTS ledger_events (
		sequence     BIGINT PRIMARY KEY,
		id           UUID NOT NULL UNIQUE,
		token_id     TEXT NOT NULL,
		kind         TEXT NOT NULL,
		actor        TEXT NOT NULL,
		issuer       TEXT NOT NULL,
		prior_status TEXT NOT NULL,
		new_status   TEXT NOT NULL,
		occurred_at  TIMESTAMPTZ NOT NULL,
		meta         JSONB NOT NULL DEFAULT '{}',
		prev_hash    TEXT NOT NULL,
		entry_hash   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_token ON ledger_events (token_id, sequence);

	CREATE TABLE IF NOT EXISTS relay_cursors (
		name TEXT PRIMARY KEY,
		seq  BIGINT NOT NULL
	);
`

// appendLockKey scopes the advisory lock that serializes appends. Any
// constant works as long as nothing else in the database uses it.
const appendLockKey = 7244630

// EnsureSchema creates the event log tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure event log schema: %w", err)
	}
	return nil
}

// Log stores entries in PostgreSQL.
type Log struct {
	db *sql.DB
}

func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append seals and inserts the entry in its own transaction.
func (l *Log) Append(ctx context.Context, e eventlog.Entry) (eventlog.Entry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return eventlog.Entry{}, fmt.Errorf("begin event append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	sealed, err := AppendTx(ctx, tx, e)
	if err != nil {
		return eventlog.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return eventlog.Entry{}, fmt.Errorf("commit event append: %w", err)
	}
	return sealed, nil
}

// AppendTx seals and inserts the entry inside the caller's transaction. The
// advisory lock is transaction-scoped, so the sequence assignment holds until
// the caller commits and concurrent appends queue behind it.
func AppendTx(ctx context.Context, tx *sql.Tx, e eventlog.Entry) (eventlog.Entry, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return eventlog.Entry{}, fmt.Errorf("acquire append lock: %w", err)
	}

	var prevSeq uint64
	var prevHash string
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0),
		       COALESCE((SELECT entry_hash FROM ledger_events ORDER BY sequence DESC LIMIT 1), '')
		FROM ledger_events
	`).Scan(&prevSeq, &prevHash)
	if err != nil {
		return eventlog.Entry{}, fmt.Errorf("read event log head: %w", err)
	}

	sealed := e.Seal(prevSeq, prevHash)
	meta := []byte(`{}`)
	if sealed.Meta != nil {
		meta, err = json.Marshal(sealed.Meta)
		if err != nil {
			return eventlog.Entry{}, fmt.Errorf("encode event meta: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_events (sequence, id, token_id, kind, actor, issuer, prior_status, new_status, occurred_at, meta, prev_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		int64(sealed.Sequence),
		sealed.ID.String(),
		sealed.TokenID.String(),
		string(sealed.Kind),
		sealed.Actor,
		string(sealed.Issuer),
		sealed.PriorStatus,
		sealed.NewStatus,
		sealed.Timestamp.UTC(),
		meta,
		sealed.PrevHash,
		sealed.EntryHash,
	)
	if err != nil {
		return eventlog.Entry{}, fmt.Errorf("insert event entry: %w", err)
	}
	return sealed, nil
}

// Range returns entries with from <= Sequence <= to.
func (l *Log) Range(ctx context.Context, from, to uint64) ([]eventlog.Entry, error) {
	if err := eventlog.ValidateRange(from, to); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT sequence, id, token_id, kind, actor, issuer, prior_status, new_status, occurred_at, meta, prev_hash, entry_hash
		FROM ledger_events
		WHERE sequence >= $1 AND sequence <= $2
		ORDER BY sequence
	`, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("query event range: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Head returns the highest assigned sequence.
func (l *Log) Head(ctx context.Context) (uint64, error) {
	var head uint64
	err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM ledger_events`).Scan(&head)
	if err != nil {
		return 0, fmt.Errorf("read event log head: %w", err)
	}
	return head, nil
}

// LoadCursor returns the saved relay checkpoint, 0 when absent.
func (l *Log) LoadCursor(ctx context.Context, name string) (uint64, error) {
	var seq uint64
	err := l.db.QueryRowContext(ctx, `SELECT seq FROM relay_cursors WHERE name = $1`, name).Scan(&seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("load relay cursor: %w", err)
	}
	return seq, nil
}

// SaveCursor persists a relay checkpoint.
func (l *Log) SaveCursor(ctx context.Context, name string, seq uint64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO relay_cursors (name, seq)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			seq = EXCLUDED.seq
	`, name, int64(seq))
	if err != nil {
		return fmt.Errorf("save relay cursor: %w", err)
	}
	return nil
}

type entryRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows entryRows) ([]eventlog.Entry, error) {
	out := []eventlog.Entry{}
	for rows.Next() {
		var (
			e         eventlog.Entry
			rawID     string
			rawToken  string
			rawIssuer string
			rawMeta   []byte
			occurred  time.Time
		)
		if err := rows.Scan(&e.Sequence, &rawID, &rawToken, (*string)(&e.Kind), &e.Actor, &rawIssuer,
			&e.PriorStatus, &e.NewStatus, &occurred, &rawMeta, &e.PrevHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("scan event entry: %w", err)
		}

		eventID, err := id.ParseEventID(rawID)
		if err != nil {
			return nil, fmt.Errorf("decode event id: %w", err)
		}
		tokenID, err := id.ParseTokenID(rawToken)
		if err != nil {
			return nil, fmt.Errorf("decode event token id: %w", err)
		}
		e.ID = eventID
		e.TokenID = tokenID
		e.Issuer = id.IssuerAddress(rawIssuer)
		e.Timestamp = occurred
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}
		if len(e.Meta) == 0 {
			e.Meta = nil
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event entries: %w", err)
	}
	return out, nil
}
