// Package postgres persists token records in PostgreSQL. A transition locks
// its row with SELECT ... FOR UPDATE under a transaction-scoped lock_timeout,
// so contention fails in bounded time instead of queueing, and the event
// insert shares the transaction so record and event commit together.
//
// The pool must use the pgx stdlib driver; lock timeouts and duplicate keys
// are detected through pgconn error codes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"attesto/internal/eventlog"
	eventpg "attesto/internal/eventlog/store/postgres"
	"attesto/internal/ledger/models"
	"attesto/internal/ledger/store/lock"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
)

// Schema is the DDL for the token ledger. Identifiers and digests are stored
// as hex text so rows stay readable in psql during incident review.
const Schema = `
CREATE TABLE IF NOT EXISTS proof_tokens (
    token_id           TEXT PRIMARY KEY,
    doc_hash           TEXT NOT NULL,
    record_type        TEXT NOT NULL,
    issuer             TEXT NOT NULL,
    status             TEXT NOT NULL,
    nonce              TEXT NOT NULL,
    locator_hint       TEXT NOT NULL DEFAULT '',
    expires_at         TIMESTAMPTZ NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    last_transition_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_proof_tokens_issuer ON proof_tokens (issuer, created_at);
`

// EnsureSchema creates the token tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure proof tokens schema: %w", err)
	}
	return nil
}

// SQLSTATE codes surfaced by pgconn.
const (
	pgCodeLockNotAvailable = "55P03"
	pgCodeUniqueViolation  = "23505"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested token does not exist
// - Return ErrAlreadyUsed when a mint hits an existing token id
// - Return ErrContended when the row lock wait exceeds the configured bound
// - Validate callback errors pass through unchanged

// Store persists token records in PostgreSQL.
type Store struct {
	db       *sql.DB
	lockWait time.Duration
}

type Option func(*Store)

// WithLockWait bounds the FOR UPDATE wait. Defaults to lock.DefaultWait.
func WithLockWait(wait time.Duration) Option {
	return func(s *Store) {
		if wait > 0 {
			s.lockWait = wait
		}
	}
}

// New constructs a PostgreSQL-backed token store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, lockWait: lock.DefaultWait}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Mint inserts the record and appends its minted event in one transaction.
func (s *Store) Mint(ctx context.Context, record *models.TokenRecord, entry eventlog.Entry) (eventlog.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventlog.Entry{}, fmt.Errorf("mint token: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO proof_tokens (token_id, doc_hash, record_type, issuer, status, nonce, locator_hint, expires_at, created_at, last_transition_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.ExecContext(ctx, query,
		record.ID.String(),
		record.DocHash.String(),
		record.RecordType.String(),
		record.Issuer.String(),
		record.Status.String(),
		record.Nonce,
		record.LocatorHint,
		record.ExpiresAt,
		record.CreatedAt,
		record.LastTransitionAt,
	); err != nil {
		if pgErrCode(err) == pgCodeUniqueViolation {
			return eventlog.Entry{}, fmt.Errorf("token id taken: %w", sentinel.ErrAlreadyUsed)
		}
		return eventlog.Entry{}, fmt.Errorf("mint token: insert: %w", err)
	}

	sealed, err := eventpg.AppendTx(ctx, tx, entry)
	if err != nil {
		return eventlog.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return eventlog.Entry{}, fmt.Errorf("mint token: commit: %w", err)
	}
	return sealed, nil
}

// Find returns the stored record. Plain reads take no row locks, so verify
// traffic never queues behind transitions.
func (s *Store) Find(ctx context.Context, tokenID id.TokenID) (*models.TokenRecord, error) {
	row := s.db.QueryRowContext(ctx, selectToken+` WHERE token_id = $1`, tokenID.String())
	record, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	return record, nil
}

// Execute locks the row, runs validate then apply, and commits the mutated
// status together with the event apply builds. lock_timeout is set per
// transaction, so a held row lock surfaces as ErrContended after the bound
// instead of waiting indefinitely.
func (s *Store) Execute(ctx context.Context, tokenID id.TokenID, validate func(*models.TokenRecord) error, apply func(*models.TokenRecord) eventlog.Entry) (*models.TokenRecord, eventlog.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eventlog.Entry{}, fmt.Errorf("execute token transition: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// SET LOCAL scopes the timeout to this transaction. It also bounds the
	// event log's advisory lock below.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, s.lockWait.Milliseconds())); err != nil {
		return nil, eventlog.Entry{}, fmt.Errorf("execute token transition: set lock timeout: %w", err)
	}

	row := tx.QueryRowContext(ctx, selectToken+` WHERE token_id = $1 FOR UPDATE`, tokenID.String())
	record, err := scanToken(row)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, eventlog.Entry{}, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
		case pgErrCode(err) == pgCodeLockNotAvailable:
			return nil, eventlog.Entry{}, fmt.Errorf("token row lock wait exceeded %s: %w", s.lockWait, sentinel.ErrContended)
		default:
			return nil, eventlog.Entry{}, fmt.Errorf("execute token transition: %w", err)
		}
	}

	if err := validate(record); err != nil {
		return nil, eventlog.Entry{}, err
	}
	entry := apply(record)

	query := `
		UPDATE proof_tokens
		SET status = $2, last_transition_at = $3
		WHERE token_id = $1
	`
	if _, err := tx.ExecContext(ctx, query,
		record.ID.String(),
		record.Status.String(),
		record.LastTransitionAt,
	); err != nil {
		return nil, eventlog.Entry{}, fmt.Errorf("execute token transition: update: %w", err)
	}

	sealed, err := eventpg.AppendTx(ctx, tx, entry)
	if err != nil {
		if pgErrCode(err) == pgCodeLockNotAvailable {
			return nil, eventlog.Entry{}, fmt.Errorf("event append lock wait exceeded %s: %w", s.lockWait, sentinel.ErrContended)
		}
		return nil, eventlog.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eventlog.Entry{}, fmt.Errorf("execute token transition: commit: %w", err)
	}
	return record, sealed, nil
}

const selectToken = `
	SELECT token_id, doc_hash, record_type, issuer, status, nonce, locator_hint, expires_at, created_at, last_transition_at
	FROM proof_tokens
`

// rowScanner lets scanToken work with both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.TokenRecord, error) {
	var (
		record  models.TokenRecord
		rawID   string
		rawHash string
	)
	err := row.Scan(
		&rawID,
		&rawHash,
		(*string)(&record.RecordType),
		(*string)(&record.Issuer),
		(*string)(&record.Status),
		&record.Nonce,
		&record.LocatorHint,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.LastTransitionAt,
	)
	if err != nil {
		return nil, err
	}

	record.ID, err = id.ParseTokenID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored token id invalid: %w", err)
	}
	record.DocHash, err = id.ParseDigest(rawHash)
	if err != nil {
		return nil, fmt.Errorf("stored doc hash invalid: %w", err)
	}
	return &record, nil
}
