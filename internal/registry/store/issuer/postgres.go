package issuer

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
)

// Schema is the DDL for the issuer registry. Keys are stored as hex-encoded
// text so the array stays readable in psql during incident review.
const Schema = `
CREATE TABLE IF NOT EXISTS issuers (
    address         TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    keys            TEXT[] NOT NULL,
    status          TEXT NOT NULL,
    policy_kind     TEXT NOT NULL,
    policy_required INTEGER NOT NULL DEFAULT 0,
    policy_total    INTEGER NOT NULL DEFAULT 0,
    registered_at   TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the issuers table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure issuers schema: %w", err)
	}
	return nil
}

// Postgres persists issuer identities in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed issuer store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, identity *models.IssuerIdentity) error {
	query := `
		INSERT INTO issuers (address, name, keys, status, policy_kind, policy_required, policy_total, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		identity.Address.String(),
		identity.Name,
		pq.Array(encodeKeys(identity.Keys)),
		identity.Status.String(),
		string(identity.Policy.Kind),
		identity.Policy.Required,
		identity.Policy.Total,
		identity.RegisteredAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create issuer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create issuer: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("issuer address taken: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (s *Postgres) FindByAddress(ctx context.Context, address id.IssuerAddress) (*models.IssuerIdentity, error) {
	row := s.db.QueryRowContext(ctx, selectIssuer+` WHERE address = $1`, address.String())
	identity, err := scanIssuer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issuer not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find issuer: %w", err)
	}
	return identity, nil
}

// List returns all identities ordered by address for deterministic output.
func (s *Postgres) List(ctx context.Context) ([]*models.IssuerIdentity, error) {
	rows, err := s.db.QueryContext(ctx, selectIssuer+` ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list issuers: %w", err)
	}
	defer rows.Close()

	var out []*models.IssuerIdentity
	for rows.Next() {
		identity, err := scanIssuer(rows)
		if err != nil {
			return nil, fmt.Errorf("list issuers: %w", err)
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issuers: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT FOR UPDATE, runs validate then apply, and
// commits the updated identity. The row lock holds concurrent mutations of
// the same issuer back until the transaction resolves.
func (s *Postgres) Execute(ctx context.Context, address id.IssuerAddress, validate func(*models.IssuerIdentity) error, apply func(*models.IssuerIdentity)) (*models.IssuerIdentity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("execute issuer mutation: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, selectIssuer+` WHERE address = $1 FOR UPDATE`, address.String())
	identity, err := scanIssuer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issuer not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("execute issuer mutation: %w", err)
	}

	if err := validate(identity); err != nil {
		return nil, err
	}
	apply(identity)

	query := `
		UPDATE issuers
		SET name = $2, keys = $3, status = $4, policy_kind = $5, policy_required = $6, policy_total = $7, updated_at = $8
		WHERE address = $1
	`
	if _, err := tx.ExecContext(ctx, query,
		identity.Address.String(),
		identity.Name,
		pq.Array(encodeKeys(identity.Keys)),
		identity.Status.String(),
		string(identity.Policy.Kind),
		identity.Policy.Required,
		identity.Policy.Total,
		identity.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("execute issuer mutation: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("execute issuer mutation: commit: %w", err)
	}
	return identity, nil
}

const selectIssuer = `
	SELECT address, name, keys, status, policy_kind, policy_required, policy_total, registered_at, updated_at
	FROM issuers
`

// rowScanner lets scanIssuer work with both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssuer(row rowScanner) (*models.IssuerIdentity, error) {
	var (
		identity models.IssuerIdentity
		address  string
		keys     []string
	)
	err := row.Scan(
		&address,
		&identity.Name,
		pq.Array(&keys),
		(*string)(&identity.Status),
		(*string)(&identity.Policy.Kind),
		&identity.Policy.Required,
		&identity.Policy.Total,
		&identity.RegisteredAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.Address, err = id.ParseIssuerAddress(address)
	if err != nil {
		return nil, fmt.Errorf("stored issuer address invalid: %w", err)
	}
	identity.Keys, err = decodeKeys(keys)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func encodeKeys(keys []ed25519.PublicKey) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = hex.EncodeToString(key)
	}
	return out
}

func decodeKeys(encoded []string) ([]ed25519.PublicKey, error) {
	out := make([]ed25519.PublicKey, len(encoded))
	for i, item := range encoded {
		raw, err := hex.DecodeString(item)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("stored issuer key %d invalid", i)
		}
		out[i] = raw
	}
	return out, nil
}
