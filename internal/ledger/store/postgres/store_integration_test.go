//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attesto/internal/eventlog"
	eventpg "attesto/internal/eventlog/store/postgres"
	"attesto/internal/ledger/models"
	"attesto/internal/ledger/store/postgres"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	log      *eventpg.Log
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())

	ctx := context.Background()
	s.Require().NoError(eventpg.EnsureSchema(ctx, s.postgres.DB))
	s.Require().NoError(postgres.EnsureSchema(ctx, s.postgres.DB))

	s.store = postgres.New(s.postgres.DB, postgres.WithLockWait(300*time.Millisecond))
	s.log = eventpg.NewLog(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "proof_tokens", "ledger_events", "relay_cursors")
	s.Require().NoError(err)
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) tokenID(b byte) id.TokenID {
	var tid id.TokenID
	for i := range tid {
		tid[i] = b
	}
	return tid
}

func (s *PostgresStoreSuite) record(b byte) *models.TokenRecord {
	var digest id.Digest
	for i := range digest {
		digest[i] = b
	}
	record, err := models.NewTokenRecord(
		s.tokenID(b),
		digest,
		id.RecordTypeDischargeSummary,
		id.IssuerAddress("aa11"),
		"nonce-1",
		"vault://cipher/9",
		s.now.Add(24*time.Hour),
		s.now,
	)
	s.Require().NoError(err)
	return record
}

func (s *PostgresStoreSuite) entry(record *models.TokenRecord, kind eventlog.Kind) eventlog.Entry {
	return eventlog.Entry{
		ID:        id.NewEventID(),
		TokenID:   record.ID,
		Kind:      kind,
		Actor:     "hospital-a",
		Issuer:    record.Issuer,
		NewStatus: record.Status.String(),
		Timestamp: s.now,
	}
}

func (s *PostgresStoreSuite) mint(b byte) *models.TokenRecord {
	record := s.record(b)
	_, err := s.store.Mint(context.Background(), record, s.entry(record, eventlog.KindMinted))
	s.Require().NoError(err)
	return record
}

func (s *PostgresStoreSuite) TestMintRoundTrip() {
	ctx := context.Background()

	record := s.record(1)
	sealed, err := s.store.Mint(ctx, record, s.entry(record, eventlog.KindMinted))
	s.Require().NoError(err)
	s.Equal(uint64(1), sealed.Sequence)

	found, err := s.store.Find(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, found.ID)
	s.Equal(record.DocHash, found.DocHash)
	s.Equal(record.RecordType, found.RecordType)
	s.Equal(models.TokenStatusActive, found.Status)
	s.Equal("nonce-1", found.Nonce)
	s.Equal("vault://cipher/9", found.LocatorHint)
	s.True(record.ExpiresAt.Equal(found.ExpiresAt), "expires_at must survive the round trip")
}

func (s *PostgresStoreSuite) TestDuplicateMintLeavesNoEvent() {
	ctx := context.Background()
	record := s.mint(2)

	_, err := s.store.Mint(ctx, record, s.entry(record, eventlog.KindMinted))
	s.True(errors.Is(err, sentinel.ErrAlreadyUsed))

	head, err := s.log.Head(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), head, "failed mint must not append an event")
}

func (s *PostgresStoreSuite) TestFindUnknownToken() {
	_, err := s.store.Find(context.Background(), s.tokenID(99))
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestExecuteCommitsRecordAndEvent() {
	ctx := context.Background()
	record := s.mint(3)

	updated, sealed, err := s.store.Execute(ctx, record.ID,
		func(t *models.TokenRecord) error { return t.CanConsume(s.now, "nonce-1") },
		func(t *models.TokenRecord) eventlog.Entry {
			t.ApplyConsume(s.now)
			return s.entry(t, eventlog.KindConsumed)
		},
	)
	s.Require().NoError(err)
	s.Equal(models.TokenStatusConsumed, updated.Status)
	s.Equal(uint64(2), sealed.Sequence)

	found, err := s.store.Find(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.TokenStatusConsumed, found.Status)

	entries, err := s.log.Range(ctx, 1, 2)
	s.Require().NoError(err)
	s.Len(entries, 2)
	s.NoError(eventlog.VerifyChain(entries))
}

func (s *PostgresStoreSuite) TestExecuteValidateFailureRollsBack() {
	ctx := context.Background()
	record := s.mint(4)

	_, _, err := s.store.Execute(ctx, record.ID,
		func(t *models.TokenRecord) error { return t.CanConsume(s.now, "wrong") },
		func(t *models.TokenRecord) eventlog.Entry {
			t.ApplyConsume(s.now)
			return s.entry(t, eventlog.KindConsumed)
		},
	)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	found, err := s.store.Find(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.TokenStatusActive, found.Status)

	head, err := s.log.Head(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), head)
}

// TestHeldRowLockFailsBounded verifies the lock_timeout path: a transition
// against a row another transaction holds FOR UPDATE fails with ErrContended
// after the configured wait instead of blocking.
func (s *PostgresStoreSuite) TestHeldRowLockFailsBounded() {
	ctx := context.Background()
	record := s.mint(5)

	blocker, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	defer func() {
		_ = blocker.Rollback()
	}()
	_, err = blocker.ExecContext(ctx, `SELECT 1 FROM proof_tokens WHERE token_id = $1 FOR UPDATE`, record.ID.String())
	s.Require().NoError(err)

	start := time.Now()
	_, _, err = s.store.Execute(ctx, record.ID,
		func(*models.TokenRecord) error { return nil },
		func(t *models.TokenRecord) eventlog.Entry {
			t.ApplyConsume(s.now)
			return s.entry(t, eventlog.KindConsumed)
		},
	)
	s.True(errors.Is(err, sentinel.ErrContended), "expected contention, got: %v", err)
	s.GreaterOrEqual(time.Since(start), 300*time.Millisecond)
}

func (s *PostgresStoreSuite) TestConcurrentConsumeSingleWinner() {
	ctx := context.Background()
	record := s.mint(6)

	const racers = 8
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := s.store.Execute(ctx, record.ID,
				func(t *models.TokenRecord) error { return t.CanConsume(s.now, "nonce-1") },
				func(t *models.TokenRecord) eventlog.Entry {
					t.ApplyConsume(s.now)
					return s.entry(t, eventlog.KindConsumed)
				},
			)
			if err == nil {
				winners.Add(1)
			} else {
				s.True(
					errors.Is(err, sentinel.ErrContended) ||
						dErrors.HasCode(err, dErrors.CodeConflict),
					"unexpected loser error: %v", err,
				)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), winners.Load())

	found, err := s.store.Find(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.TokenStatusConsumed, found.Status)
}
