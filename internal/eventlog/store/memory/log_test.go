package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attesto/internal/eventlog"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

type InMemoryLogSuite struct {
	suite.Suite
	log *Log
}

func TestInMemoryLogSuite(t *testing.T) {
	suite.Run(t, new(InMemoryLogSuite))
}

func (s *InMemoryLogSuite) SetupTest() {
	s.log = NewLog()
}

func (s *InMemoryLogSuite) entry(kind eventlog.Kind) eventlog.Entry {
	tokenID, err := id.ParseTokenID(strings.Repeat("ab", 32))
	s.Require().NoError(err)
	return eventlog.Entry{
		ID:        id.NewEventID(),
		TokenID:   tokenID,
		Kind:      kind,
		Actor:     "clinic-operator",
		Issuer:    id.IssuerAddress(strings.Repeat("cd", 32)),
		NewStatus: "active",
		Timestamp: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func (s *InMemoryLogSuite) TestAppend() {
	ctx := context.Background()

	s.Run("sequences are assigned gap-free from 1", func() {
		first, err := s.log.Append(ctx, s.entry(eventlog.KindMinted))
		s.NoError(err)
		s.Equal(uint64(1), first.Sequence)
		s.Equal(eventlog.GenesisHash, first.PrevHash)

		second, err := s.log.Append(ctx, s.entry(eventlog.KindConsumed))
		s.NoError(err)
		s.Equal(uint64(2), second.Sequence)
		s.Equal(first.EntryHash, second.PrevHash)
	})

	s.Run("appended range forms a verifiable chain", func() {
		for i := 0; i < 5; i++ {
			_, err := s.log.Append(ctx, s.entry(eventlog.KindMinted))
			s.Require().NoError(err)
		}
		head, err := s.log.Head(ctx)
		s.Require().NoError(err)

		entries, err := s.log.Range(ctx, 1, head)
		s.Require().NoError(err)
		s.NoError(eventlog.VerifyChain(entries))
	})
}

func (s *InMemoryLogSuite) TestConcurrentAppend() {
	ctx := context.Background()

	const writers = 16
	const perWriter = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := s.log.Append(ctx, s.entry(eventlog.KindMinted))
				s.NoError(err)
			}
		}()
	}
	wg.Wait()

	head, err := s.log.Head(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(writers*perWriter), head)

	entries, err := s.log.Range(ctx, 1, head)
	s.Require().NoError(err)
	s.NoError(eventlog.VerifyChain(entries))
}

func (s *InMemoryLogSuite) TestRange() {
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := s.log.Append(ctx, s.entry(eventlog.KindMinted))
		s.Require().NoError(err)
	}

	s.Run("inner range returns requested entries in order", func() {
		entries, err := s.log.Range(ctx, 3, 7)
		s.NoError(err)
		s.Len(entries, 5)
		s.Equal(uint64(3), entries[0].Sequence)
		s.Equal(uint64(7), entries[4].Sequence)
	})

	s.Run("range past the head is clamped", func() {
		entries, err := s.log.Range(ctx, 8, 100)
		s.NoError(err)
		s.Len(entries, 3)
	})

	s.Run("range entirely past the head is empty", func() {
		entries, err := s.log.Range(ctx, 11, 20)
		s.NoError(err)
		s.Empty(entries)
	})

	s.Run("inverted range is rejected", func() {
		_, err := s.log.Range(ctx, 7, 3)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("result is a copy, not a view", func() {
		entries, err := s.log.Range(ctx, 1, 1)
		s.Require().NoError(err)
		entries[0].Actor = "mutated"

		again, err := s.log.Range(ctx, 1, 1)
		s.Require().NoError(err)
		s.Equal("clinic-operator", again[0].Actor)
	})
}

func (s *InMemoryLogSuite) TestCursor() {
	ctx := context.Background()

	s.Run("missing cursor reads as zero", func() {
		seq, err := s.log.LoadCursor(ctx, "kafka-export")
		s.NoError(err)
		s.Zero(seq)
	})

	s.Run("saved cursor is returned", func() {
		s.NoError(s.log.SaveCursor(ctx, "kafka-export", 42))

		seq, err := s.log.LoadCursor(ctx, "kafka-export")
		s.NoError(err)
		s.Equal(uint64(42), seq)
	})
}

func (s *InMemoryLogSuite) TestAppendWithin() {
	ctx := context.Background()

	s.Run("entry is retained when the callback succeeds", func() {
		var sealedSeq uint64
		sealed, err := s.log.AppendWithin(ctx, s.entry(eventlog.KindMinted), func(e eventlog.Entry) error {
			sealedSeq = e.Sequence
			return nil
		})
		s.NoError(err)
		s.Equal(sealedSeq, sealed.Sequence)

		head, err := s.log.Head(ctx)
		s.Require().NoError(err)
		s.Equal(sealed.Sequence, head)
	})

	s.Run("entry is discarded when the callback fails", func() {
		before, err := s.log.Head(ctx)
		s.Require().NoError(err)

		_, err = s.log.AppendWithin(ctx, s.entry(eventlog.KindConsumed), func(eventlog.Entry) error {
			return errors.New("record write failed")
		})
		s.Error(err)

		after, err := s.log.Head(ctx)
		s.Require().NoError(err)
		s.Equal(before, after, "failed callback must not consume a sequence")
	})
}
