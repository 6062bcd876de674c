// Package auditquery is the read-only reporting surface over the token ledger
// and its event log. It answers three questions an auditor asks: what happened
// to this token, what happened in this sequence range, and what has this
// issuer been doing lately. Nothing in this package mutates state.
package auditquery

import (
	"context"
	"errors"
	"time"

	"attesto/internal/eventlog"
	"attesto/internal/ledger/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/requestcontext"
)

// scanPageSize bounds how many entries one Range call pulls while filtering.
// The log has no secondary indexes; filtered queries walk it in pages.
const scanPageSize = 512

// EventLog is the read-side slice of the event log stores.
type EventLog interface {
	Range(ctx context.Context, from, to uint64) ([]eventlog.Entry, error)
	Head(ctx context.Context) (uint64, error)
}

// TokenReader looks up ledger records for the point query.
type TokenReader interface {
	Find(ctx context.Context, tokenID id.TokenID) (*models.TokenRecord, error)
}

// TokenHistory merges a token's stored record with every transition the log
// holds for it. EffectiveStatus applies the view-time expiry rule, so the
// report shows "expired" where a verifier would, while StoredStatus shows
// what the ledger actually persists.
type TokenHistory struct {
	TokenID          id.TokenID
	DocHash          id.Digest
	RecordType       id.RecordType
	Issuer           id.IssuerAddress
	StoredStatus     models.TokenStatus
	EffectiveStatus  models.TokenStatus
	ExpiresAt        time.Time
	CreatedAt        time.Time
	LastTransitionAt time.Time
	Events           []eventlog.Entry
}

// IssuerActivity counts an issuer's transitions inside a time window.
type IssuerActivity struct {
	Issuer   id.IssuerAddress
	From     time.Time
	To       time.Time
	Minted   int
	Consumed int
	Revoked  int
}

// Total is the number of transitions of any kind in the window.
func (a IssuerActivity) Total() int {
	return a.Minted + a.Consumed + a.Revoked
}

// Service executes audit queries. It holds read-only ports and no locks of
// its own; consistency comes from the stores underneath.
type Service struct {
	log    EventLog
	tokens TokenReader
}

// New creates the audit query service.
func New(log EventLog, tokens TokenReader) *Service {
	return &Service{log: log, tokens: tokens}
}

// Token returns the merged history for one token: the stored record plus
// every log entry that references it, in sequence order.
func (s *Service) Token(ctx context.Context, tokenID id.TokenID) (TokenHistory, error) {
	if tokenID.IsZero() {
		return TokenHistory{}, dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}

	record, err := s.tokens.Find(ctx, tokenID)
	if err != nil {
		return TokenHistory{}, wrapReadErr(err)
	}

	events, err := s.scan(ctx, func(e eventlog.Entry) bool {
		return e.TokenID == tokenID
	})
	if err != nil {
		return TokenHistory{}, err
	}

	now := requestcontext.Now(ctx)
	return TokenHistory{
		TokenID:          record.ID,
		DocHash:          record.DocHash,
		RecordType:       record.RecordType,
		Issuer:           record.Issuer,
		StoredStatus:     record.Status,
		EffectiveStatus:  record.EffectiveStatus(now),
		ExpiresAt:        record.ExpiresAt,
		CreatedAt:        record.CreatedAt,
		LastTransitionAt: record.LastTransitionAt,
		Events:           events,
	}, nil
}

// Events exports the inclusive sequence range [from, to]. Sequences beyond
// the head shorten the result; an inverted range is an input error.
func (s *Service) Events(ctx context.Context, from, to uint64) ([]eventlog.Entry, error) {
	entries, err := s.log.Range(ctx, from, to)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return entries, nil
}

// IssuerActivity aggregates one issuer's transitions over the window ending
// now. An issuer with no activity yields zero counts, not an error: absence
// of activity is a valid audit answer.
func (s *Service) IssuerActivity(ctx context.Context, issuer id.IssuerAddress, window time.Duration) (IssuerActivity, error) {
	if issuer.IsZero() {
		return IssuerActivity{}, dErrors.New(dErrors.CodeInvalidInput, "issuer address is required")
	}
	if window <= 0 {
		return IssuerActivity{}, dErrors.New(dErrors.CodeInvalidInput, "window must be positive")
	}

	now := requestcontext.Now(ctx)
	since := now.Add(-window)

	activity := IssuerActivity{Issuer: issuer, From: since, To: now}
	events, err := s.scan(ctx, func(e eventlog.Entry) bool {
		return e.Issuer == issuer && !e.Timestamp.Before(since) && !e.Timestamp.After(now)
	})
	if err != nil {
		return IssuerActivity{}, err
	}

	for _, e := range events {
		switch e.Kind {
		case eventlog.KindMinted:
			activity.Minted++
		case eventlog.KindConsumed:
			activity.Consumed++
		case eventlog.KindRevoked:
			activity.Revoked++
		}
	}
	return activity, nil
}

// scan walks the whole log in pages and keeps matching entries.
func (s *Service) scan(ctx context.Context, keep func(eventlog.Entry) bool) ([]eventlog.Entry, error) {
	head, err := s.log.Head(ctx)
	if err != nil {
		return nil, wrapReadErr(err)
	}

	matched := make([]eventlog.Entry, 0)
	for from := uint64(1); from <= head; from += scanPageSize {
		to := from + scanPageSize - 1
		if to > head {
			to = head
		}
		page, err := s.log.Range(ctx, from, to)
		if err != nil {
			return nil, wrapReadErr(err)
		}
		for _, e := range page {
			if keep(e) {
				matched = append(matched, e)
			}
		}
	}
	return matched, nil
}

// wrapReadErr translates store failures into coded errors. Coded errors from
// the stores pass through untouched.
func wrapReadErr(err error) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "token not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "audit read failed")
}
