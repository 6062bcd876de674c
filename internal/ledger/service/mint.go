package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"attesto/internal/eventlog"
	"attesto/internal/ledger/models"
	regmodels "attesto/internal/registry/models"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/requestcontext"

	id "attesto/pkg/domain"
)

// Mint authorizes the issuer, derives the token id from the command inputs,
// and persists the active record together with its minted event. Reissuing
// the same issuer, nonce, and document derives the same id and is rejected
// as a conflict, so a replayed mint can never produce a second token.
func (s *Service) Mint(ctx context.Context, cmd models.MintCommand) (record *models.TokenRecord, err error) {
	start := time.Now()
	defer func() {
		s.observeMint(start)
		s.finishTransition(eventlog.KindMinted, err)
	}()

	ctx, span := s.tracer.Start(ctx, "ledger.mint")
	defer span.End()

	if err = cmd.Validate(s.maxExpiry); err != nil {
		return nil, err
	}

	if err = s.registry.Authorize(ctx, cmd.Issuer, regmodels.OpMint, cmd.Command); err != nil {
		span.RecordError(err)
		return nil, err
	}

	tokenID, derr := id.DeriveTokenID(s.derivationKey, cmd.Issuer, cmd.Nonce, cmd.DocHash)
	if derr != nil {
		err = dErrors.Wrap(derr, dErrors.CodeInternal, "failed to derive token id")
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("token.id", tokenID.String()))

	now := requestcontext.Now(ctx)
	record, err = models.NewTokenRecord(tokenID, cmd.DocHash, cmd.RecordType, cmd.Issuer, cmd.Nonce, cmd.LocatorHint, now.Add(cmd.Expiry), now)
	if err != nil {
		// Convert invariant violations to validation errors for API response
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	actor := cmd.Actor
	if actor == "" {
		actor = cmd.Issuer.String()
	}
	entry := eventlog.Entry{
		ID:        id.NewEventID(),
		TokenID:   tokenID,
		Kind:      eventlog.KindMinted,
		Actor:     actor,
		Issuer:    cmd.Issuer,
		NewStatus: models.TokenStatusActive.String(),
		Timestamp: now,
	}

	sealed, merr := s.tokens.Mint(ctx, record, entry)
	if merr != nil {
		if errors.Is(merr, sentinel.ErrAlreadyUsed) {
			err = dErrors.New(dErrors.CodeConflict, "token already minted for this document and nonce")
		} else {
			err = wrapTokenErr(merr)
		}
		span.RecordError(err)
		return nil, err
	}

	s.logAudit(ctx, "ledger.token_minted",
		"token_id", tokenID,
		"issuer", cmd.Issuer,
		"record_type", string(cmd.RecordType),
		"expires_at", record.ExpiresAt,
		"sequence", sealed.Sequence)
	return record, nil
}
