package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"attesto/internal/eventlog"
	"attesto/internal/ledger/models"
	regmodels "attesto/internal/registry/models"
	"attesto/internal/vault"
	"attesto/pkg/requestcontext"

	id "attesto/pkg/domain"
)

// Revoke retires a token before use and instructs storage to purge the
// document it guarded. An expired token that was never consumed is still
// revocable: expiry alone does not delete the ciphertext, so the issuer must
// be able to force the purge. A consumed token is not, since the access it
// granted has already happened.
//
// Revocation is authorized against the issuer's signing policy inside the
// token lock. Sensitive record types escalate to the policy's quorum rule, so
// the check runs against the record type the transition commits with.
func (s *Service) Revoke(ctx context.Context, cmd models.RevokeCommand) (err error) {
	defer func() { s.finishTransition(eventlog.KindRevoked, err) }()

	ctx, span := s.tracer.Start(ctx, "ledger.revoke")
	defer span.End()

	if err = cmd.Validate(); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("token.id", cmd.TokenID.String()))

	now := requestcontext.Now(ctx)
	record, entry, rerr := s.tokens.Execute(ctx, cmd.TokenID,
		func(t *models.TokenRecord) error {
			if err := t.CanRevoke(); err != nil {
				return err
			}
			return s.registry.Authorize(ctx, t.Issuer, regmodels.OpRevoke(t.RecordType), cmd.Command)
		},
		func(t *models.TokenRecord) eventlog.Entry {
			prior := t.Status.String()
			t.ApplyRevoke(now)
			var meta map[string]string
			if cmd.Reason != "" {
				meta = map[string]string{"reason": cmd.Reason}
			}
			return eventlog.Entry{
				ID:          id.NewEventID(),
				TokenID:     t.ID,
				Kind:        eventlog.KindRevoked,
				Actor:       cmd.Actor,
				Issuer:      t.Issuer,
				PriorStatus: prior,
				NewStatus:   t.Status.String(),
				Timestamp:   now,
				Meta:        meta,
			}
		},
	)
	if rerr != nil {
		err = wrapTokenErr(rerr)
		span.RecordError(err)
		return err
	}

	s.logAudit(ctx, "ledger.token_revoked",
		"token_id", cmd.TokenID,
		"actor", cmd.Actor,
		"reason", cmd.Reason,
		"sequence", entry.Sequence)

	// The delete instruction goes out only once the revocation is durable. A
	// publish failure does not undo the transition; it is logged with enough
	// detail to replay the purge by hand.
	instruction := vault.DeleteInstruction{
		TokenID: record.ID,
		DocHash: record.DocHash,
		Locator: record.LocatorHint,
	}
	if nerr := s.notifier.NotifyDelete(ctx, instruction); nerr != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "delete instruction publish failed",
			"error", nerr,
			"token_id", record.ID,
			"doc_hash", record.DocHash)
	}
	return nil
}
