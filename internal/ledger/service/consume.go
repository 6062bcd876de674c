package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"attesto/internal/eventlog"
	"attesto/internal/ledger/models"
	regmodels "attesto/internal/registry/models"
	"attesto/pkg/requestcontext"

	id "attesto/pkg/domain"
)

// Consume marks a token used. The store serializes the transition per token,
// so under concurrent presentations exactly one caller wins and every other
// caller observes a conflict or a bounded contention error.
//
// Preconditions run in a fixed order inside the token lock: the token must
// exist, be active and unexpired, the presented nonce must match, and the
// actor must be allowed to consume. Issuer systems prove the last step with a
// signed command; relying parties were already authenticated at the transport
// and carry the consume scope instead.
func (s *Service) Consume(ctx context.Context, cmd models.ConsumeCommand) (err error) {
	defer func() { s.finishTransition(eventlog.KindConsumed, err) }()

	ctx, span := s.tracer.Start(ctx, "ledger.consume")
	defer span.End()

	if err = cmd.Validate(); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("token.id", cmd.TokenID.String()))

	now := requestcontext.Now(ctx)
	_, entry, cerr := s.tokens.Execute(ctx, cmd.TokenID,
		func(t *models.TokenRecord) error {
			if err := t.CanConsume(now, cmd.Nonce); err != nil {
				return err
			}
			if len(cmd.Command.Signatures) > 0 {
				return s.registry.Authorize(ctx, t.Issuer, regmodels.OpConsume, cmd.Command)
			}
			return nil
		},
		func(t *models.TokenRecord) eventlog.Entry {
			prior := t.Status.String()
			t.ApplyConsume(now)
			var meta map[string]string
			if cmd.DeviceLabel != "" {
				meta = map[string]string{"device": cmd.DeviceLabel}
			}
			return eventlog.Entry{
				ID:          id.NewEventID(),
				TokenID:     t.ID,
				Kind:        eventlog.KindConsumed,
				Actor:       cmd.Actor,
				Issuer:      t.Issuer,
				PriorStatus: prior,
				NewStatus:   t.Status.String(),
				Timestamp:   now,
				Meta:        meta,
			}
		},
	)
	if cerr != nil {
		err = wrapTokenErr(cerr)
		span.RecordError(err)
		return err
	}

	s.logAudit(ctx, "ledger.token_consumed",
		"token_id", cmd.TokenID,
		"actor", cmd.Actor,
		"sequence", entry.Sequence)
	return nil
}
