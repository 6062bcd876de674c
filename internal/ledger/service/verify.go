package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"attesto/internal/ledger/models"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/requestcontext"

	id "attesto/pkg/domain"
)

// Verify reports the current state of a token without changing it. Repeating
// the call yields the same view, so a scanner can poll freely before deciding
// to consume. Unknown tokens are a not-found error; a nonce mismatch is not,
// it is reported as a flag on an otherwise complete view so responses do not
// reveal which part of a probe was wrong.
func (s *Service) Verify(ctx context.Context, tokenID id.TokenID, presentedNonce string) (models.VerificationView, error) {
	start := time.Now()
	defer s.observeVerify(start)

	ctx, span := s.tracer.Start(ctx, "ledger.verify")
	defer span.End()

	if tokenID.IsZero() {
		return models.VerificationView{}, dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	span.SetAttributes(attribute.String("token.id", tokenID.String()))

	if s.cache != nil {
		view, ok, err := s.cache.Get(ctx, tokenID, presentedNonce)
		switch {
		case err != nil:
			// A broken cache degrades to a store read, never to an error.
			s.incrementVerifyCache("error")
			if s.logger != nil {
				s.logger.WarnContext(ctx, "verify cache read failed", "error", err, "token_id", tokenID)
			}
		case ok:
			s.incrementVerifyCache("hit")
			return view, nil
		default:
			s.incrementVerifyCache("miss")
		}
	}

	record, err := s.tokens.Find(ctx, tokenID)
	if err != nil {
		return models.VerificationView{}, wrapTokenErr(err)
	}

	view := models.NewVerificationView(record, presentedNonce, requestcontext.Now(ctx))

	if s.cache != nil && record.Status.Terminal() {
		if err := s.cache.Put(ctx, record); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "verify cache write failed", "error", err, "token_id", tokenID)
		}
	}
	return view, nil
}
