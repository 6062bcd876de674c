package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"attesto/internal/eventlog"
	"attesto/internal/ledger/models"
	"attesto/internal/ledger/service"
	"attesto/internal/ledger/service/mocks"
	"attesto/internal/vault"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/requestcontext"

	id "attesto/pkg/domain"
)

func fixedCtx(t *testing.T) (context.Context, time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return requestcontext.WithTime(context.Background(), now), now
}

func portRecord(t *testing.T, now time.Time) *models.TokenRecord {
	t.Helper()
	var tokenID id.TokenID
	tokenID[0] = 0xAA
	var docHash id.Digest
	docHash[0] = 0xBB
	issuer, err := id.ParseIssuerAddress(strings.Repeat("ab", 32))
	require.NoError(t, err)
	record, err := models.NewTokenRecord(tokenID, docHash, id.RecordTypeLabReport,
		issuer, "nonce-1", "vault://cipher/1",
		now.Add(30*24*time.Hour), now)
	require.NoError(t, err)
	return record
}

// runExecute makes a mocked Execute behave like a real store: validate first,
// then apply, then seal the entry.
func runExecute(record *models.TokenRecord) func(context.Context, id.TokenID, func(*models.TokenRecord) error, func(*models.TokenRecord) eventlog.Entry) (*models.TokenRecord, eventlog.Entry, error) {
	return func(_ context.Context, _ id.TokenID, validate func(*models.TokenRecord) error, apply func(*models.TokenRecord) eventlog.Entry) (*models.TokenRecord, eventlog.Entry, error) {
		if err := validate(record); err != nil {
			return nil, eventlog.Entry{}, err
		}
		entry := apply(record)
		return record, entry.Seal(1, ""), nil
	}
}

func TestRevokeHandsNotifierTheCommittedRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, now := fixedCtx(t)
	record := portRecord(t, now)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	notifier := mocks.NewMockStorageNotifier(ctrl)

	registry.EXPECT().Authorize(gomock.Any(), record.Issuer, gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().Execute(gomock.Any(), record.ID, gomock.Any(), gomock.Any()).DoAndReturn(runExecute(record))
	notifier.EXPECT().NotifyDelete(gomock.Any(), vault.DeleteInstruction{
		TokenID: record.ID,
		DocHash: record.DocHash,
		Locator: "vault://cipher/1",
	}).Return(nil)

	svc := service.New(store, registry, []byte("k"), service.WithNotifier(notifier))
	err := svc.Revoke(ctx, models.RevokeCommand{TokenID: record.ID, Actor: "issuer:city-hospital"})
	require.NoError(t, err)
}

func TestRevokeFailureNeverReachesTheNotifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, now := fixedCtx(t)
	record := portRecord(t, now)
	record.ApplyConsume(now)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	notifier := mocks.NewMockStorageNotifier(ctrl)

	// CanRevoke rejects before authorization, so the registry is not consulted
	// and no delete instruction may go out.
	store.EXPECT().Execute(gomock.Any(), record.ID, gomock.Any(), gomock.Any()).DoAndReturn(runExecute(record))

	svc := service.New(store, registry, []byte("k"), service.WithNotifier(notifier))
	err := svc.Revoke(ctx, models.RevokeCommand{TokenID: record.ID, Actor: "issuer:city-hospital"})
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestMintDuplicateFromStoreIsConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, _ := fixedCtx(t)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)

	registry.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().Mint(gomock.Any(), gomock.Any(), gomock.Any()).Return(eventlog.Entry{}, sentinel.ErrAlreadyUsed)

	svc := service.New(store, registry, []byte("k"))
	var docHash id.Digest
	docHash[0] = 0xBB
	issuer, err := id.ParseIssuerAddress(strings.Repeat("ab", 32))
	require.NoError(t, err)
	_, err = svc.Mint(ctx, models.MintCommand{
		Issuer:     issuer,
		DocHash:    docHash,
		RecordType: id.RecordTypeLabReport,
		Expiry:     24 * time.Hour,
		Nonce:      "nonce-1",
	})
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	require.False(t, dErrors.Retryable(err))
}

func TestConsumeContentionIsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, now := fixedCtx(t)
	record := portRecord(t, now)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	store.EXPECT().Execute(gomock.Any(), record.ID, gomock.Any(), gomock.Any()).
		Return(nil, eventlog.Entry{}, sentinel.ErrContended)

	svc := service.New(store, registry, []byte("k"))
	err := svc.Consume(ctx, models.ConsumeCommand{TokenID: record.ID, Nonce: "nonce-1", Actor: "relying:kiosk"})
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeContention))
	require.True(t, dErrors.Retryable(err))
}

func TestVerifyCacheHitSkipsTheStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, now := fixedCtx(t)
	record := portRecord(t, now)
	record.ApplyConsume(now)
	want := models.NewVerificationView(record, "nonce-1", now)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	cache := mocks.NewMockVerifyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), record.ID, "nonce-1").Return(want, true, nil)

	svc := service.New(store, registry, []byte("k"), service.WithCache(cache))
	view, err := svc.Verify(ctx, record.ID, "nonce-1")
	require.NoError(t, err)
	require.Equal(t, want, view)
}

func TestVerifyWarmsTheCacheForTerminalRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, now := fixedCtx(t)
	record := portRecord(t, now)
	record.ApplyRevoke(now)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	cache := mocks.NewMockVerifyCache(ctrl)

	cache.EXPECT().Get(gomock.Any(), record.ID, "nonce-1").Return(models.VerificationView{}, false, nil)
	store.EXPECT().Find(gomock.Any(), record.ID).Return(record, nil)
	cache.EXPECT().Put(gomock.Any(), record).Return(nil)

	svc := service.New(store, registry, []byte("k"), service.WithCache(cache))
	view, err := svc.Verify(ctx, record.ID, "nonce-1")
	require.NoError(t, err)
	require.Equal(t, models.TokenStatusRevoked, view.Status)
}

func TestVerifyDoesNotCacheActiveRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, now := fixedCtx(t)
	record := portRecord(t, now)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	cache := mocks.NewMockVerifyCache(ctrl)

	cache.EXPECT().Get(gomock.Any(), record.ID, "nonce-1").Return(models.VerificationView{}, false, nil)
	store.EXPECT().Find(gomock.Any(), record.ID).Return(record, nil)

	svc := service.New(store, registry, []byte("k"), service.WithCache(cache))
	view, err := svc.Verify(ctx, record.ID, "nonce-1")
	require.NoError(t, err)
	require.Equal(t, models.TokenStatusActive, view.Status)
}

func TestVerifyCacheFailureDegradesToStoreRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, now := fixedCtx(t)
	record := portRecord(t, now)

	store := mocks.NewMockStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	cache := mocks.NewMockVerifyCache(ctrl)

	cache.EXPECT().Get(gomock.Any(), record.ID, "nonce-1").
		Return(models.VerificationView{}, false, dErrors.New(dErrors.CodeInternal, "cache unreachable"))
	store.EXPECT().Find(gomock.Any(), record.ID).Return(record, nil)

	svc := service.New(store, registry, []byte("k"), service.WithCache(cache))
	view, err := svc.Verify(ctx, record.ID, "nonce-1")
	require.NoError(t, err)
	require.Equal(t, record.ID, view.TokenID)
}
