package handler

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"attesto/internal/accesstoken"
	memlog "attesto/internal/eventlog/store/memory"
	ledgerservice "attesto/internal/ledger/service"
	memstore "attesto/internal/ledger/store/memory"
	regmodels "attesto/internal/registry/models"
	regservice "attesto/internal/registry/service"
	"attesto/internal/registry/store/issuer"
	"attesto/internal/vault"
	"attesto/pkg/testutil"

	id "attesto/pkg/domain"
)

type recordingNotifier struct {
	mu           sync.Mutex
	instructions []vault.DeleteInstruction
}

func (n *recordingNotifier) NotifyDelete(_ context.Context, instruction vault.DeleteInstruction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.instructions = append(n.instructions, instruction)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.instructions)
}

type tokenFixture struct {
	router   http.Handler
	tokens   *accesstoken.Service
	registry *regservice.Service
	notifier *recordingNotifier
}

func newTokenRouter(t *testing.T) *tokenFixture {
	t.Helper()
	registry := regservice.New(issuer.NewInMemory())
	notifier := &recordingNotifier{}
	svc := ledgerservice.New(
		memstore.New(memlog.NewLog()),
		registry,
		[]byte("handler-test-derivation-key"),
		ledgerservice.WithNotifier(notifier),
	)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	tokens := accesstoken.NewService("test-signing-key", "attesto-test", "attesto-api")

	h := New(svc, logger, nil, tokens)
	r := chi.NewRouter()
	h.Register(r)
	return &tokenFixture{router: r, tokens: tokens, registry: registry, notifier: notifier}
}

func (f *tokenFixture) bearer(t *testing.T, actor string, scopes ...string) string {
	t.Helper()
	token, err := f.tokens.Generate(actor, "", scopes, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate bearer token: %v", err)
	}
	return token
}

func (f *tokenFixture) registerIssuer(t *testing.T, name string, keyCount int, policy id.SigningPolicy) (string, []ed25519.PrivateKey) {
	t.Helper()
	pubs := make([]ed25519.PublicKey, keyCount)
	privs := make([]ed25519.PrivateKey, keyCount)
	for i := range pubs {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		pubs[i], privs[i] = pub, priv
	}
	identity, err := f.registry.Register(context.Background(), name, pubs, policy)
	if err != nil {
		t.Fatalf("failed to register issuer: %v", err)
	}
	return identity.Address.String(), privs
}

func signCommand(payload []byte, privs ...ed25519.PrivateKey) regmodels.SignedCommand {
	cmd := regmodels.SignedCommand{Payload: payload}
	for _, priv := range privs {
		cmd.Signatures = append(cmd.Signatures, regmodels.Signature{
			PublicKey: priv.Public().(ed25519.PublicKey),
			Value:     ed25519.Sign(priv, payload),
		})
	}
	return cmd
}

func mintBody(issuerAddress string) map[string]any {
	return map[string]any{
		"issuer":         issuerAddress,
		"doc_hash":       strings.Repeat("ab", 32),
		"record_type":    "lab_report",
		"expiry_seconds": 3600,
		"nonce":          "nce-handler-1",
		"locator_hint":   "vault://cipher/lab-1",
	}
}

func (f *tokenFixture) mint(t *testing.T, token string, body map[string]any) *mintTokenResponse {
	t.Helper()
	rr := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens", token, body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 minting token, got %d: %s", rr.Code, rr.Body.String())
	}
	return testutil.UnmarshalResponse[mintTokenResponse](t, rr)
}

func TestMintRequiresBearerAndScope(t *testing.T) {
	f := newTokenRouter(t)
	address, _ := f.registerIssuer(t, "City Hospital", 1, id.SinglePolicy())

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens", mintBody(address)))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

	wrongScope := f.bearer(t, "relying:kiosk", accesstoken.ScopeConsume)
	rr = testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens", wrongScope, mintBody(address)))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestMintVerifyConsumeFlow(t *testing.T) {
	f := newTokenRouter(t)
	address, _ := f.registerIssuer(t, "City Hospital", 1, id.SinglePolicy())
	mintToken := f.bearer(t, "issuer:city-hospital", accesstoken.ScopeMint)
	consumeToken := f.bearer(t, "relying:main-st-pharmacy", accesstoken.ScopeConsume)

	minted := f.mint(t, mintToken, mintBody(address))
	if len(minted.TokenID) != 64 {
		t.Fatalf("expected 64 hex char token id, got %q", minted.TokenID)
	}
	if !strings.HasPrefix(minted.Payload, "v1.") {
		t.Fatalf("expected versioned presentation payload, got %q", minted.Payload)
	}
	if minted.Status != "active" {
		t.Fatalf("expected active status, got %s", minted.Status)
	}

	// Verification is public: a scanner posts the payload string without auth.
	verifyRR := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
		"payload": minted.Payload,
	}))
	testutil.AssertStatusOK(t, verifyRR)
	view := testutil.UnmarshalResponse[verifyTokenResponse](t, verifyRR)
	if view.Status != "active" || view.NonceMismatch {
		t.Fatalf("unexpected verification view: %+v", view)
	}
	if view.DocHash != strings.Repeat("ab", 32) || view.Issuer != address {
		t.Fatalf("verification view does not echo the minted fields: %+v", view)
	}

	consumeRR := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/"+minted.TokenID+"/consume", consumeToken, map[string]any{
		"nonce": "nce-handler-1",
	}))
	testutil.AssertStatusOK(t, consumeRR)
	transition := testutil.UnmarshalResponse[transitionResponse](t, consumeRR)
	if transition.Status != "consumed" {
		t.Fatalf("expected consumed status, got %s", transition.Status)
	}

	afterRR := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
		"payload": minted.Payload,
	}))
	testutil.AssertStatusOK(t, afterRR)
	after := testutil.UnmarshalResponse[verifyTokenResponse](t, afterRR)
	if after.Status != "consumed" {
		t.Fatalf("expected consumed status after consume, got %s", after.Status)
	}

	againRR := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/"+minted.TokenID+"/consume", consumeToken, map[string]any{
		"nonce": "nce-handler-1",
	}))
	testutil.AssertStatusAndError(t, againRR, http.StatusConflict, "conflict")
}

func TestMintSchemaValidation(t *testing.T) {
	f := newTokenRouter(t)
	address, _ := f.registerIssuer(t, "City Hospital", 1, id.SinglePolicy())
	token := f.bearer(t, "issuer:city-hospital", accesstoken.ScopeMint)

	edit := func(mutate func(map[string]any)) map[string]any {
		body := mintBody(address)
		mutate(body)
		return body
	}

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing doc_hash", edit(func(m map[string]any) { delete(m, "doc_hash") })},
		{"doc_hash not hex", edit(func(m map[string]any) { m["doc_hash"] = "zz" })},
		{"unknown record type", edit(func(m map[string]any) { m["record_type"] = "dental_xray" })},
		{"zero expiry", edit(func(m map[string]any) { m["expiry_seconds"] = 0 })},
		{"fractional expiry", edit(func(m map[string]any) { m["expiry_seconds"] = 1.5 })},
		{"empty nonce", edit(func(m map[string]any) { m["nonce"] = "" })},
		{"unknown field", edit(func(m map[string]any) { m["priority"] = "high" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens", token, tc.body))
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_failed")
		})
	}

	t.Run("body is not json at all", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/tokens", "{not json")
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}

func TestMintUnknownIssuerUnauthorized(t *testing.T) {
	f := newTokenRouter(t)
	token := f.bearer(t, "issuer:ghost", accesstoken.ScopeMint)

	body := mintBody(strings.Repeat("cd", 32))
	rr := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens", token, body))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestMintReplayConflicts(t *testing.T) {
	f := newTokenRouter(t)
	address, _ := f.registerIssuer(t, "City Hospital", 1, id.SinglePolicy())
	token := f.bearer(t, "issuer:city-hospital", accesstoken.ScopeMint)

	f.mint(t, token, mintBody(address))
	rr := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens", token, mintBody(address)))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
}

func TestVerifyRequestForms(t *testing.T) {
	f := newTokenRouter(t)
	address, _ := f.registerIssuer(t, "City Hospital", 1, id.SinglePolicy())
	token := f.bearer(t, "issuer:city-hospital", accesstoken.ScopeMint)
	minted := f.mint(t, token, mintBody(address))

	t.Run("split token_id and nonce form", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
			"token_id": minted.TokenID,
			"nonce":    "nce-handler-1",
		}))
		testutil.AssertStatusOK(t, rr)
		view := testutil.UnmarshalResponse[verifyTokenResponse](t, rr)
		if view.NonceMismatch {
			t.Fatalf("expected matching nonce, got mismatch")
		}
	})

	t.Run("wrong nonce flags mismatch with identical shape", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
			"token_id": minted.TokenID,
			"nonce":    "stolen",
		}))
		testutil.AssertStatusOK(t, rr)
		view := testutil.UnmarshalResponse[verifyTokenResponse](t, rr)
		if !view.NonceMismatch {
			t.Fatalf("expected nonce mismatch flag")
		}
		if view.Status != "active" || view.DocHash == "" {
			t.Fatalf("mismatch must not change the response shape: %+v", view)
		}
	})

	t.Run("both forms at once is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
			"payload":  minted.Payload,
			"token_id": minted.TokenID,
			"nonce":    "nce-handler-1",
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_failed")
	})

	t.Run("garbled payload is invalid input", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
			"payload": "v1.%%%%",
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
			"token_id": strings.Repeat("9a", 32),
			"nonce":    "nce-handler-1",
		}))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestConsumeWrongNonceBlocks(t *testing.T) {
	f := newTokenRouter(t)
	address, _ := f.registerIssuer(t, "City Hospital", 1, id.SinglePolicy())
	mintToken := f.bearer(t, "issuer:city-hospital", accesstoken.ScopeMint)
	consumeToken := f.bearer(t, "relying:kiosk", accesstoken.ScopeConsume)
	minted := f.mint(t, mintToken, mintBody(address))

	rr := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/"+minted.TokenID+"/consume", consumeToken, map[string]any{
		"nonce": "stolen",
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

	verifyRR := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/verify", map[string]any{
		"payload": minted.Payload,
	}))
	view := testutil.UnmarshalResponse[verifyTokenResponse](t, verifyRR)
	if view.Status != "active" {
		t.Fatalf("failed consume must leave the token active, got %s", view.Status)
	}
}

func TestRevokeFlow(t *testing.T) {
	f := newTokenRouter(t)
	address, privs := f.registerIssuer(t, "City Hospital", 1, id.SinglePolicy())
	mintToken := f.bearer(t, "issuer:city-hospital", accesstoken.ScopeMint)
	revokeToken := f.bearer(t, "issuer:city-hospital", accesstoken.ScopeRevoke)
	consumeToken := f.bearer(t, "relying:kiosk", accesstoken.ScopeConsume)
	minted := f.mint(t, mintToken, mintBody(address))

	rr := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/"+minted.TokenID+"/revoke", revokeToken, map[string]any{
		"reason":  "patient lost phone",
		"command": signCommand([]byte("revoke token"), privs[0]),
	}))
	testutil.AssertStatusOK(t, rr)
	transition := testutil.UnmarshalResponse[transitionResponse](t, rr)
	if transition.Status != "revoked" {
		t.Fatalf("expected revoked status, got %s", transition.Status)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected one delete instruction, got %d", f.notifier.count())
	}

	consumeRR := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/"+minted.TokenID+"/consume", consumeToken, map[string]any{
		"nonce": "nce-handler-1",
	}))
	testutil.AssertStatusAndError(t, consumeRR, http.StatusConflict, "conflict")
}

func TestRevokeSensitiveRecordQuorumViaHandler(t *testing.T) {
	f := newTokenRouter(t)
	policy, err := id.ThresholdPolicy(2, 3)
	if err != nil {
		t.Fatalf("failed to build policy: %v", err)
	}
	address, privs := f.registerIssuer(t, "Regional Clinic", 3, policy)
	mintToken := f.bearer(t, "issuer:regional-clinic", accesstoken.ScopeMint)
	revokeToken := f.bearer(t, "issuer:regional-clinic", accesstoken.ScopeRevoke)

	body := mintBody(address)
	body["record_type"] = "prescription"
	minted := f.mint(t, mintToken, body)

	short := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/"+minted.TokenID+"/revoke", revokeToken, map[string]any{
		"command": signCommand([]byte("revoke rx"), privs[0]),
	}))
	testutil.AssertStatusAndError(t, short, http.StatusForbidden, "forbidden")

	full := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/"+minted.TokenID+"/revoke", revokeToken, map[string]any{
		"command": signCommand([]byte("revoke rx"), privs[0], privs[1]),
	}))
	testutil.AssertStatusOK(t, full)
}

func TestInvalidTokenIDInPath(t *testing.T) {
	f := newTokenRouter(t)
	token := f.bearer(t, "relying:kiosk", accesstoken.ScopeConsume)

	rr := testutil.DoRequest(f.router, testutil.NewBearerJSONRequest(t, http.MethodPost, "/tokens/not-hex/consume", token, map[string]any{
		"nonce": "n",
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}
