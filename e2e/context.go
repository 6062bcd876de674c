package e2e

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext carries the state of one scenario: the HTTP client, the last
// response, the bearer token in use, and the issuer key material generated
// along the way. Scenarios run against a live server; point
// ATTESTO_E2E_BASE_URL at the instance under test and ATTESTO_E2E_JWT_KEY at
// its signing key.
type TestContext struct {
	baseURL    string
	signingKey []byte
	client     *http.Client

	accessToken string

	lastStatus int
	lastBody   []byte

	issuers map[string]*issuerKeys

	tokenID string
	payload string
	nonce   string
}

// issuerKeys holds the Ed25519 private keys generated for an issuer during
// the scenario, so later steps can sign commands on its behalf.
type issuerKeys struct {
	address string
	private []ed25519.PrivateKey
}

// NewTestContext creates a test context from the environment.
func NewTestContext() *TestContext {
	return &TestContext{
		baseURL:    envOr("ATTESTO_E2E_BASE_URL", "http://localhost:8080"),
		signingKey: []byte(envOr("ATTESTO_E2E_JWT_KEY", "dev-secret-key-change-in-production")),
		client:     &http.Client{Timeout: 10 * time.Second},
		issuers:    make(map[string]*issuerKeys),
	}
}

// Reset clears per-scenario state so scenarios cannot leak into each other.
func (tc *TestContext) Reset() {
	tc.accessToken = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.issuers = make(map[string]*issuerKeys)
	tc.tokenID = ""
	tc.payload = ""
	tc.nonce = ""
}

// POST sends a JSON body, attaching the current bearer token when one is set.
func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

// GET sends a request with optional extra headers, attaching the current
// bearer token when one is set.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.accessToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	return nil
}

// GetResponseField returns a top-level field from the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(tc.lastBody, &decoded); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	value, ok := decoded[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.lastBody)
	}
	return value, nil
}

// ResponseContains reports whether the last JSON response has the field.
func (tc *TestContext) ResponseContains(field string) bool {
	_, err := tc.GetResponseField(field)
	return err == nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// AuthenticateAs signs a bearer token for the actor with the given scopes,
// using the same HS256 key the server validates with.
func (tc *TestContext) AuthenticateAs(actor string, scopes []string) error {
	claims := jwt.MapClaims{
		"actor":  actor,
		"scopes": scopes,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
	if err != nil {
		return fmt.Errorf("sign access token: %w", err)
	}
	tc.accessToken = token
	return nil
}

// ClearAccessToken drops the current bearer token so requests go out
// unauthenticated.
func (tc *TestContext) ClearAccessToken() {
	tc.accessToken = ""
}

// GenerateIssuerKeys creates count Ed25519 key pairs for the named issuer,
// remembers the private halves, and returns the hex-encoded public keys in
// the format the registration endpoint expects.
func (tc *TestContext) GenerateIssuerKeys(name string, count int) ([]string, error) {
	keys := &issuerKeys{private: make([]ed25519.PrivateKey, 0, count)}
	hexPubs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate issuer key: %w", err)
		}
		keys.private = append(keys.private, priv)
		hexPubs = append(hexPubs, hex.EncodeToString(pub))
	}
	tc.issuers[name] = keys
	return hexPubs, nil
}

// SaveIssuerAddress records the address the registry assigned to the issuer.
func (tc *TestContext) SaveIssuerAddress(name, address string) {
	if keys, ok := tc.issuers[name]; ok {
		keys.address = address
	}
}

// IssuerAddress returns the registered address of a scenario issuer.
func (tc *TestContext) IssuerAddress(name string) (string, error) {
	keys, ok := tc.issuers[name]
	if !ok || keys.address == "" {
		return "", fmt.Errorf("no issuer named %q has been registered in this scenario", name)
	}
	return keys.address, nil
}

// IssuerCommand signs the payload with the first signers keys of the named
// issuer and returns the wire-shaped signed command object.
func (tc *TestContext) IssuerCommand(name, payload string, signers int) (map[string]interface{}, error) {
	keys, ok := tc.issuers[name]
	if !ok {
		return nil, fmt.Errorf("no issuer named %q has keys in this scenario", name)
	}
	if signers > len(keys.private) {
		return nil, fmt.Errorf("issuer %q has %d keys, cannot sign with %d", name, len(keys.private), signers)
	}
	raw := []byte(payload)
	signatures := make([]map[string]interface{}, 0, signers)
	for _, priv := range keys.private[:signers] {
		signatures = append(signatures, map[string]interface{}{
			"public_key": base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey)),
			"signature":  base64.StdEncoding.EncodeToString(ed25519.Sign(priv, raw)),
		})
	}
	return map[string]interface{}{
		"payload":    base64.StdEncoding.EncodeToString(raw),
		"signatures": signatures,
	}, nil
}

// SaveMintedToken remembers the token a mint response returned.
func (tc *TestContext) SaveMintedToken(tokenID, payload, nonce string) {
	tc.tokenID = tokenID
	tc.payload = payload
	tc.nonce = nonce
}

func (tc *TestContext) MintedTokenID() string {
	return tc.tokenID
}

func (tc *TestContext) MintedPayload() string {
	return tc.payload
}

func (tc *TestContext) MintedNonce() string {
	return tc.nonce
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
