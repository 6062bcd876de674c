// Package accesstoken issues and validates the HS256 bearer tokens relying
// parties and admin tooling present to the API. Issuer commands are
// authenticated separately by signature; bearer tokens only gate transport
// access and carry scopes.
package accesstoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "attesto/pkg/domain-errors"
)

// Scopes understood by the API surface.
const (
	ScopeMint    = "ledger:mint"
	ScopeConsume = "ledger:consume"
	ScopeRevoke  = "ledger:revoke"
	ScopeAudit   = "audit:read"
	ScopeAdmin   = "registry:admin"
)

// Claims represents the JWT claims for API access tokens.
type Claims struct {
	Actor  string   `json:"actor"`
	Issuer string   `json:"issuer_address,omitempty"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims carry the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Service handles access token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey string, issuer string, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Generate signs an access token for the given actor. issuerAddress is empty
// for relying parties that only verify and consume.
func (s *Service) Generate(actor, issuerAddress string, scopes []string, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Actor:  actor,
		Issuer: issuerAddress,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// ValidateToken parses and verifies a bearer token.
//
// Errors: CodeUnauthorized for expired, malformed, or wrongly-signed tokens.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}
