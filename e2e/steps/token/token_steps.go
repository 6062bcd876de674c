package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetResponseField(field string) (interface{}, error)
	IssuerAddress(name string) (string, error)
	IssuerCommand(name, payload string, signers int) (map[string]interface{}, error)
	SaveMintedToken(tokenID, payload, nonce string)
	MintedTokenID() string
	MintedPayload() string
	MintedNonce() string
}

// RegisterSteps registers token lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &tokenSteps{tc: tc}

	// Minting steps
	ctx.Step(`^I mint a "([^"]*)" token for issuer "([^"]*)" with nonce "([^"]*)"$`, steps.mintToken)
	ctx.Step(`^I save the minted token$`, steps.saveMintedToken)

	// Verification steps
	ctx.Step(`^I verify the minted token by payload$`, steps.verifyByPayload)
	ctx.Step(`^I verify the minted token by id and nonce$`, steps.verifyByIDAndNonce)
	ctx.Step(`^I verify the minted token with nonce "([^"]*)"$`, steps.verifyWithNonce)
	ctx.Step(`^the verification status should be "([^"]*)"$`, steps.verificationStatusShouldBe)
	ctx.Step(`^the verification should flag a nonce mismatch$`, steps.verificationShouldFlagNonceMismatch)

	// Consumption and revocation steps
	ctx.Step(`^I consume the minted token$`, steps.consumeToken)
	ctx.Step(`^I attempt to consume the same token again$`, steps.consumeToken)
	ctx.Step(`^I consume the minted token with nonce "([^"]*)"$`, steps.consumeTokenWithNonce)
	ctx.Step(`^I revoke the minted token as "([^"]*)" with reason "([^"]*)" and (\d+) signatures?$`, steps.revokeToken)
}

type tokenSteps struct {
	tc TestContext

	// lastNonce carries the nonce from the mint step to the save step; it is
	// part of the presentation but never part of the mint response.
	lastNonce string
}

func (s *tokenSteps) mintToken(ctx context.Context, recordType, issuerName, nonce string) error {
	address, err := s.tc.IssuerAddress(issuerName)
	if err != nil {
		return err
	}
	docHash, err := randomDocHash()
	if err != nil {
		return err
	}
	command, err := s.tc.IssuerCommand(issuerName, "mint "+docHash, 1)
	if err != nil {
		return err
	}
	s.lastNonce = nonce

	body := map[string]interface{}{
		"issuer":         address,
		"doc_hash":       docHash,
		"record_type":    recordType,
		"expiry_seconds": 3600,
		"nonce":          nonce,
		"command":        command,
	}
	return s.tc.POST("/tokens", body)
}

func (s *tokenSteps) saveMintedToken(ctx context.Context) error {
	tokenID, err := s.tc.GetResponseField("token_id")
	if err != nil {
		return err
	}
	payload, err := s.tc.GetResponseField("payload")
	if err != nil {
		return err
	}
	s.tc.SaveMintedToken(tokenID.(string), payload.(string), s.lastNonce)
	return nil
}

func (s *tokenSteps) verifyByPayload(ctx context.Context) error {
	return s.tc.POST("/tokens/verify", map[string]interface{}{
		"payload": s.tc.MintedPayload(),
	})
}

func (s *tokenSteps) verifyByIDAndNonce(ctx context.Context) error {
	return s.verifyWithNonce(ctx, s.tc.MintedNonce())
}

func (s *tokenSteps) verifyWithNonce(ctx context.Context, nonce string) error {
	return s.tc.POST("/tokens/verify", map[string]interface{}{
		"token_id": s.tc.MintedTokenID(),
		"nonce":    nonce,
	})
}

func (s *tokenSteps) verificationStatusShouldBe(ctx context.Context, want string) error {
	status, err := s.tc.GetResponseField("status")
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("expected verification status %q, got %v", want, status)
	}
	return nil
}

func (s *tokenSteps) verificationShouldFlagNonceMismatch(ctx context.Context) error {
	flag, err := s.tc.GetResponseField("nonce_mismatch")
	if err != nil {
		return err
	}
	if flag != true {
		return fmt.Errorf("expected nonce_mismatch to be true, got %v", flag)
	}
	return nil
}

func (s *tokenSteps) consumeToken(ctx context.Context) error {
	return s.consumeTokenWithNonce(ctx, s.tc.MintedNonce())
}

func (s *tokenSteps) consumeTokenWithNonce(ctx context.Context, nonce string) error {
	return s.tc.POST("/tokens/"+s.tc.MintedTokenID()+"/consume", map[string]interface{}{
		"nonce": nonce,
	})
}

func (s *tokenSteps) revokeToken(ctx context.Context, issuerName, reason string, signers int) error {
	command, err := s.tc.IssuerCommand(issuerName, "revoke "+s.tc.MintedTokenID(), signers)
	if err != nil {
		return err
	}
	return s.tc.POST("/tokens/"+s.tc.MintedTokenID()+"/revoke", map[string]interface{}{
		"reason":  reason,
		"command": command,
	})
}

// randomDocHash fabricates a document digest; scenarios care about lifecycle,
// not document contents.
func randomDocHash() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
