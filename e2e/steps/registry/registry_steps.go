package registry

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GenerateIssuerKeys(name string, count int) ([]string, error)
	SaveIssuerAddress(name, address string)
	IssuerAddress(name string) (string, error)
	IssuerCommand(name, payload string, signers int) (map[string]interface{}, error)
}

// RegisterSteps registers issuer registry step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	// Registration steps
	ctx.Step(`^I register an issuer "([^"]*)" with a single key$`, steps.registerIssuerSingleKey)
	ctx.Step(`^I register an issuer "([^"]*)" with (\d+) keys and a (\d+)-of-(\d+) signing policy$`, steps.registerIssuerWithPolicy)

	// Administration steps
	ctx.Step(`^I list the issuers$`, steps.listIssuers)
	ctx.Step(`^I suspend the issuer "([^"]*)" with (\d+) signatures?$`, steps.suspendIssuer)

	// Registry assertions
	ctx.Step(`^the issuer list should include "([^"]*)"$`, steps.issuerListShouldInclude)
	ctx.Step(`^the issuer "([^"]*)" should have status "([^"]*)"$`, steps.issuerShouldHaveStatus)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) registerIssuerSingleKey(ctx context.Context, name string) error {
	keys, err := s.tc.GenerateIssuerKeys(name, 1)
	if err != nil {
		return err
	}
	if err := s.tc.POST("/admin/issuers", map[string]interface{}{
		"name": name,
		"keys": keys,
	}); err != nil {
		return err
	}
	return s.rememberAddress(name)
}

func (s *registrySteps) registerIssuerWithPolicy(ctx context.Context, name string, keyCount, required, total int) error {
	keys, err := s.tc.GenerateIssuerKeys(name, keyCount)
	if err != nil {
		return err
	}
	if err := s.tc.POST("/admin/issuers", map[string]interface{}{
		"name": name,
		"keys": keys,
		"policy": map[string]interface{}{
			"kind":     "threshold",
			"required": required,
			"total":    total,
		},
	}); err != nil {
		return err
	}
	return s.rememberAddress(name)
}

// rememberAddress captures the assigned address after a successful
// registration. Failed registrations are left for the assertion steps.
func (s *registrySteps) rememberAddress(name string) error {
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	address, err := s.tc.GetResponseField("address")
	if err != nil {
		return err
	}
	s.tc.SaveIssuerAddress(name, address.(string))
	return nil
}

func (s *registrySteps) listIssuers(ctx context.Context) error {
	return s.tc.GET("/admin/issuers", nil)
}

func (s *registrySteps) suspendIssuer(ctx context.Context, name string, signers int) error {
	address, err := s.tc.IssuerAddress(name)
	if err != nil {
		return err
	}
	command, err := s.tc.IssuerCommand(name, "suspend "+address, signers)
	if err != nil {
		return err
	}
	return s.tc.POST("/admin/issuers/"+address+"/suspend", map[string]interface{}{
		"command": command,
	})
}

func (s *registrySteps) issuerListShouldInclude(ctx context.Context, name string) error {
	issuers, err := s.tc.GetResponseField("issuers")
	if err != nil {
		return err
	}
	list, ok := issuers.([]interface{})
	if !ok {
		return fmt.Errorf("issuers field is not a list: %v", issuers)
	}
	for _, entry := range list {
		if issuer, ok := entry.(map[string]interface{}); ok && issuer["name"] == name {
			return nil
		}
	}
	return fmt.Errorf("issuer %q not found in list of %d issuers", name, len(list))
}

func (s *registrySteps) issuerShouldHaveStatus(ctx context.Context, name, want string) error {
	address, err := s.tc.IssuerAddress(name)
	if err != nil {
		return err
	}
	if err := s.tc.GET("/admin/issuers/"+address, nil); err != nil {
		return err
	}
	status, err := s.tc.GetResponseField("status")
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("expected issuer %q to have status %q, got %v", name, want, status)
	}
	return nil
}
