package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	AuthenticateAs(actor string, scopes []string) error
	ClearAccessToken()
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
	ResponseContains(field string) bool
}

// RegisterSteps registers background, authentication, and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Background steps
	ctx.Step(`^the attesto service is running$`, steps.serviceIsRunning)
	ctx.Step(`^I am authenticated as "([^"]*)" with scopes "([^"]*)"$`, steps.authenticateAs)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)

	// Generic response assertions
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.responseErrorShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/healthz", nil); err != nil {
		return fmt.Errorf("attesto is not reachable: %w", err)
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("health check returned %d", s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *commonSteps) authenticateAs(ctx context.Context, actor, scopes string) error {
	return s.tc.AuthenticateAs(actor, strings.Split(scopes, ","))
}

func (s *commonSteps) notAuthenticated(ctx context.Context) error {
	s.tc.ClearAccessToken()
	return nil
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, status int) error {
	if s.tc.GetLastResponseStatus() != status {
		return fmt.Errorf("expected status %d, got %d: %s",
			status, s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) responseErrorShouldBe(ctx context.Context, code string) error {
	errCode, err := s.tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if errCode != code {
		return fmt.Errorf("expected error code %q, got %v", code, errCode)
	}
	return nil
}

func (s *commonSteps) responseShouldContain(ctx context.Context, field string) error {
	if !s.tc.ResponseContains(field) {
		return fmt.Errorf("response has no field %q: %s", field, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBe(ctx context.Context, field, want string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprintf("%v", value) != want {
		return fmt.Errorf("expected %s to be %q, got %v", field, want, value)
	}
	return nil
}
