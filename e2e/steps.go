package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"attesto/e2e/steps/common"
	"attesto/e2e/steps/registry"
	"attesto/e2e/steps/token"
)

// InitializeScenario wires a fresh test context into every scenario.
func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := NewTestContext()
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})
	RegisterSteps(ctx, tc)
}

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (background, authentication, assertions)
	common.RegisterSteps(ctx, tc)

	// Register token lifecycle steps
	token.RegisterSteps(ctx, tc)

	// Register issuer registry steps
	registry.RegisterSteps(ctx, tc)
}
