package e2e

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures drives the feature files against a running attesto server.
// The suite is opt-in because it needs a live instance: start one with the
// dev signing key, then run with ATTESTO_E2E=1. ATTESTO_E2E_BASE_URL and
// ATTESTO_E2E_JWT_KEY override the defaults.
func TestFeatures(t *testing.T) {
	if os.Getenv("ATTESTO_E2E") == "" {
		t.Skip("set ATTESTO_E2E=1 to run the end-to-end suite against a live server")
	}

	suite := godog.TestSuite{
		Name:                "attesto",
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("end-to-end suite failed")
	}
}
