package e2e

import (
	"github.com/cucumber/godog"

	"timelock/e2e/steps/common"
	"timelock/e2e/steps/timelock"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	timelock.RegisterSteps(ctx, tc)
}
