package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the subset of the e2e context the common steps need.
type TestContext interface {
	ActAs(identity string)
	GET(path string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers identity, request and assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &commonSteps{tc: tc}
	ctx.Step(`^I am "([^"]*)"$`, s.iAm)
	ctx.Step(`^I am anonymous$`, s.iAmAnonymous)
	ctx.Step(`^I GET "([^"]*)"$`, s.iGET)
	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, s.fieldShouldBe)
	ctx.Step(`^the error should be "([^"]*)"$`, s.errorShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) iAm(_ context.Context, identity string) error {
	s.tc.ActAs(identity)
	return nil
}

func (s *commonSteps) iAmAnonymous(context.Context) error {
	s.tc.ActAs("")
	return nil
}

func (s *commonSteps) iGET(_ context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(_ context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldBe(ctx, "error", code)
}
