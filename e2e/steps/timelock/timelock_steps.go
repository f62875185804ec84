package timelock

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"
)

type TestContext interface {
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	Save(key string, v any)
	Saved(key string) (any, bool)
}

// RegisterSteps registers proposal lifecycle steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &timelockSteps{tc: tc}
	ctx.Step(`^I propose "([^"]*)" on engine "([^"]*)" with payload:$`, s.propose)
	ctx.Step(`^I remember the action as "([^"]*)"$`, s.remember)
	ctx.Step(`^I confirm action "([^"]*)" on engine "([^"]*)"$`, s.confirm)
	ctx.Step(`^I cancel action "([^"]*)" on engine "([^"]*)"$`, s.cancel)
	ctx.Step(`^I wait (\d+) seconds?$`, s.wait)
	ctx.Step(`^the outcome should be "([^"]*)"$`, s.outcomeShouldBe)
}

type timelockSteps struct {
	tc TestContext
}

func (s *timelockSteps) propose(_ context.Context, kind, engine string, payload *godog.DocString) error {
	var body map[string]any
	if err := json.Unmarshal([]byte(payload.Content), &body); err != nil {
		return fmt.Errorf("payload is not JSON: %w", err)
	}
	return s.tc.POST(fmt.Sprintf("/engines/%s/actions", engine), map[string]any{
		"kind":    kind,
		"payload": body,
	})
}

func (s *timelockSteps) remember(_ context.Context, name string) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save(name, id)
	return nil
}

func (s *timelockSteps) actionPath(name, engine, verb string) (string, error) {
	id, ok := s.tc.Saved(name)
	if !ok {
		return "", fmt.Errorf("no action remembered as %q", name)
	}
	if f, ok := id.(float64); ok {
		id = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("/engines/%s/actions/%v/%s", engine, id, verb), nil
}

func (s *timelockSteps) confirm(_ context.Context, name, engine string) error {
	path, err := s.actionPath(name, engine, "confirm")
	if err != nil {
		return err
	}
	return s.tc.POST(path, nil)
}

func (s *timelockSteps) cancel(_ context.Context, name, engine string) error {
	path, err := s.actionPath(name, engine, "cancel")
	if err != nil {
		return err
	}
	return s.tc.POST(path, nil)
}

func (s *timelockSteps) wait(_ context.Context, seconds int) error {
	time.Sleep(time.Duration(seconds) * time.Second)
	return nil
}

func (s *timelockSteps) outcomeShouldBe(_ context.Context, want string) error {
	v, err := s.tc.GetResponseField("outcome")
	if err != nil {
		return err
	}
	if v != want {
		return fmt.Errorf("expected outcome %q, got %v", want, v)
	}
	return nil
}
