package models

import (
	dErrors "timelock/pkg/domain-errors"
)

// Expiration is the window after ConfirmableAt during which an action can
// still be confirmed. The zero value is deliberately invalid: every engine
// must state its window, including "never".
type Expiration struct {
	window Tick
	set    bool
}

// NeverExpires configures actions that stay confirmable indefinitely.
func NeverExpires() Expiration {
	return Expiration{set: true}
}

// ExpiresAfter configures a window of w ticks; w == 0 is NeverExpires.
func ExpiresAfter(w Tick) Expiration {
	return Expiration{window: w, set: true}
}

// Window returns the configured window, 0 meaning never.
func (e Expiration) Window() Tick {
	return e.window
}

// IsSet reports whether the expiration was configured explicitly.
func (e Expiration) IsSet() bool {
	return e.set
}

// DelayConfig bounds the timelock delay of one engine.
//
// Invariants:
//   - MinDelay <= CurrentDelay <= MaxDelay
//   - CurrentDelay changes only through the engine's own set_delay action or
//     the one-time bootstrap call
type DelayConfig struct {
	MinDelay     Tick `json:"min_delay"`
	MaxDelay     Tick `json:"max_delay"`
	CurrentDelay Tick `json:"current_delay"`
}

// DelayState is the part of an engine's delay that outlives the process: the
// current delay and whether the one-time bootstrap has been used.
type DelayState struct {
	CurrentDelay Tick `json:"current_delay"`
	Bootstrapped bool `json:"bootstrapped"`
}

// NewDelayConfig validates the bounds and the initial delay.
func NewDelayConfig(minDelay, maxDelay, initial Tick) (DelayConfig, error) {
	if minDelay > maxDelay {
		return DelayConfig{}, dErrors.New(dErrors.CodeValidation, "min delay must not exceed max delay")
	}
	cfg := DelayConfig{MinDelay: minDelay, MaxDelay: maxDelay}
	if err := cfg.CheckDelay(initial); err != nil {
		return DelayConfig{}, err
	}
	cfg.CurrentDelay = initial
	return cfg, nil
}

// CheckDelay reports whether d is within bounds.
func (c DelayConfig) CheckDelay(d Tick) error {
	if d < c.MinDelay || d > c.MaxDelay {
		return dErrors.Newf(dErrors.CodeInvalidPayload, "delay %d outside [%d, %d]", d, c.MinDelay, c.MaxDelay)
	}
	return nil
}
