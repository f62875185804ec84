package service

import (
	"context"
	"errors"

	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
	"timelock/pkg/platform/sentinel"
)

// KindSetDelay is registered on every engine: the engine governs its own
// delay through the same timelock as consumer changes.
const KindSetDelay models.ActionKind = "timelock.set_delay"

// SetDelay changes the delay applied to future proposals. Actions already
// pending keep the delay they were proposed with.
type SetDelay struct {
	Delay models.Tick `json:"delay"`
}

func (SetDelay) Kind() models.ActionKind { return KindSetDelay }

// Delay returns a copy of the delay configuration.
func (e *Engine) Delay() models.DelayConfig {
	e.delayMu.RLock()
	defer e.delayMu.RUnlock()
	return e.delay
}

func (e *Engine) setDelayHook() hooks.Hook {
	return hooks.Hook{
		Kind: KindSetDelay,
		Validate: func(_ context.Context, p models.Payload) error {
			sd, ok := p.(SetDelay)
			if !ok {
				return dErrors.New(dErrors.CodeInvalidPayload, "expected set_delay payload")
			}
			return e.Delay().CheckDelay(sd.Delay)
		},
		Apply: func(ctx context.Context, p models.Payload, emit hooks.Emitter) error {
			sd := p.(SetDelay)
			if err := e.ledger.SaveDelay(ctx, sd.Delay); err != nil {
				return err
			}
			e.delayMu.Lock()
			previous := e.delay.CurrentDelay
			e.delay.CurrentDelay = sd.Delay
			e.delayMu.Unlock()
			emit.Emit(ctx, models.EventDelaySet, map[string]any{
				"delay":    uint64(sd.Delay),
				"previous": uint64(previous),
			})
			return nil
		},
		Decode: hooks.DecodeJSON[SetDelay],
	}
}

// SetDelayAfterSetup sets the current delay without a timelock. It is meant
// for deployment and works exactly once per engine; the claim is kept in the
// ledger, so later calls fail with CodeAlreadySet even after a restart.
func (e *Engine) SetDelayAfterSetup(ctx context.Context, caller string, delay models.Tick) error {
	if !e.authority.IsRoot(ctx, caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller does not hold governance")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	previous, err := e.claimBootstrap(ctx, delay)
	if err != nil {
		return err
	}

	e.publish(ctx, models.Event{
		Type:  models.EventDelayBootstrapped,
		Actor: caller,
		At:    e.now(ctx),
		Attributes: map[string]any{
			"delay":    uint64(delay),
			"previous": uint64(previous),
		},
	})
	return nil
}

// claimBootstrap records the bootstrap in the ledger before changing the
// in-memory delay, and returns the delay it replaced.
func (e *Engine) claimBootstrap(ctx context.Context, delay models.Tick) (models.Tick, error) {
	e.delayMu.Lock()
	defer e.delayMu.Unlock()
	if e.bootstrapped {
		return 0, dErrors.New(dErrors.CodeAlreadySet, "delay has already been set after setup")
	}
	if err := e.delay.CheckDelay(delay); err != nil {
		return 0, err
	}
	if err := e.ledger.ClaimBootstrap(ctx, delay); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			e.bootstrapped = true
			return 0, dErrors.New(dErrors.CodeAlreadySet, "delay has already been set after setup")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record delay bootstrap")
	}
	previous := e.delay.CurrentDelay
	e.delay.CurrentDelay = delay
	e.bootstrapped = true
	return previous, nil
}

// Restore loads the delay state persisted by an earlier process sharing the
// ledger. An engine whose ledger never stored one keeps its configured delay.
func (e *Engine) Restore(ctx context.Context) error {
	state, err := e.ledger.LoadDelay(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load delay state")
	}

	e.delayMu.Lock()
	defer e.delayMu.Unlock()
	if err := e.delay.CheckDelay(state.CurrentDelay); err != nil {
		return dErrors.Newf(dErrors.CodeValidation, "persisted delay %d outside configured bounds [%d, %d]",
			state.CurrentDelay, e.delay.MinDelay, e.delay.MaxDelay)
	}
	e.delay.CurrentDelay = state.CurrentDelay
	e.bootstrapped = state.Bootstrapped
	return nil
}
