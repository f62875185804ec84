package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
	"timelock/pkg/platform/sentinel"
)

// Propose authorizes caller, validates payload against current consumer state
// and stores it behind the current delay. A rejected payload consumes no id.
func (e *Engine) Propose(ctx context.Context, caller string, payload models.Payload) (*models.PendingAction, error) {
	ctx, span := e.tracer.Start(ctx, "timelock.Propose", trace.WithAttributes(
		attribute.String("engine", e.name),
		attribute.String("actor", caller),
	))
	defer span.End()

	action, err := e.propose(ctx, caller, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "propose rejected")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("action_id", int64(action.ID)),
		attribute.String("kind", string(action.Kind)),
	)
	return action, nil
}

func (e *Engine) propose(ctx context.Context, caller string, payload models.Payload) (*models.PendingAction, error) {
	if payload == nil {
		return nil, dErrors.New(dErrors.CodeInvalidPayload, "payload is required")
	}
	hook, ok := e.hooks.Lookup(payload.Kind())
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidPayload, "unknown action kind %q", payload.Kind())
	}
	if !e.authority.CanPropose(ctx, caller, payload) {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "caller may not propose %s", payload.Kind())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := hook.Validate(ctx, payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidPayload, describe(err))
	}

	id, err := e.ledger.NextID(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate action id")
	}
	now := e.now(ctx)
	action, err := models.NewPendingAction(id, payload, caller, now, e.Delay().CurrentDelay, e.expiration)
	if err != nil {
		return nil, err
	}
	rec, err := hooks.ToRecord(action)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode payload")
	}
	if err := e.ledger.Save(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store action")
	}

	e.publish(ctx, models.Event{
		Type:          models.EventActionProposed,
		ActionID:      action.ID,
		Kind:          action.Kind,
		Actor:         caller,
		ConfirmableAt: action.ConfirmableAt,
		At:            now,
	})
	if e.metrics != nil {
		e.metrics.IncrementProposed(e.name, action.Kind)
	}
	return action, nil
}

// Confirm applies a pending action once its delay has elapsed. Only
// infrastructure failures return an error; every other result is reported by
// the outcome so automation can poll freely.
//
// An expired action is swept whoever the caller is. If the consumer's current
// state no longer admits the payload, the action is cancelled rather than
// left pending.
func (e *Engine) Confirm(ctx context.Context, caller string, id models.ActionID) (models.Outcome, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "timelock.Confirm", trace.WithAttributes(
		attribute.String("engine", e.name),
		attribute.String("actor", caller),
		attribute.Int64("action_id", int64(id)),
	))
	defer span.End()

	e.mu.Lock()
	outcome, err := e.confirm(ctx, caller, id)
	e.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return outcome, err
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if e.metrics != nil {
		e.metrics.IncrementOutcome(e.name, outcome)
		e.metrics.ObserveConfirm(e.name, start)
	}
	return outcome, nil
}

// confirm must be called with e.mu held.
func (e *Engine) confirm(ctx context.Context, caller string, id models.ActionID) (models.Outcome, error) {
	action, err := e.load(ctx, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnknownAction) {
			return models.OutcomeUnknownAction, nil
		}
		return models.OutcomeUnknownAction, err
	}

	now := e.now(ctx)
	if action.IsExpiredAt(now) {
		swept, err := e.expire(ctx, action, now)
		if err != nil {
			return models.OutcomeUnknownAction, err
		}
		if !swept {
			return models.OutcomeUnknownAction, nil
		}
		return models.OutcomeExpired, nil
	}
	if !e.authority.CanConfirm(ctx, caller, action.Payload) {
		return models.OutcomeUnauthorized, nil
	}
	if !action.IsConfirmableAt(now) {
		return models.OutcomeNotYetEligible, nil
	}

	hook, ok := e.hooks.Lookup(action.Kind)
	if !ok {
		return models.OutcomeUnknownAction, dErrors.Newf(dErrors.CodeInternal, "no hook for stored kind %q", action.Kind)
	}
	if verr := hook.Validate(ctx, action.Payload); verr != nil {
		if _, err := e.take(ctx, action.ID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return models.OutcomeUnknownAction, nil
			}
			return models.OutcomeUnknownAction, err
		}
		e.retireInvalid(ctx, action, caller, now, verr)
		return models.OutcomeRevalidationFailed, nil
	}

	rec, err := e.take(ctx, action.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.OutcomeUnknownAction, nil
		}
		return models.OutcomeUnknownAction, err
	}
	emitter := &actionEmitter{engine: e, action: action, actor: caller, at: now}
	if err := hook.Apply(ctx, action.Payload, emitter); err != nil {
		// The consumer re-checked under its own lock and found the payload
		// no longer fits; the action is already taken, so it stays retired.
		if dErrors.HasCode(err, dErrors.CodeInvalidPayload) {
			e.retireInvalid(ctx, action, caller, now, err)
			return models.OutcomeRevalidationFailed, nil
		}
		// Put the action back so it stays pending and can be retried.
		if restoreErr := e.ledger.Save(ctx, rec); restoreErr != nil {
			e.logError(ctx, "failed to restore action after apply error",
				"action_id", action.ID,
				"error", restoreErr,
			)
		}
		return models.OutcomeUnknownAction, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply action")
	}

	e.publish(ctx, models.Event{
		Type:     models.EventActionConfirmed,
		ActionID: action.ID,
		Kind:     action.Kind,
		Actor:    caller,
		At:       now,
	})
	return models.OutcomeConfirmed, nil
}

// retireInvalid records the cancellation of an action that was taken from
// the ledger because its payload failed revalidation.
func (e *Engine) retireInvalid(ctx context.Context, action *models.PendingAction, caller string, now models.Tick, cause error) {
	e.logWarn(ctx, "pending action no longer valid, cancelled",
		"action_id", action.ID,
		"kind", action.Kind,
		"actor", caller,
		"error", cause,
	)
	e.publish(ctx, models.Event{
		Type:       models.EventActionCancelled,
		ActionID:   action.ID,
		Kind:       action.Kind,
		Actor:      caller,
		Reason:     models.CancelRevalidationFailed,
		At:         now,
		Attributes: map[string]any{"error": describe(cause)},
	})
	if e.metrics != nil {
		e.metrics.IncrementCancelled(e.name, models.CancelRevalidationFailed)
	}
}

// Cancel retires a pending action at any time before it reaches a terminal
// state. Root, CanCancel holders for the kind, and the original proposer may
// cancel.
func (e *Engine) Cancel(ctx context.Context, caller string, id models.ActionID) error {
	ctx, span := e.tracer.Start(ctx, "timelock.Cancel", trace.WithAttributes(
		attribute.String("engine", e.name),
		attribute.String("actor", caller),
		attribute.Int64("action_id", int64(id)),
	))
	defer span.End()

	e.mu.Lock()
	err := e.cancel(ctx, caller, id)
	e.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel rejected")
	}
	return err
}

func (e *Engine) cancel(ctx context.Context, caller string, id models.ActionID) error {
	action, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	now := e.now(ctx)
	if action.IsExpiredAt(now) {
		if _, err := e.expire(ctx, action, now); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeNotPending, "action has expired")
	}
	if !e.authority.CanCancel(ctx, caller, action.Kind, action.Proposer) {
		return dErrors.Newf(dErrors.CodeUnauthorized, "caller may not cancel %s", action.Kind)
	}
	if _, err := e.take(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUnknownAction, "action is not pending")
		}
		return err
	}

	e.publish(ctx, models.Event{
		Type:     models.EventActionCancelled,
		ActionID: action.ID,
		Kind:     action.Kind,
		Actor:    caller,
		Reason:   models.CancelByCaller,
		At:       now,
	})
	if e.metrics != nil {
		e.metrics.IncrementCancelled(e.name, models.CancelByCaller)
	}
	return nil
}

// SweepExpired removes every action past its window and returns how many were
// swept.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := e.tracer.Start(ctx, "timelock.SweepExpired", trace.WithAttributes(
		attribute.String("engine", e.name),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	recs, err := e.ledger.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list actions")
	}
	now := e.now(ctx)
	swept := 0
	for _, rec := range recs {
		if !expiredRecord(rec, now) {
			continue
		}
		action, err := e.hooks.FromRecord(rec)
		if err != nil {
			return swept, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode stored action")
		}
		ok, err := e.expire(ctx, action, now)
		if err != nil {
			return swept, err
		}
		if ok {
			swept++
		}
	}
	span.SetAttributes(attribute.Int("swept", swept))
	return swept, nil
}

// expire sweeps action. It reports false if the record was already gone.
func (e *Engine) expire(ctx context.Context, action *models.PendingAction, now models.Tick) (bool, error) {
	if _, err := e.take(ctx, action.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	e.publish(ctx, models.Event{
		Type:     models.EventActionExpired,
		ActionID: action.ID,
		Kind:     action.Kind,
		At:       now,
	})
	if e.metrics != nil {
		e.metrics.IncrementExpired(e.name, 1)
	}
	return true, nil
}

// load fetches and decodes a stored action. Missing ids are CodeUnknownAction.
func (e *Engine) load(ctx context.Context, id models.ActionID) (*models.PendingAction, error) {
	if id == models.NoAction {
		return nil, dErrors.New(dErrors.CodeUnknownAction, "action is not pending")
	}
	rec, err := e.ledger.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnknownAction, "action is not pending")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load action")
	}
	action, err := e.hooks.FromRecord(rec)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode stored action")
	}
	return action, nil
}

// take removes id from the ledger. sentinel.ErrNotFound is passed through so
// callers can tell a lost race from a storage failure.
func (e *Engine) take(ctx context.Context, id models.ActionID) (*models.Record, error) {
	rec, err := e.ledger.Take(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear action")
	}
	return rec, nil
}

func expiredRecord(rec *models.Record, now models.Tick) bool {
	return rec.ExpiresAt != 0 && now > rec.ExpiresAt
}

// describe returns the caller-safe message of a hook error.
func describe(err error) string {
	if msg := dErrors.MessageOf(err); msg != "" {
		return msg
	}
	return err.Error()
}
