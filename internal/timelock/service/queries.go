package service

import (
	"context"

	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

// GetPendingAction returns the action under id while it is still pending.
// Expiry is computed at read time: an action past its window reads as gone
// even before Confirm or a sweep has physically removed it.
func (e *Engine) GetPendingAction(ctx context.Context, id models.ActionID) (*models.PendingAction, error) {
	action, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.IsExpiredAt(e.now(ctx)) {
		return nil, dErrors.New(dErrors.CodeUnknownAction, "action is not pending")
	}
	return action, nil
}

// HasPendingAction reports whether id is pending and not expired.
func (e *Engine) HasPendingAction(ctx context.Context, id models.ActionID) (bool, error) {
	_, err := e.GetPendingAction(ctx, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnknownAction) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *Engine) PendingActionKind(ctx context.Context, id models.ActionID) (models.ActionKind, error) {
	action, err := e.GetPendingAction(ctx, id)
	if err != nil {
		return "", err
	}
	return action.Kind, nil
}

func (e *Engine) GetPendingPayload(ctx context.Context, id models.ActionID) (models.Payload, error) {
	action, err := e.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}
	return action.Payload, nil
}

// GetConfirmationDeadline returns the tick from which id may be confirmed.
// ok is false when the action is not pending.
func (e *Engine) GetConfirmationDeadline(ctx context.Context, id models.ActionID) (at models.Tick, ok bool, err error) {
	action, err := e.GetPendingAction(ctx, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnknownAction) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return action.ConfirmableAt, true, nil
}

// ListPending returns every unexpired pending action in id order.
func (e *Engine) ListPending(ctx context.Context) ([]*models.PendingAction, error) {
	recs, err := e.ledger.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list actions")
	}
	now := e.now(ctx)
	out := make([]*models.PendingAction, 0, len(recs))
	for _, rec := range recs {
		if expiredRecord(rec, now) {
			continue
		}
		action, err := e.hooks.FromRecord(rec)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode stored action")
		}
		out = append(out, action)
	}
	return out, nil
}
