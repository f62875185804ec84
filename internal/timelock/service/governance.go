package service

import (
	"context"

	"timelock/internal/timelock/authority"
	"timelock/internal/timelock/models"
)

// ProposeAuthorityChange queues a governance swap, grant or revoke behind the
// engine's current delay. Only root may propose.
func (e *Engine) ProposeAuthorityChange(ctx context.Context, caller string, change authority.Change) (*authority.PendingChange, error) {
	now := e.now(ctx)
	pc, err := e.authority.ProposeChange(ctx, caller, change, now, e.Delay().CurrentDelay)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, models.Event{
		Type:          models.EventAuthorityChangeProposed,
		Actor:         caller,
		ConfirmableAt: pc.ConfirmableAt,
		At:            now,
		Attributes:    changeAttributes(pc),
	})
	return pc, nil
}

// ConfirmAuthorityChange applies a queued change once its delay has elapsed.
// It returns false, without error, while the change is still timelocked.
func (e *Engine) ConfirmAuthorityChange(ctx context.Context, caller string, id authority.ChangeID) (bool, error) {
	now := e.now(ctx)
	pc, applied, err := e.authority.ConfirmChange(ctx, caller, id, now)
	if err != nil || !applied {
		return false, err
	}
	e.publish(ctx, models.Event{
		Type:       models.EventAuthorityChangeConfirmed,
		Actor:      caller,
		At:         now,
		Attributes: changeAttributes(pc),
	})
	return true, nil
}

// CancelAuthorityChange drops a queued change.
func (e *Engine) CancelAuthorityChange(ctx context.Context, caller string, id authority.ChangeID) error {
	pc, err := e.authority.CancelChange(ctx, caller, id)
	if err != nil {
		return err
	}
	e.publish(ctx, models.Event{
		Type:       models.EventAuthorityChangeCancelled,
		Actor:      caller,
		At:         e.now(ctx),
		Attributes: changeAttributes(pc),
	})
	return nil
}

// PendingAuthorityChanges lists queued authority changes in id order.
func (e *Engine) PendingAuthorityChanges() []authority.PendingChange {
	return e.authority.PendingChanges()
}

func changeAttributes(pc *authority.PendingChange) map[string]any {
	attrs := map[string]any{
		"change_id": uint64(pc.ID),
		"type":      string(pc.Change.Type),
	}
	switch pc.Change.Type {
	case authority.ChangeSetGovernance:
		attrs["new_governance"] = pc.Change.NewGovernance
	case authority.ChangeGrant, authority.ChangeRevoke:
		attrs["identity"] = pc.Change.Grant.Identity
		attrs["kind"] = string(pc.Change.Grant.Kind)
		attrs["capabilities"] = pc.Change.Grant.Capabilities.String()
	}
	return attrs
}
