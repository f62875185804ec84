package authority

import (
	"context"
	"sort"

	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

// ChangeID identifies a pending authority change. Ids are independent of
// action ids and never reused.
type ChangeID uint64

// ChangeType selects what an authority change does.
type ChangeType string

const (
	ChangeSetGovernance ChangeType = "set_governance"
	ChangeGrant         ChangeType = "grant"
	ChangeRevoke        ChangeType = "revoke"
)

// Change is the payload of an authority change. Governance swaps use
// NewGovernance; grants and revokes use Grant.
type Change struct {
	Type          ChangeType   `json:"type"`
	NewGovernance string       `json:"new_governance,omitempty"`
	Grant         models.Grant `json:"grant,omitempty"`
}

// Validate checks the change is well formed. It is only ever called at
// proposal time: authority changes are not re-validated at confirmation.
func (c Change) Validate() error {
	switch c.Type {
	case ChangeSetGovernance:
		if c.NewGovernance == "" {
			return dErrors.New(dErrors.CodeInvalidPayload, "new governance identity is required")
		}
		return nil
	case ChangeGrant, ChangeRevoke:
		if err := validateGrant(c.Grant); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidPayload, "invalid grant")
		}
		return nil
	default:
		return dErrors.Newf(dErrors.CodeInvalidPayload, "unknown authority change type %q", c.Type)
	}
}

// PendingChange is an authority change waiting out the engine delay.
type PendingChange struct {
	ID            ChangeID    `json:"id"`
	Change        Change      `json:"change"`
	Proposer      string      `json:"proposer"`
	ProposedAt    models.Tick `json:"proposed_at"`
	ConfirmableAt models.Tick `json:"confirmable_at"`
}

// ProposeChange queues change behind delay. Only root may propose.
func (r *Resolver) ProposeChange(ctx context.Context, caller string, change Change, now, delay models.Tick) (*PendingChange, error) {
	if !r.IsRoot(ctx, caller) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller does not hold governance")
	}
	if err := change.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastChangeID++
	pc := &PendingChange{
		ID:            r.lastChangeID,
		Change:        change,
		Proposer:      caller,
		ProposedAt:    now,
		ConfirmableAt: now + delay,
	}
	r.changes[pc.ID] = pc
	r.logInfo(ctx, "authority change proposed", "change_id", pc.ID, "type", change.Type, "actor", caller)
	return pc, nil
}

// ConfirmChange applies a pending change once its delay has elapsed. It
// returns false with no error while the change is still timelocked.
func (r *Resolver) ConfirmChange(ctx context.Context, caller string, id ChangeID, now models.Tick) (*PendingChange, bool, error) {
	if !r.IsRoot(ctx, caller) {
		return nil, false, dErrors.New(dErrors.CodeUnauthorized, "caller does not hold governance")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.changes[id]
	if !ok {
		return nil, false, dErrors.New(dErrors.CodeUnknownAction, "authority change not found")
	}
	if now < pc.ConfirmableAt {
		return pc, false, nil
	}
	delete(r.changes, id)

	switch pc.Change.Type {
	case ChangeSetGovernance:
		r.governance = pc.Change.NewGovernance
	case ChangeGrant:
		r.grant(pc.Change.Grant)
	case ChangeRevoke:
		r.revoke(pc.Change.Grant)
	}
	r.logInfo(ctx, "authority change confirmed", "change_id", pc.ID, "type", pc.Change.Type, "actor", caller)
	return pc, true, nil
}

// CancelChange drops a pending change at any time before confirmation.
func (r *Resolver) CancelChange(ctx context.Context, caller string, id ChangeID) (*PendingChange, error) {
	if !r.IsRoot(ctx, caller) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller does not hold governance")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.changes[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnknownAction, "authority change not found")
	}
	delete(r.changes, id)
	r.logInfo(ctx, "authority change cancelled", "change_id", pc.ID, "type", pc.Change.Type, "actor", caller)
	return pc, nil
}

// PendingChanges lists queued changes in id order.
func (r *Resolver) PendingChanges() []PendingChange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PendingChange, 0, len(r.changes))
	for _, pc := range r.changes {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Resolver) logInfo(ctx context.Context, msg string, args ...any) {
	if r.logger != nil {
		r.logger.InfoContext(ctx, msg, args...)
	}
}
