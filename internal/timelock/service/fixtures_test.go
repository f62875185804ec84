package service

import (
	"context"
	"errors"
	"sync"

	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

const (
	gov       = "governance"
	admin     = "admin"
	guardian  = "guardian"
	canceller = "canceller"
	stranger  = "stranger"

	kindSetLimit   models.ActionKind = "test.set_limit"
	kindSetEnabled models.ActionKind = "test.set_enabled"

	eventLimitSet   models.EventType = "limit_set"
	eventEnabledSet models.EventType = "enabled_set"
)

type setLimit struct {
	Limit uint64 `json:"limit"`
}

func (setLimit) Kind() models.ActionKind { return kindSetLimit }

type setEnabled struct {
	Enabled bool `json:"enabled"`
}

func (setEnabled) Kind() models.ActionKind { return kindSetEnabled }
func (p setEnabled) Enables() bool         { return p.Enabled }

// switchboard is a minimal consumer: a limit that must stay above a floor
// and an on/off switch.
type switchboard struct {
	mu        sync.Mutex
	limit     uint64
	floor     uint64
	enabled   bool
	applied   int
	failApply bool
	// afterValidate runs once the validate lock is released, standing in for
	// a consumer mutation that lands before apply.
	afterValidate func()
}

func (b *switchboard) RegisterHooks(r *hooks.Registry) error {
	if err := r.Register(hooks.Hook{
		Kind:     kindSetLimit,
		Validate: b.validate,
		Apply:    b.apply,
		Decode:   hooks.DecodeJSON[setLimit],
	}); err != nil {
		return err
	}
	return r.Register(hooks.Hook{
		Kind:     kindSetEnabled,
		Validate: b.validate,
		Apply:    b.apply,
		Decode:   hooks.DecodeJSON[setEnabled],
	})
}

func (b *switchboard) validate(_ context.Context, p models.Payload) error {
	b.mu.Lock()
	err := b.check(p)
	hook := b.afterValidate
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// check must be called with b.mu held.
func (b *switchboard) check(p models.Payload) error {
	switch p := p.(type) {
	case setLimit:
		if p.Limit == 0 {
			return dErrors.New(dErrors.CodeInvalidPayload, "limit must be non-zero")
		}
		if p.Limit < b.floor {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "limit %d below floor %d", p.Limit, b.floor)
		}
		return nil
	case setEnabled:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidPayload, "unsupported payload")
	}
}

func (b *switchboard) apply(ctx context.Context, p models.Payload, emit hooks.Emitter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failApply {
		return errors.New("consumer unavailable")
	}
	if err := b.check(p); err != nil {
		return err
	}
	b.applied++
	switch p := p.(type) {
	case setLimit:
		b.limit = p.Limit
		emit.Emit(ctx, eventLimitSet, map[string]any{"limit": p.Limit})
	case setEnabled:
		b.enabled = p.Enabled
		emit.Emit(ctx, eventEnabledSet, map[string]any{"enabled": p.Enabled})
	}
	return nil
}

func (b *switchboard) setFloor(f uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.floor = f
}

func (b *switchboard) onValidate(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.afterValidate = fn
}

func (b *switchboard) snapshot() (limit uint64, enabled bool, applied int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit, b.enabled, b.applied
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingSink) Publish(_ context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recordingSink) last() models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
