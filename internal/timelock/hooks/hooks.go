// Package hooks holds the Validation Hook Registry: exactly one hook per
// action kind, supplied by the consumer that owns the state the kind mutates.
package hooks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

// Emitter lets a consumer publish its own "Set" events while applying a
// payload. The engine supplies it and fills in engine, action and tick.
type Emitter interface {
	Emit(ctx context.Context, eventType models.EventType, attrs map[string]any)
}

// Hook binds a kind to its consumer.
//
// Validate must be free of side effects and read genuinely current state: the
// engine calls it once at proposal and again at confirmation. A non-nil error
// means the payload violates a documented bound.
//
// Apply runs exactly once, after a successful confirmation, under the engine
// lock. The engine lock does not cover the consumer's own mutators, so Apply
// must re-check the payload under the lock it mutates with. A
// CodeInvalidPayload error from Apply cancels the action as a revalidation
// failure; any other error leaves it pending.
//
// Decode rebuilds a payload from its stored JSON form.
type Hook struct {
	Kind     models.ActionKind
	Validate func(ctx context.Context, p models.Payload) error
	Apply    func(ctx context.Context, p models.Payload, emit Emitter) error
	Decode   func(raw json.RawMessage) (models.Payload, error)
}

// Registrar is implemented by consumers that contribute hooks.
type Registrar interface {
	RegisterHooks(r *Registry) error
}

// Registry maps kinds to hooks for one engine.
type Registry struct {
	mu    sync.RWMutex
	hooks map[models.ActionKind]Hook
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[models.ActionKind]Hook)}
}

// Register adds h. A kind may be registered only once.
func (r *Registry) Register(h Hook) error {
	if h.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "hook kind is required")
	}
	if h.Validate == nil || h.Apply == nil || h.Decode == nil {
		return dErrors.Newf(dErrors.CodeValidation, "hook %q must define validate, apply and decode", h.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[h.Kind]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "hook for kind %q already registered", h.Kind)
	}
	r.hooks[h.Kind] = h
	return nil
}

// Lookup returns the hook for kind.
func (r *Registry) Lookup(kind models.ActionKind) (Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[kind]
	return h, ok
}

// Kinds lists registered kinds in lexical order.
func (r *Registry) Kinds() []models.ActionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ActionKind, 0, len(r.hooks))
	for k := range r.hooks {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decode rebuilds a payload of kind from raw JSON.
func (r *Registry) Decode(kind models.ActionKind, raw json.RawMessage) (models.Payload, error) {
	h, ok := r.Lookup(kind)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidPayload, "unknown action kind %q", kind)
	}
	p, err := h.Decode(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidPayload, "malformed payload")
	}
	if p == nil || p.Kind() != kind {
		return nil, dErrors.Newf(dErrors.CodeInvalidPayload, "payload does not match kind %q", kind)
	}
	return p, nil
}

// ToRecord converts a pending action to its storage shape.
func ToRecord(a *models.PendingAction) (*models.Record, error) {
	raw, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return &models.Record{
		ID:            a.ID,
		Kind:          a.Kind,
		Payload:       raw,
		Proposer:      a.Proposer,
		ProposedAt:    a.ProposedAt,
		ConfirmableAt: a.ConfirmableAt,
		ExpiresAt:     a.ExpiresAt,
	}, nil
}

// FromRecord decodes a stored record through the registry.
func (r *Registry) FromRecord(rec *models.Record) (*models.PendingAction, error) {
	p, err := r.Decode(rec.Kind, rec.Payload)
	if err != nil {
		return nil, err
	}
	return &models.PendingAction{
		ID:            rec.ID,
		Kind:          rec.Kind,
		Payload:       p,
		Proposer:      rec.Proposer,
		ProposedAt:    rec.ProposedAt,
		ConfirmableAt: rec.ConfirmableAt,
		ExpiresAt:     rec.ExpiresAt,
	}, nil
}

// DecodeJSON is a Decode helper for payload types that round-trip through
// encoding/json.
func DecodeJSON[T models.Payload](raw json.RawMessage) (models.Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
