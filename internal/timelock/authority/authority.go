// Package authority decides who may propose, confirm and cancel actions on an
// engine.
//
// Three tiers compose:
//   - root: the engine's governance identity, plus any identity a Hub
//     delegates as root administrator. Root is authorized for every kind even
//     when the capability table is empty, so an engine is never unowned.
//   - full: CanProposeFull / CanConfirmFull / CanCancel per kind.
//   - disable-only: CanDisableOnly permits the disabling direction of
//     boolean-style kinds. The same capability is rejected for the enabling
//     direction of the same kind.
package authority

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

// Hub delegates root administration across engines.
type Hub interface {
	IsRootAdmin(ctx context.Context, identity string) bool
}

// StaticHub is a fixed set of root administrators.
type StaticHub map[string]struct{}

// NewStaticHub builds a hub from identities.
func NewStaticHub(identities ...string) StaticHub {
	h := make(StaticHub, len(identities))
	for _, id := range identities {
		if id != "" {
			h[id] = struct{}{}
		}
	}
	return h
}

func (h StaticHub) IsRootAdmin(_ context.Context, identity string) bool {
	_, ok := h[identity]
	return ok
}

// Resolver owns the capability table and governance identity of one engine.
type Resolver struct {
	mu         sync.RWMutex
	governance string
	table      map[string]map[models.ActionKind]models.Capability
	hub        Hub
	logger     *slog.Logger

	changes      map[ChangeID]*PendingChange
	lastChangeID ChangeID
}

type Option func(*Resolver)

func WithHub(hub Hub) Option {
	return func(r *Resolver) {
		r.hub = hub
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a resolver governed by governance with the given initial grants.
func New(governance string, grants []models.Grant, opts ...Option) (*Resolver, error) {
	if governance == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "governance identity is required")
	}
	r := &Resolver{
		governance: governance,
		table:      make(map[string]map[models.ActionKind]models.Capability),
		changes:    make(map[ChangeID]*PendingChange),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, g := range grants {
		if err := validateGrant(g); err != nil {
			return nil, err
		}
		r.grant(g)
	}
	return r, nil
}

// Governance returns the current governance identity.
func (r *Resolver) Governance() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.governance
}

// IsRoot reports whether identity holds governance, directly or via the hub.
func (r *Resolver) IsRoot(ctx context.Context, identity string) bool {
	if identity == "" {
		return false
	}
	r.mu.RLock()
	gov := r.governance
	r.mu.RUnlock()
	if identity == gov {
		return true
	}
	return r.hub != nil && r.hub.IsRootAdmin(ctx, identity)
}

// Capabilities returns what identity holds for kind, excluding root.
func (r *Resolver) Capabilities(identity string, kind models.ActionKind) models.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table[identity][kind]
}

// CanPropose checks the proposer against the kind and direction of payload.
func (r *Resolver) CanPropose(ctx context.Context, identity string, payload models.Payload) bool {
	return r.allowed(ctx, identity, payload, models.CanProposeFull)
}

// CanConfirm checks the confirmer against the kind and direction of payload.
func (r *Resolver) CanConfirm(ctx context.Context, identity string, payload models.Payload) bool {
	return r.allowed(ctx, identity, payload, models.CanConfirmFull)
}

// CanCancel permits root, CanCancel holders for kind, and the original
// proposer.
func (r *Resolver) CanCancel(ctx context.Context, identity string, kind models.ActionKind, proposer string) bool {
	if identity == "" {
		return false
	}
	if identity == proposer || r.IsRoot(ctx, identity) {
		return true
	}
	return r.Capabilities(identity, kind).Has(models.CanCancel)
}

func (r *Resolver) allowed(ctx context.Context, identity string, payload models.Payload, full models.Capability) bool {
	if identity == "" || payload == nil {
		return false
	}
	if r.IsRoot(ctx, identity) {
		return true
	}
	caps := r.Capabilities(identity, payload.Kind())
	if caps.Has(full) {
		return true
	}
	return caps.Has(models.CanDisableOnly) && models.DirectionOf(payload) == models.DirectionDisable
}

// Records lists every identity's capabilities, sorted by identity.
func (r *Resolver) Records() []models.AuthorityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AuthorityRecord, 0, len(r.table))
	for identity, kinds := range r.table {
		rec := models.AuthorityRecord{Identity: identity, Kinds: make(map[models.ActionKind]models.Capability, len(kinds))}
		for k, c := range kinds {
			rec.Kinds[k] = c
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// grant must be called with r.mu held for writing, or during construction.
func (r *Resolver) grant(g models.Grant) {
	kinds := r.table[g.Identity]
	if kinds == nil {
		kinds = make(map[models.ActionKind]models.Capability)
		r.table[g.Identity] = kinds
	}
	kinds[g.Kind] |= g.Capabilities
}

// revoke must be called with r.mu held for writing.
func (r *Resolver) revoke(g models.Grant) {
	kinds := r.table[g.Identity]
	if kinds == nil {
		return
	}
	remaining := kinds[g.Kind] &^ g.Capabilities
	if remaining == 0 {
		delete(kinds, g.Kind)
	} else {
		kinds[g.Kind] = remaining
	}
	if len(kinds) == 0 {
		delete(r.table, g.Identity)
	}
}

func validateGrant(g models.Grant) error {
	if g.Identity == "" {
		return dErrors.New(dErrors.CodeValidation, "grant identity is required")
	}
	if g.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "grant kind is required")
	}
	if g.Capabilities == 0 {
		return dErrors.New(dErrors.CodeValidation, "grant must carry at least one capability")
	}
	return nil
}
