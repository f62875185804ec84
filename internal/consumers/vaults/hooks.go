package vaults

import (
	"context"

	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

// RegisterHooks binds the vault kinds to this registry.
func (r *Registry) RegisterHooks(reg *hooks.Registry) error {
	for _, h := range []hooks.Hook{
		{Kind: KindSetLimits, Decode: hooks.DecodeJSON[SetVaultLimits]},
		{Kind: KindSetCreationEnabled, Decode: hooks.DecodeJSON[SetVaultCreationEnabled]},
		{Kind: KindSetFee, Decode: hooks.DecodeJSON[SetVaultFee]},
	} {
		h.Validate = r.validate
		h.Apply = r.apply
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) validate(_ context.Context, p models.Payload) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.check(p)
}

// check must be called with r.mu held.
func (r *Registry) check(p models.Payload) error {
	switch vp := p.(type) {
	case SetVaultLimits:
		if vp.MaxVaults == 0 || vp.MaxAssetsPerVault == 0 {
			return dErrors.New(dErrors.CodeInvalidPayload, "vault limits must be non-zero")
		}
		if vp.MaxVaults < uint64(len(r.vaults)) {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "max vaults %d below current count %d", vp.MaxVaults, len(r.vaults))
		}
		if largest := r.largestVault(); vp.MaxAssetsPerVault < largest {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "max assets per vault %d below largest vault %d", vp.MaxAssetsPerVault, largest)
		}
		return nil
	case SetVaultCreationEnabled:
		return nil
	case SetVaultFee:
		if !models.ValidFraction(vp.FeeBps) {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "fee must be within (0, %d] bps", models.BasisPoints)
		}
		return nil
	default:
		return dErrors.Newf(dErrors.CodeInvalidPayload, "unsupported payload %T", p)
	}
}

// apply re-checks under the write lock so no vault created since
// confirmation began can slip past the new limits.
func (r *Registry) apply(ctx context.Context, p models.Payload, emit hooks.Emitter) error {
	r.mu.Lock()
	if err := r.check(p); err != nil {
		r.mu.Unlock()
		return err
	}
	var (
		event models.EventType
		attrs map[string]any
	)
	switch vp := p.(type) {
	case SetVaultLimits:
		r.settings.Limits = Limits{MaxVaults: vp.MaxVaults, MaxAssetsPerVault: vp.MaxAssetsPerVault}
		event = EventLimitsSet
		attrs = map[string]any{"max_vaults": vp.MaxVaults, "max_assets_per_vault": vp.MaxAssetsPerVault}
	case SetVaultCreationEnabled:
		r.settings.CreationEnabled = vp.Enabled
		event = EventCreationEnabledSet
		attrs = map[string]any{"enabled": vp.Enabled}
	case SetVaultFee:
		r.settings.FeeBps = vp.FeeBps
		event = EventFeeSet
		attrs = map[string]any{"fee_bps": vp.FeeBps}
	}
	r.mu.Unlock()

	emit.Emit(ctx, event, attrs)
	return nil
}
