package oracles

import (
	"context"

	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

// RegisterHooks binds the oracle kinds to this registry.
func (r *Registry) RegisterHooks(reg *hooks.Registry) error {
	for _, h := range []hooks.Hook{
		{Kind: KindAddPriceFeed, Decode: hooks.DecodeJSON[AddPriceFeed]},
		{Kind: KindRemovePriceFeed, Decode: hooks.DecodeJSON[RemovePriceFeed]},
		{Kind: KindSetFeedPaused, Decode: hooks.DecodeJSON[SetFeedPaused]},
		{Kind: KindSetDeviationThreshold, Decode: hooks.DecodeJSON[SetDeviationThreshold]},
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
	switch op := p.(type) {
	case AddPriceFeed:
		if op.Asset == "" || op.Source == "" {
			return dErrors.New(dErrors.CodeInvalidPayload, "asset and source are required")
		}
		if op.Heartbeat == 0 {
			return dErrors.New(dErrors.CodeInvalidPayload, "heartbeat must be non-zero")
		}
		if _, exists := r.feeds[op.Asset]; exists {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "feed for %s already registered", op.Asset)
		}
	case RemovePriceFeed:
		if _, exists := r.feeds[op.Asset]; !exists {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "no feed for %s", op.Asset)
		}
	case SetFeedPaused:
		if _, exists := r.feeds[op.Asset]; !exists {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "no feed for %s", op.Asset)
		}
	case SetDeviationThreshold:
		if !models.ValidFraction(op.Bps) {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "deviation threshold must be within (0, %d] bps", models.BasisPoints)
		}
	default:
		return dErrors.Newf(dErrors.CodeInvalidPayload, "unsupported payload %T", p)
	}
	return nil
}

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
	switch op := p.(type) {
	case AddPriceFeed:
		r.feeds[op.Asset] = &Feed{Asset: op.Asset, Source: op.Source, Heartbeat: op.Heartbeat}
		event = EventFeedAdded
		attrs = map[string]any{"asset": op.Asset, "source": op.Source, "heartbeat": uint64(op.Heartbeat)}
	case RemovePriceFeed:
		delete(r.feeds, op.Asset)
		event = EventFeedRemoved
		attrs = map[string]any{"asset": op.Asset}
	case SetFeedPaused:
		r.feeds[op.Asset].Paused = op.Paused
		event = EventFeedPausedSet
		attrs = map[string]any{"asset": op.Asset, "paused": op.Paused}
	case SetDeviationThreshold:
		r.deviationBps = op.Bps
		event = EventDeviationThreshold
		attrs = map[string]any{"bps": op.Bps}
	}
	r.mu.Unlock()

	emit.Emit(ctx, event, attrs)
	return nil
}
