package debt

import (
	"context"

	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

func (c *Controller) RegisterHooks(reg *hooks.Registry) error {
	for _, h := range []hooks.Hook{
		{Kind: KindSetDebtLimits, Decode: hooks.DecodeJSON[SetDebtLimits]},
		{Kind: KindSetInterestRate, Decode: hooks.DecodeJSON[SetInterestRate]},
		{Kind: KindSetLiquidationPenalty, Decode: hooks.DecodeJSON[SetLiquidationPenalty]},
		{Kind: KindSetBorrowingEnabled, Decode: hooks.DecodeJSON[SetBorrowingEnabled]},
	} {
		h.Validate = c.validate
		h.Apply = c.apply
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) validate(_ context.Context, p models.Payload) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.check(p)
}

// check must be called with c.mu held.
func (c *Controller) check(p models.Payload) error {
	switch op := p.(type) {
	case SetDebtLimits:
		if op.MinDebt == 0 || op.MinDebt >= op.MaxDebt {
			return dErrors.New(dErrors.CodeInvalidPayload, "debt limits require 0 < min < max")
		}
		if largest := c.largestPosition(); op.MaxDebt < largest {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "max debt %d below largest position %d", op.MaxDebt, largest)
		}
	case SetInterestRate:
		if !models.ValidFraction(op.RateBps) {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "interest rate must be within (0, %d] bps", models.BasisPoints)
		}
	case SetLiquidationPenalty:
		if !models.ValidFraction(op.Bps) {
			return dErrors.Newf(dErrors.CodeInvalidPayload, "liquidation penalty must be within (0, %d] bps", models.BasisPoints)
		}
	case SetBorrowingEnabled:
	default:
		return dErrors.Newf(dErrors.CodeInvalidPayload, "unsupported payload %T", p)
	}
	return nil
}

// apply re-checks under the write lock: a borrow between confirmation and
// apply must not leave a position above the new maximum.
func (c *Controller) apply(ctx context.Context, p models.Payload, emit hooks.Emitter) error {
	c.mu.Lock()
	if err := c.check(p); err != nil {
		c.mu.Unlock()
		return err
	}
	var (
		event models.EventType
		attrs map[string]any
	)
	switch op := p.(type) {
	case SetDebtLimits:
		c.params.MinDebt, c.params.MaxDebt = op.MinDebt, op.MaxDebt
		event = EventDebtLimitsSet
		attrs = map[string]any{"min_debt": op.MinDebt, "max_debt": op.MaxDebt}
	case SetInterestRate:
		c.params.InterestRateBps = op.RateBps
		event = EventInterestRateSet
		attrs = map[string]any{"rate_bps": op.RateBps}
	case SetLiquidationPenalty:
		c.params.LiquidationPenaltyBps = op.Bps
		event = EventLiquidationPenaltySet
		attrs = map[string]any{"bps": op.Bps}
	case SetBorrowingEnabled:
		c.params.BorrowingEnabled = op.Enabled
		event = EventBorrowingEnabledSet
		attrs = map[string]any{"enabled": op.Enabled}
	}
	c.mu.Unlock()

	emit.Emit(ctx, event, attrs)
	return nil
}
