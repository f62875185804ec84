// Package debt is the debt-parameter controller: borrowing limits, interest
// and liquidation penalty, all changed through the timelock.
package debt

import (
	"math"
	"sync"

	dErrors "timelock/pkg/domain-errors"
)

// Parameters are the governed debt settings.
type Parameters struct {
	MinDebt               uint64 `json:"min_debt"`
	MaxDebt               uint64 `json:"max_debt"`
	InterestRateBps       uint64 `json:"interest_rate_bps"`
	LiquidationPenaltyBps uint64 `json:"liquidation_penalty_bps"`
	BorrowingEnabled      bool   `json:"borrowing_enabled"`
}

// Controller tracks per-account debt against the governed parameters.
type Controller struct {
	mu          sync.RWMutex
	params      Parameters
	positions   map[string]uint64
	outstanding uint64
}

func New(initial Parameters) *Controller {
	return &Controller{params: initial, positions: make(map[string]uint64)}
}

func (c *Controller) Parameters() Parameters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// Outstanding returns the total debt across all accounts.
func (c *Controller) Outstanding() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outstanding
}

// largestPosition must be called with c.mu held.
func (c *Controller) largestPosition() uint64 {
	var largest uint64
	for _, p := range c.positions {
		largest = max(largest, p)
	}
	return largest
}

// Position returns the debt of account.
func (c *Controller) Position(account string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions[account]
}

// Borrow increases the debt of account. The resulting position must lie in
// [MinDebt, MaxDebt] and borrowing must be enabled.
func (c *Controller) Borrow(account string, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be non-zero")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.params.BorrowingEnabled {
		return dErrors.New(dErrors.CodeConflict, "borrowing is disabled")
	}
	current := c.positions[account]
	if amount > c.params.MaxDebt || current > c.params.MaxDebt-amount {
		return dErrors.Newf(dErrors.CodeConflict, "borrowing %d on %d exceeds maximum %d", amount, current, c.params.MaxDebt)
	}
	if amount > math.MaxUint64-c.outstanding {
		return dErrors.Newf(dErrors.CodeConflict, "borrowing %d overflows outstanding debt %d", amount, c.outstanding)
	}
	next := current + amount
	if next < c.params.MinDebt {
		return dErrors.Newf(dErrors.CodeConflict, "position %d outside [%d, %d]", next, c.params.MinDebt, c.params.MaxDebt)
	}
	c.positions[account] = next
	c.outstanding += amount
	return nil
}

// Repay reduces the debt of account. A partial repayment may not leave the
// position below MinDebt.
func (c *Controller) Repay(account string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.positions[account]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "no position for %s", account)
	}
	if amount == 0 || amount > current {
		return dErrors.Newf(dErrors.CodeValidation, "repayment must be within (0, %d]", current)
	}
	left := current - amount
	if left != 0 && left < c.params.MinDebt {
		return dErrors.Newf(dErrors.CodeConflict, "remaining debt %d below minimum %d", left, c.params.MinDebt)
	}
	if left == 0 {
		delete(c.positions, account)
	} else {
		c.positions[account] = left
	}
	c.outstanding -= amount
	return nil
}
