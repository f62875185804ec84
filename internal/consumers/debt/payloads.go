package debt

import "timelock/internal/timelock/models"

const (
	KindSetDebtLimits         models.ActionKind = "debt.set_limits"
	KindSetInterestRate       models.ActionKind = "debt.set_interest_rate"
	KindSetLiquidationPenalty models.ActionKind = "debt.set_liquidation_penalty"
	KindSetBorrowingEnabled   models.ActionKind = "debt.set_borrowing_enabled"
)

const (
	EventDebtLimitsSet         models.EventType = "debt_limits_set"
	EventInterestRateSet       models.EventType = "interest_rate_set"
	EventLiquidationPenaltySet models.EventType = "liquidation_penalty_set"
	EventBorrowingEnabledSet   models.EventType = "borrowing_enabled_set"
)

// Payload is the closed set of debt parameter changes.
type Payload interface {
	models.Payload
	isDebtPayload()
}

// SetDebtLimits bounds a single position. MaxDebt may not drop below the
// largest open position.
type SetDebtLimits struct {
	MinDebt uint64 `json:"min_debt"`
	MaxDebt uint64 `json:"max_debt"`
}

type SetInterestRate struct {
	RateBps uint64 `json:"rate_bps"`
}

type SetLiquidationPenalty struct {
	Bps uint64 `json:"bps"`
}

type SetBorrowingEnabled struct {
	Enabled bool `json:"enabled"`
}

func (SetDebtLimits) Kind() models.ActionKind         { return KindSetDebtLimits }
func (SetInterestRate) Kind() models.ActionKind       { return KindSetInterestRate }
func (SetLiquidationPenalty) Kind() models.ActionKind { return KindSetLiquidationPenalty }
func (SetBorrowingEnabled) Kind() models.ActionKind   { return KindSetBorrowingEnabled }

func (p SetBorrowingEnabled) Enables() bool { return p.Enabled }

func (SetDebtLimits) isDebtPayload()         {}
func (SetInterestRate) isDebtPayload()       {}
func (SetLiquidationPenalty) isDebtPayload() {}
func (SetBorrowingEnabled) isDebtPayload()   {}
