package models

// Status is the lifecycle state of an action. Proposed is the only
// non-terminal state; terminal states are mutually exclusive and final.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled || s == StatusExpired
}

// Outcome describes what a Confirm call did. Only OutcomeConfirmed changed the
// consumer's state; the others are benign results callers may poll on.
type Outcome string

const (
	OutcomeConfirmed      Outcome = "confirmed"
	OutcomeUnknownAction  Outcome = "unknown_action"
	OutcomeNotYetEligible Outcome = "not_yet_eligible"
	OutcomeUnauthorized   Outcome = "unauthorized"
	// OutcomeExpired: the action was past its window and has been swept.
	OutcomeExpired Outcome = "expired"
	// OutcomeRevalidationFailed: current state no longer admits the payload;
	// the action was cancelled.
	OutcomeRevalidationFailed Outcome = "revalidation_failed"
)

// Confirmed reports whether the payload was applied.
func (o Outcome) Confirmed() bool {
	return o == OutcomeConfirmed
}

// Status returns the lifecycle state the action is in after this outcome.
func (o Outcome) Status() Status {
	switch o {
	case OutcomeConfirmed:
		return StatusConfirmed
	case OutcomeExpired:
		return StatusExpired
	case OutcomeRevalidationFailed:
		return StatusCancelled
	default:
		return StatusProposed
	}
}

// CancelReason records why an action was cancelled.
type CancelReason string

const (
	CancelByCaller           CancelReason = "caller"
	CancelRevalidationFailed CancelReason = "revalidation_failed"
)
