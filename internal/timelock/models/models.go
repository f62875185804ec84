package models

import (
	"encoding/json"
	"math"
	"strconv"

	dErrors "timelock/pkg/domain-errors"
)

// Tick is a reading of the engine's Clock Source: block height or unix
// seconds, depending on the clock. Durations in payloads and configs use the
// same unit and are never mixed within one engine.
type Tick uint64

// MaxTick is the largest deadline an action may carry. It fits a signed
// 64-bit column, so every stored tick round-trips through SQL BIGINT.
const MaxTick Tick = math.MaxInt64

// ActionID identifies a pending action within one engine. Ids start at 1 and
// are never reused; 0 means "no action".
type ActionID uint64

// NoAction is the reserved zero id.
const NoAction ActionID = 0

func (id ActionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseActionID parses a non-zero decimal action id.
func ParseActionID(s string) (ActionID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return NoAction, dErrors.New(dErrors.CodeBadRequest, "action id must be a positive integer")
	}
	return ActionID(n), nil
}

// ActionKind names the category of change a pending action represents.
// Kinds are scoped to the consumer that registers them.
type ActionKind string

// Payload is the kind-specific content of a proposal.
type Payload interface {
	Kind() ActionKind
}

// Toggle is implemented by payloads of boolean-style kinds. Disable-only
// authorities may act on a Toggle only when Enables reports false.
type Toggle interface {
	Payload
	Enables() bool
}

// Direction of a payload for authorization purposes.
type Direction int

const (
	// DirectionNone: the payload is not boolean-style.
	DirectionNone Direction = iota
	DirectionDisable
	DirectionEnable
)

// DirectionOf classifies p for the disable-only check.
func DirectionOf(p Payload) Direction {
	t, ok := p.(Toggle)
	if !ok {
		return DirectionNone
	}
	if t.Enables() {
		return DirectionEnable
	}
	return DirectionDisable
}

// PendingAction is a proposal waiting out its timelock.
//
// Invariants:
//   - ConfirmableAt >= ProposedAt
//   - ExpiresAt > ConfirmableAt whenever the engine's expiration window is non-zero
//   - ExpiresAt == 0 means the action never expires
type PendingAction struct {
	ID            ActionID   `json:"id"`
	Kind          ActionKind `json:"kind"`
	Payload       Payload    `json:"-"`
	Proposer      string     `json:"proposer"`
	ProposedAt    Tick       `json:"proposed_at"`
	ConfirmableAt Tick       `json:"confirmable_at"`
	ExpiresAt     Tick       `json:"expires_at"`
}

// NewPendingAction computes the deadlines for a proposal made at now.
func NewPendingAction(id ActionID, payload Payload, proposer string, now, delay Tick, expiration Expiration) (*PendingAction, error) {
	if id == NoAction {
		return nil, dErrors.New(dErrors.CodeInvariant, "action id must be non-zero")
	}
	if payload == nil {
		return nil, dErrors.New(dErrors.CodeInvariant, "payload is required")
	}
	if now > MaxTick || delay > MaxTick-now {
		return nil, dErrors.Newf(dErrors.CodeInvariant, "delay %d from tick %d overflows the clock", delay, now)
	}
	confirmableAt := now + delay
	var expiresAt Tick
	if w := expiration.Window(); w > 0 {
		if w > MaxTick-confirmableAt {
			return nil, dErrors.Newf(dErrors.CodeInvariant, "expiration window %d from tick %d overflows the clock", w, confirmableAt)
		}
		expiresAt = confirmableAt + w
	}
	return &PendingAction{
		ID:            id,
		Kind:          payload.Kind(),
		Payload:       payload,
		Proposer:      proposer,
		ProposedAt:    now,
		ConfirmableAt: confirmableAt,
		ExpiresAt:     expiresAt,
	}, nil
}

// IsExpiredAt reports whether the action can no longer be confirmed at now.
func (a *PendingAction) IsExpiredAt(now Tick) bool {
	return a.ExpiresAt != 0 && now > a.ExpiresAt
}

// IsConfirmableAt reports whether the timelock has elapsed at now.
func (a *PendingAction) IsConfirmableAt(now Tick) bool {
	return now >= a.ConfirmableAt
}

// Record is the storage shape of a PendingAction: the payload is kept as
// JSON and decoded through the kind's hook on load.
type Record struct {
	ID            ActionID        `json:"id"`
	Kind          ActionKind      `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	Proposer      string          `json:"proposer"`
	ProposedAt    Tick            `json:"proposed_at"`
	ConfirmableAt Tick            `json:"confirmable_at"`
	ExpiresAt     Tick            `json:"expires_at"`
}
