package models

// EventType names a lifecycle or consumer event.
type EventType string

const (
	EventActionProposed  EventType = "action_proposed"
	EventActionConfirmed EventType = "action_confirmed"
	EventActionCancelled EventType = "action_cancelled"
	EventActionExpired   EventType = "action_expired"

	EventDelayBootstrapped EventType = "delay_bootstrapped"
	// EventDelaySet is the engine's own "Set" event for a confirmed
	// set_delay action.
	EventDelaySet EventType = "delay_set"

	EventAuthorityChangeProposed  EventType = "authority_change_proposed"
	EventAuthorityChangeConfirmed EventType = "authority_change_confirmed"
	EventAuthorityChangeCancelled EventType = "authority_change_cancelled"
)

// Event is emitted on every transition and by consumers when they apply a
// payload. Fields not relevant to a type are left zero.
type Event struct {
	Type          EventType      `json:"type"`
	Engine        string         `json:"engine"`
	ActionID      ActionID       `json:"action_id,omitempty"`
	Kind          ActionKind     `json:"kind,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	ConfirmableAt Tick           `json:"confirmable_at,omitempty"`
	Reason        CancelReason   `json:"reason,omitempty"`
	At            Tick           `json:"at"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}
