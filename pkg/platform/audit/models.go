package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers state changes that took effect: confirmed
	// actions and the consumer events they trigger. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers changes to who may act: authority changes and
	// the delay bootstrap.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle bookkeeping. Can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from engine logic to capture key transitions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Engine    string
	Action    string
	ActionID  uint64
	Kind      string
	ActorID   string
	Reason    string
	// Tick is the engine clock reading at the transition.
	Tick       uint64
	RequestID  string
	Attributes map[string]any
}

type AuditEvent string

const (
	// Lifecycle events
	EventActionProposed  AuditEvent = "action_proposed"
	EventActionConfirmed AuditEvent = "action_confirmed"
	EventActionCancelled AuditEvent = "action_cancelled"
	EventActionExpired   AuditEvent = "action_expired"

	// Governance events
	EventDelayBootstrapped        AuditEvent = "delay_bootstrapped"
	EventAuthorityChangeProposed  AuditEvent = "authority_change_proposed"
	EventAuthorityChangeConfirmed AuditEvent = "authority_change_confirmed"
	EventAuthorityChangeCancelled AuditEvent = "authority_change_cancelled"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventActionConfirmed: CategoryCompliance,

	EventDelayBootstrapped:        CategorySecurity,
	EventAuthorityChangeProposed:  CategorySecurity,
	EventAuthorityChangeConfirmed: CategorySecurity,
	EventAuthorityChangeCancelled: CategorySecurity,

	EventActionProposed:  CategoryOperations,
	EventActionCancelled: CategoryOperations,
	EventActionExpired:   CategoryOperations,
}

// Category returns the EventCategory for this audit event. Unknown events are
// consumer "Set" events emitted while applying a confirmed action, and are
// compliance events.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryCompliance
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEngine(ctx context.Context, engine string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// OutboxEntry is an audit event persisted for later delivery to the broker.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
