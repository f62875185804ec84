package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "timelock/pkg/platform/audit"
	txcontext "timelock/pkg/platform/tx"
)

// Schema creates the audit and outbox tables.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT        NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	engine      TEXT        NOT NULL,
	action      TEXT        NOT NULL,
	action_id   BIGINT      NOT NULL DEFAULT 0,
	kind        TEXT        NOT NULL DEFAULT '',
	actor_id    TEXT        NOT NULL DEFAULT '',
	reason      TEXT        NOT NULL DEFAULT '',
	tick        BIGINT      NOT NULL DEFAULT 0,
	request_id  TEXT        NOT NULL DEFAULT '',
	attributes  JSONB
);

CREATE INDEX IF NOT EXISTS audit_events_engine_idx ON audit_events (engine, timestamp);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	aggregate_id   TEXT        NOT NULL,
	event_type     TEXT        NOT NULL,
	payload        JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_unpublished_idx ON outbox (created_at) WHERE published_at IS NULL;
`

// Store implements audit.Store using the transactional outbox pattern. Each
// Append writes the queryable audit row and an outbox entry in one
// transaction; the relay worker publishes outbox entries to Kafka.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Timestamp  string         `json:"timestamp"`
	Engine     string         `json:"engine"`
	Action     string         `json:"action"`
	ActionID   uint64         `json:"action_id,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Tick       uint64         `json:"tick,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Append writes event to audit_events and the outbox.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	if event.ID != "" {
		parsed, err := uuid.Parse(event.ID)
		if err != nil {
			return fmt.Errorf("parse audit event id: %w", err)
		}
		eventID = parsed
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload := outboxPayload{
		ID:         eventID.String(),
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Engine:     event.Engine,
		Action:     event.Action,
		ActionID:   event.ActionID,
		Kind:       event.Kind,
		ActorID:    event.ActorID,
		Reason:     event.Reason,
		Tick:       event.Tick,
		RequestID:  event.RequestID,
		Attributes: event.Attributes,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	var attrs []byte
	if len(event.Attributes) > 0 {
		if attrs, err = json.Marshal(event.Attributes); err != nil {
			return fmt.Errorf("marshal audit attributes: %w", err)
		}
	}

	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Use(ctx, s.db)
		_, err := exec.ExecContext(ctx, `
			INSERT INTO audit_events (
				id, category, timestamp, engine, action, action_id,
				kind, actor_id, reason, tick, request_id, attributes
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING
		`,
			eventID,
			string(event.Category),
			event.Timestamp,
			event.Engine,
			event.Action,
			int64(event.ActionID),
			event.Kind,
			event.ActorID,
			event.Reason,
			int64(event.Tick),
			event.RequestID,
			attrs,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}

		_, err = exec.ExecContext(ctx, `
			INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			uuid.New(),
			"engine",
			event.Engine,
			event.Action,
			payloadBytes,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	})
}

// ListByEngine returns one engine's events, oldest first.
func (s *Store) ListByEngine(ctx context.Context, engine string) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, engine, action, action_id,
			   kind, actor_id, reason, tick, request_id, attributes
		FROM audit_events
		WHERE engine = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, engine)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the most recent limit events, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, engine, action, action_id,
			   kind, actor_id, reason, tick, request_id, attributes
		FROM (
			SELECT * FROM audit_events ORDER BY timestamp DESC LIMIT $1
		) recent
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// FetchUnpublished returns up to limit outbox entries not yet published,
// oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var e audit.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps entries as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		time.Now(), pq.Array(strs),
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			id             uuid.UUID
			category       string
			actionID, tick int64
			attrs          []byte
			event          audit.Event
		)
		err := rows.Scan(
			&id,
			&category,
			&event.Timestamp,
			&event.Engine,
			&event.Action,
			&actionID,
			&event.Kind,
			&event.ActorID,
			&event.Reason,
			&tick,
			&event.RequestID,
			&attrs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = id.String()
		event.Category = audit.EventCategory(category)
		event.ActionID = uint64(actionID)
		event.Tick = uint64(tick)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &event.Attributes); err != nil {
				return nil, fmt.Errorf("decode audit attributes: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
