package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/lib/pq"

	"timelock/internal/timelock/models"
	"timelock/pkg/platform/sentinel"
	txcontext "timelock/pkg/platform/tx"
)

// Schema creates the ledger tables. Ids come from a per-engine counter row so
// that cancelled, expired and never-saved ids are not reused.
const Schema = `
CREATE TABLE IF NOT EXISTS timelock_sequences (
	engine  TEXT PRIMARY KEY,
	last_id BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS timelock_actions (
	engine         TEXT   NOT NULL,
	id             BIGINT NOT NULL,
	kind           TEXT   NOT NULL,
	payload        JSONB  NOT NULL,
	proposer       TEXT   NOT NULL,
	proposed_at    BIGINT NOT NULL,
	confirmable_at BIGINT NOT NULL,
	expires_at     BIGINT NOT NULL,
	PRIMARY KEY (engine, id)
);

CREATE TABLE IF NOT EXISTS timelock_engine_state (
	engine        TEXT    PRIMARY KEY,
	current_delay BIGINT  NOT NULL,
	bootstrapped  BOOLEAN NOT NULL DEFAULT FALSE
);
`

const uniqueViolation = "23505"

// PostgresLedger persists one engine's ledger in PostgreSQL.
type PostgresLedger struct {
	db     *sql.DB
	engine string
}

// New constructs a PostgreSQL-backed ledger namespaced by engine.
func New(db *sql.DB, engine string) *PostgresLedger {
	return &PostgresLedger{db: db, engine: engine}
}

// Migrate applies Schema.
func (s *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate timelock schema: %w", err)
	}
	return nil
}

func (s *PostgresLedger) NextID(ctx context.Context) (models.ActionID, error) {
	query := `
		INSERT INTO timelock_sequences (engine, last_id)
		VALUES ($1, 1)
		ON CONFLICT (engine) DO UPDATE SET last_id = timelock_sequences.last_id + 1
		RETURNING last_id
	`
	var id int64
	if err := txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, s.engine).Scan(&id); err != nil {
		return models.NoAction, fmt.Errorf("allocate action id: %w", err)
	}
	return models.ActionID(id), nil
}

func (s *PostgresLedger) Save(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	cols := make([]int64, 4)
	for i, v := range []uint64{uint64(rec.ID), uint64(rec.ProposedAt), uint64(rec.ConfirmableAt), uint64(rec.ExpiresAt)} {
		n, err := toBigint(v)
		if err != nil {
			return fmt.Errorf("save action %d: %w", rec.ID, err)
		}
		cols[i] = n
	}
	query := `
		INSERT INTO timelock_actions (engine, id, kind, payload, proposer, proposed_at, confirmable_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		s.engine,
		cols[0],
		string(rec.Kind),
		[]byte(rec.Payload),
		rec.Proposer,
		cols[1],
		cols[2],
		cols[3],
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("save action %d: %w", rec.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("save action %d: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresLedger) Find(ctx context.Context, id models.ActionID) (*models.Record, error) {
	if id > math.MaxInt64 {
		return nil, sentinel.ErrNotFound
	}
	query := `
		SELECT id, kind, payload, proposer, proposed_at, confirmable_at, expires_at
		FROM timelock_actions
		WHERE engine = $1 AND id = $2
	`
	rec, err := scanRecord(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, s.engine, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find action %d: %w", id, err)
	}
	return rec, nil
}

// Take relies on DELETE ... RETURNING: concurrent deletes of one row serialize
// on the row lock and only the first returns it.
func (s *PostgresLedger) Take(ctx context.Context, id models.ActionID) (*models.Record, error) {
	if id > math.MaxInt64 {
		return nil, sentinel.ErrNotFound
	}
	query := `
		DELETE FROM timelock_actions
		WHERE engine = $1 AND id = $2
		RETURNING id, kind, payload, proposer, proposed_at, confirmable_at, expires_at
	`
	rec, err := scanRecord(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, s.engine, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("take action %d: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresLedger) List(ctx context.Context) ([]*models.Record, error) {
	query := `
		SELECT id, kind, payload, proposer, proposed_at, confirmable_at, expires_at
		FROM timelock_actions
		WHERE engine = $1
		ORDER BY id
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, s.engine)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	out := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return out, nil
}

func (s *PostgresLedger) LoadDelay(ctx context.Context) (models.DelayState, error) {
	query := `
		SELECT current_delay, bootstrapped
		FROM timelock_engine_state
		WHERE engine = $1
	`
	var (
		delay int64
		state models.DelayState
	)
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, s.engine).Scan(&delay, &state.Bootstrapped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DelayState{}, sentinel.ErrNotFound
		}
		return models.DelayState{}, fmt.Errorf("load delay: %w", err)
	}
	if delay < 0 {
		return models.DelayState{}, fmt.Errorf("load delay %d: %w", delay, sentinel.ErrInvalidState)
	}
	state.CurrentDelay = models.Tick(delay)
	return state, nil
}

func (s *PostgresLedger) SaveDelay(ctx context.Context, delay models.Tick) error {
	n, err := toBigint(uint64(delay))
	if err != nil {
		return fmt.Errorf("save delay: %w", err)
	}
	query := `
		INSERT INTO timelock_engine_state (engine, current_delay)
		VALUES ($1, $2)
		ON CONFLICT (engine) DO UPDATE SET current_delay = EXCLUDED.current_delay
	`
	if _, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query, s.engine, n); err != nil {
		return fmt.Errorf("save delay: %w", err)
	}
	return nil
}

// ClaimBootstrap relies on the conditional upsert: once the flag is set the
// update matches no row and nothing is returned.
func (s *PostgresLedger) ClaimBootstrap(ctx context.Context, delay models.Tick) error {
	n, err := toBigint(uint64(delay))
	if err != nil {
		return fmt.Errorf("claim bootstrap: %w", err)
	}
	query := `
		INSERT INTO timelock_engine_state (engine, current_delay, bootstrapped)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (engine) DO UPDATE
			SET current_delay = EXCLUDED.current_delay, bootstrapped = TRUE
			WHERE timelock_engine_state.bootstrapped = FALSE
		RETURNING engine
	`
	var engine string
	err = txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, s.engine, n).Scan(&engine)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("claim bootstrap: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("claim bootstrap: %w", err)
	}
	return nil
}

// toBigint converts an id or tick for a BIGINT column.
func toBigint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds BIGINT range: %w", v, sentinel.ErrInvalidState)
	}
	return int64(v), nil
}

type recordRow interface {
	Scan(dest ...any) error
}

func scanRecord(row recordRow) (*models.Record, error) {
	var (
		id, proposedAt, confirmableAt, expiresAt int64
		kind                                     string
		payload                                  []byte
		rec                                      models.Record
	)
	if err := row.Scan(&id, &kind, &payload, &rec.Proposer, &proposedAt, &confirmableAt, &expiresAt); err != nil {
		return nil, err
	}
	rec.ID = models.ActionID(id)
	rec.Kind = models.ActionKind(kind)
	rec.Payload = payload
	rec.ProposedAt = models.Tick(proposedAt)
	rec.ConfirmableAt = models.Tick(confirmableAt)
	rec.ExpiresAt = models.Tick(expiresAt)
	return &rec, nil
}
