// Package store defines the Action Ledger persistence port. Adapters live in
// the memory, redis and postgres subpackages; all of them are pure I/O and
// leave lifecycle rules to the service.
package store

import (
	"context"

	"timelock/internal/timelock/models"
)

// Ledger persists pending-action records for one engine.
type Ledger interface {
	// NextID allocates the next action id. Ids strictly increase, start at 1
	// and are never handed out twice, even if the record is never saved.
	NextID(ctx context.Context) (models.ActionID, error)

	// Save stores a new record.
	Save(ctx context.Context, rec *models.Record) error

	// Find returns the record under id or sentinel.ErrNotFound.
	Find(ctx context.Context, id models.ActionID) (*models.Record, error)

	// Take atomically removes and returns the record under id. Of any number
	// of concurrent callers at most one receives the record; the others get
	// sentinel.ErrNotFound.
	Take(ctx context.Context, id models.ActionID) (*models.Record, error)

	// List returns every stored record in id order.
	List(ctx context.Context) ([]*models.Record, error)

	// LoadDelay returns the persisted delay state or sentinel.ErrNotFound if
	// the engine never stored one.
	LoadDelay(ctx context.Context) (models.DelayState, error)

	// SaveDelay persists the current delay and keeps the bootstrap flag.
	SaveDelay(ctx context.Context, delay models.Tick) error

	// ClaimBootstrap marks the one-time bootstrap as used and stores delay.
	// Every claim after the first fails with sentinel.ErrAlreadyUsed.
	ClaimBootstrap(ctx context.Context, delay models.Tick) error
}
