//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"timelock/internal/timelock/models"
	ledger "timelock/internal/timelock/store/postgres"
	"timelock/pkg/platform/sentinel"
	txcontext "timelock/pkg/platform/tx"
	"timelock/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *ledger.PostgresLedger
	ctx   context.Context
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.ctx = context.Background()
	s.Require().NoError(ledger.New(s.pg.DB, "bootstrap").Migrate(s.ctx))
}

func (s *PostgresLedgerSuite) TearDownSuite() {
	_ = s.pg.Terminate(s.ctx)
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "timelock_actions", "timelock_sequences", "timelock_engine_state"))
	s.store = ledger.New(s.pg.DB, "vaults")
}

func (s *PostgresLedgerSuite) saveNew() *models.Record {
	id, err := s.store.NextID(s.ctx)
	s.Require().NoError(err)
	rec := &models.Record{
		ID:            id,
		Kind:          "vaults.set_limits",
		Payload:       json.RawMessage(`{"max_vaults":20,"max_assets_per_vault":10}`),
		Proposer:      "gov",
		ProposedAt:    1,
		ConfirmableAt: 101,
		ExpiresAt:     1101,
	}
	s.Require().NoError(s.store.Save(s.ctx, rec))
	return rec
}

func (s *PostgresLedgerSuite) TestRoundTrip() {
	rec := s.saveNew()

	found, err := s.store.Find(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.Kind, found.Kind)
	s.Equal(rec.ExpiresAt, found.ExpiresAt)
	s.JSONEq(string(rec.Payload), string(found.Payload))

	s.ErrorIs(s.store.Save(s.ctx, rec), sentinel.ErrAlreadyUsed)
}

func (s *PostgresLedgerSuite) TestIdsAreNamespacedAndMonotonic() {
	first := s.saveNew()
	second := s.saveNew()
	s.Equal(models.ActionID(1), first.ID)
	s.Equal(models.ActionID(2), second.ID)

	other := ledger.New(s.pg.DB, "oracles")
	id, err := other.NextID(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.ActionID(1), id)
}

func (s *PostgresLedgerSuite) TestConcurrentTakeHasOneWinner() {
	rec := s.saveNew()

	var wg sync.WaitGroup
	var winners atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Take(s.ctx, rec.ID); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), winners.Load())

	_, err := s.store.Find(s.ctx, rec.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestTakeInsideRolledBackTxKeepsRow() {
	rec := s.saveNew()

	errRollback := errors.New("rollback")
	err := txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context) error {
		taken, err := s.store.Take(ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(rec.ID, taken.ID)
		return errRollback
	})
	s.ErrorIs(err, errRollback)

	found, err := s.store.Find(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
}

func (s *PostgresLedgerSuite) TestList() {
	a := s.saveNew()
	b := s.saveNew()
	c := s.saveNew()
	_, err := s.store.Take(s.ctx, b.ID)
	s.Require().NoError(err)

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(a.ID, list[0].ID)
	s.Equal(c.ID, list[1].ID)
}

func (s *PostgresLedgerSuite) TestOutOfRangeValuesAreRejected() {
	rec := s.saveNew()
	_, err := s.store.Take(s.ctx, rec.ID)
	s.Require().NoError(err)

	rec.ExpiresAt = models.Tick(math.MaxInt64) + 1
	s.ErrorIs(s.store.Save(s.ctx, rec), sentinel.ErrInvalidState)

	rec.ExpiresAt = models.MaxTick
	s.Require().NoError(s.store.Save(s.ctx, rec))
	found, err := s.store.Find(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.MaxTick, found.ExpiresAt)

	_, err = s.store.Find(s.ctx, models.ActionID(math.MaxUint64))
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Take(s.ctx, models.ActionID(math.MaxUint64))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestDelayStateSurvivesNewLedger() {
	_, err := s.store.LoadDelay(s.ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.SaveDelay(s.ctx, 200))
	s.Require().NoError(s.store.ClaimBootstrap(s.ctx, 50))

	restarted := ledger.New(s.pg.DB, "vaults")
	state, err := restarted.LoadDelay(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.DelayState{CurrentDelay: 50, Bootstrapped: true}, state)
	s.ErrorIs(restarted.ClaimBootstrap(s.ctx, 60), sentinel.ErrAlreadyUsed)

	s.Require().NoError(restarted.SaveDelay(s.ctx, 300))
	state, err = s.store.LoadDelay(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.DelayState{CurrentDelay: 300, Bootstrapped: true}, state)

	other := ledger.New(s.pg.DB, "oracles")
	s.NoError(other.ClaimBootstrap(s.ctx, 70), "namespaced by engine")
}

func (s *PostgresLedgerSuite) TestConcurrentBootstrapClaimsOnce() {
	var wg sync.WaitGroup
	var claims atomic.Int32
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.store.ClaimBootstrap(s.ctx, models.Tick(i+1)) == nil {
				claims.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), claims.Load())
}
