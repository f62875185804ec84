package oracles

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"timelock/internal/timelock/clock"
	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	"timelock/internal/timelock/service"
	dErrors "timelock/pkg/domain-errors"
)

const delay models.Tick = 50

type OraclesSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clock.Manual
	registry *Registry
	engine   *service.Engine
}

func TestOraclesSuite(t *testing.T) {
	suite.Run(t, new(OraclesSuite))
}

func (s *OraclesSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewManual(10)
	s.registry = New(500)
	engine, err := service.New(service.Config{
		Name:       "oracles",
		Governance: "gov",
		Grants: []models.Grant{
			{Identity: "keeper", Kind: KindSetFeedPaused, Capabilities: models.CanDisableOnly},
		},
		Delay:      models.DelayConfig{MinDelay: 10, MaxDelay: 500, CurrentDelay: delay},
		Expiration: models.NeverExpires(),
		Clock:      s.clock,
		Consumers:  []hooks.Registrar{s.registry},
	})
	s.Require().NoError(err)
	s.engine = engine
}

func (s *OraclesSuite) enact(caller string, p models.Payload) models.Outcome {
	action, err := s.engine.Propose(s.ctx, caller, p)
	s.Require().NoError(err)
	s.clock.Advance(delay)
	outcome, err := s.engine.Confirm(s.ctx, caller, action.ID)
	s.Require().NoError(err)
	return outcome
}

func (s *OraclesSuite) addFeed(asset string) {
	s.Require().Equal(models.OutcomeConfirmed, s.enact("gov", AddPriceFeed{Asset: asset, Source: "chainlink", Heartbeat: 100}))
}

func (s *OraclesSuite) TestAddAndRemoveFeed() {
	s.addFeed("eth")
	feed, ok := s.registry.Feed("eth")
	s.Require().True(ok)
	s.Equal("chainlink", feed.Source)
	s.Equal(models.Tick(100), feed.Heartbeat)

	s.Equal(models.OutcomeConfirmed, s.enact("gov", RemovePriceFeed{Asset: "eth"}))
	_, ok = s.registry.Feed("eth")
	s.False(ok)
}

func (s *OraclesSuite) TestValidation() {
	s.addFeed("eth")
	cases := []struct {
		name    string
		payload models.Payload
	}{
		{"missing source", AddPriceFeed{Asset: "btc", Heartbeat: 1}},
		{"zero heartbeat", AddPriceFeed{Asset: "btc", Source: "pyth"}},
		{"duplicate asset", AddPriceFeed{Asset: "eth", Source: "pyth", Heartbeat: 1}},
		{"remove unknown", RemovePriceFeed{Asset: "btc"}},
		{"pause unknown", SetFeedPaused{Asset: "btc", Paused: true}},
		{"zero threshold", SetDeviationThreshold{Bps: 0}},
		{"threshold above 100%", SetDeviationThreshold{Bps: models.BasisPoints + 1}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.engine.Propose(s.ctx, "gov", tc.payload)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidPayload), err)
		})
	}
}

func (s *OraclesSuite) TestCompetingAddsOnlyFirstConfirmedApplies() {
	first, err := s.engine.Propose(s.ctx, "gov", AddPriceFeed{Asset: "btc", Source: "chainlink", Heartbeat: 10})
	s.Require().NoError(err)
	second, err := s.engine.Propose(s.ctx, "gov", AddPriceFeed{Asset: "btc", Source: "pyth", Heartbeat: 20})
	s.Require().NoError(err)
	s.clock.Advance(delay)

	outcome, err := s.engine.Confirm(s.ctx, "gov", second.ID)
	s.Require().NoError(err)
	s.Equal(models.OutcomeConfirmed, outcome)

	outcome, err = s.engine.Confirm(s.ctx, "gov", first.ID)
	s.Require().NoError(err)
	s.Equal(models.OutcomeRevalidationFailed, outcome)

	feed, _ := s.registry.Feed("btc")
	s.Equal("pyth", feed.Source)
}

func (s *OraclesSuite) TestKeeperMayPauseButNotResume() {
	s.addFeed("eth")
	s.Equal(models.OutcomeConfirmed, s.enact("keeper", SetFeedPaused{Asset: "eth", Paused: true}))
	feed, _ := s.registry.Feed("eth")
	s.True(feed.Paused)

	_, err := s.engine.Propose(s.ctx, "keeper", SetFeedPaused{Asset: "eth", Paused: false})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.engine.Propose(s.ctx, "keeper", SetDeviationThreshold{Bps: 100})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	s.Equal(models.OutcomeConfirmed, s.enact("gov", SetFeedPaused{Asset: "eth", Paused: false}))
	feed, _ = s.registry.Feed("eth")
	s.False(feed.Paused)
}

func (s *OraclesSuite) TestRemovedFeedCannotBePausedAtConfirm() {
	s.addFeed("eth")
	pause, err := s.engine.Propose(s.ctx, "keeper", SetFeedPaused{Asset: "eth", Paused: true})
	s.Require().NoError(err)
	s.Equal(models.OutcomeConfirmed, s.enact("gov", RemovePriceFeed{Asset: "eth"}))

	outcome, err := s.engine.Confirm(s.ctx, "keeper", pause.ID)
	s.Require().NoError(err)
	s.Equal(models.OutcomeRevalidationFailed, outcome)
}

func (s *OraclesSuite) TestPriceReports() {
	s.addFeed("eth")
	s.addFeed("usd")
	now := s.clock.Now(s.ctx)

	_, err := s.registry.Price("eth", now)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "no report yet")

	s.Require().NoError(s.registry.Report("eth", 2000, now))
	price, err := s.registry.Price("eth", now+100)
	s.Require().NoError(err)
	s.Equal(uint64(2000), price)

	_, err = s.registry.Price("eth", now+101)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "stale after heartbeat")

	s.Run("deviation threshold bounds a single move", func() {
		s.NoError(s.registry.Report("eth", 2100, now+1))
		s.True(dErrors.HasCode(s.registry.Report("eth", 2400, now+2), dErrors.CodeConflict))
	})

	s.Run("paused feeds reject reports and reads", func() {
		s.Equal(models.OutcomeConfirmed, s.enact("keeper", SetFeedPaused{Asset: "eth", Paused: true}))
		s.True(dErrors.HasCode(s.registry.Report("eth", 2100, now+3), dErrors.CodeConflict))
		_, err := s.registry.Price("eth", now+3)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("report stamped after the read tick is fresh", func() {
		s.Require().NoError(s.registry.Report("usd", 1, now+500))
		price, err := s.registry.Price("usd", now)
		s.Require().NoError(err)
		s.Equal(uint64(1), price)
	})

	s.Run("unknown asset", func() {
		s.True(dErrors.HasCode(s.registry.Report("btc", 1, now), dErrors.CodeNotFound))
		s.True(dErrors.HasCode(s.registry.Report("eth", 0, now), dErrors.CodeValidation))
	})
}

func (s *OraclesSuite) TestDeviationThresholdUpdate() {
	s.Equal(models.OutcomeConfirmed, s.enact("gov", SetDeviationThreshold{Bps: 1000}))
	s.Equal(uint64(1000), s.registry.DeviationThreshold())
}

func TestExceedsDeviation(t *testing.T) {
	tests := []struct {
		name       string
		prev, next uint64
		bps        uint64
		want       bool
	}{
		{"within threshold", 2000, 2100, 500, false},
		{"exactly at threshold", 2000, 2100, 499, true},
		{"downward move", 2000, 1800, 500, true},
		{"unchanged", 2000, 2000, 1, false},
		{"large prices do not wrap", math.MaxUint64 / 2, math.MaxUint64, 500, true},
		{"large prices within threshold", math.MaxUint64 - 1000, math.MaxUint64, 1, false},
		{"full range at 100%", 1, math.MaxUint64, models.BasisPoints, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exceedsDeviation(tt.prev, tt.next, tt.bps))
		})
	}
}
