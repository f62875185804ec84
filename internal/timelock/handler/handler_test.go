package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"timelock/internal/consumers/vaults"
	"timelock/internal/timelock/authority"
	"timelock/internal/timelock/clock"
	"timelock/internal/timelock/hooks"
	"timelock/internal/timelock/models"
	"timelock/internal/timelock/service"
	"timelock/pkg/testutil"
)

const delay models.Tick = 30

type HandlerSuite struct {
	suite.Suite
	clock    *clock.Manual
	registry *vaults.Registry
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.clock = clock.NewManual(1000)
	s.registry = vaults.New(vaults.Settings{
		Limits:          vaults.Limits{MaxVaults: 5, MaxAssetsPerVault: 5},
		CreationEnabled: true,
		FeeBps:          10,
	})
	engine, err := service.New(service.Config{
		Name:       "vaults",
		Governance: "gov",
		Grants: []models.Grant{
			{Identity: "guardian", Kind: vaults.KindSetCreationEnabled, Capabilities: models.CanDisableOnly},
		},
		Delay:      models.DelayConfig{MinDelay: 10, MaxDelay: 100, CurrentDelay: delay},
		Expiration: models.ExpiresAfter(500),
		Clock:      s.clock,
		Consumers:  []hooks.Registrar{s.registry},
	})
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(logger, engine).Register(s.router)
}

func (s *HandlerSuite) do(actor, method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if actor != "" {
		req = testutil.WithActor(req, actor)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) post(actor, path string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodPost, path), actor))
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
}

func (s *HandlerSuite) propose(actor string, kind models.ActionKind, payload any) *ActionResponse {
	rr := s.do(actor, http.MethodPost, "/engines/vaults/actions", map[string]any{"kind": kind, "payload": payload})
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[ActionResponse](s.T(), rr)
}

func (s *HandlerSuite) TestProposeAndConfirm() {
	action := s.propose("gov", vaults.KindSetLimits, map[string]any{"max_vaults": 20, "max_assets_per_vault": 10})
	s.Equal(models.Tick(1000+delay), action.ConfirmableAt)
	s.Equal("gov", action.Proposer)

	path := fmt.Sprintf("/engines/vaults/actions/%d/confirm", action.ID)

	s.Run("too early", func() {
		rr := s.post("gov", path)
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[ConfirmResponse](s.T(), rr)
		s.Equal(models.OutcomeNotYetEligible, resp.Outcome)
		s.False(resp.Confirmed)
		s.Equal(models.StatusProposed, resp.Status)
	})

	s.clock.Advance(delay)

	s.Run("eligible", func() {
		rr := s.post("gov", path)
		resp := testutil.UnmarshalResponse[ConfirmResponse](s.T(), rr)
		s.True(resp.Confirmed)
		s.Equal(models.StatusConfirmed, resp.Status)
		s.Equal(uint64(20), s.registry.Settings().Limits.MaxVaults)
	})

	s.Run("second confirm", func() {
		rr := s.post("gov", path)
		resp := testutil.UnmarshalResponse[ConfirmResponse](s.T(), rr)
		s.Equal(models.OutcomeUnknownAction, resp.Outcome)
	})
}

func (s *HandlerSuite) TestProposeErrors() {
	tests := []struct {
		name       string
		actor      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"anonymous", "", map[string]any{"kind": vaults.KindSetFee, "payload": map[string]any{"fee_bps": 1}}, http.StatusForbidden, "unauthorized"},
		{"missing kind", "gov", map[string]any{"payload": map[string]any{"fee_bps": 1}}, http.StatusBadRequest, "validation"},
		{"missing payload", "gov", map[string]any{"kind": vaults.KindSetFee}, http.StatusUnprocessableEntity, "invalid_payload"},
		{"unknown kind", "gov", map[string]any{"kind": "vaults.nope", "payload": map[string]any{}}, http.StatusUnprocessableEntity, "invalid_payload"},
		{"out of bounds", "gov", map[string]any{"kind": vaults.KindSetFee, "payload": map[string]any{"fee_bps": 10001}}, http.StatusUnprocessableEntity, "invalid_payload"},
		{"no authority", "stranger", map[string]any{"kind": vaults.KindSetFee, "payload": map[string]any{"fee_bps": 1}}, http.StatusForbidden, "unauthorized"},
		{"disable-only enabling", "guardian", map[string]any{"kind": vaults.KindSetCreationEnabled, "payload": map[string]any{"enabled": true}}, http.StatusForbidden, "unauthorized"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := s.do(tt.actor, http.MethodPost, "/engines/vaults/actions", tt.body)
			testutil.AssertStatusAndError(s.T(), rr, tt.wantStatus, tt.wantCode)
		})
	}

	s.Run("malformed json", func() {
		req := testutil.WithActor(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/engines/vaults/actions", "{"), "gov")
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown engine", func() {
		rr := s.do("gov", http.MethodPost, "/engines/oracles/actions", map[string]any{"kind": "x", "payload": map[string]any{}})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestReadAndCancel() {
	action := s.propose("gov", vaults.KindSetFee, map[string]any{"fee_bps": 25})
	path := fmt.Sprintf("/engines/vaults/actions/%d", action.ID)

	rr := s.get(path)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "kind", string(vaults.KindSetFee))

	rr = s.get("/engines/vaults/actions")
	list := testutil.UnmarshalResponse[[]ActionResponse](s.T(), rr)
	s.Len(*list, 1)

	s.Run("stranger cannot cancel", func() {
		rr := s.post("stranger", path+"/cancel")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("governance cancels", func() {
		rr := s.post("gov", path+"/cancel")
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("cancelled action is gone", func() {
		rr := s.get(path)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "unknown_action")
	})

	s.Run("bad id", func() {
		rr := s.get("/engines/vaults/actions/zero")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestBootstrapDelay() {
	path := "/engines/vaults/delay/bootstrap"

	rr := s.do("stranger", http.MethodPost, path, map[string]any{"delay": 50})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")

	rr = s.do("gov", http.MethodPost, path, map[string]any{"delay": 500})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_payload")

	rr = s.do("gov", http.MethodPost, path, map[string]any{"delay": 50})
	testutil.AssertStatusOK(s.T(), rr)
	engine := testutil.UnmarshalResponse[EngineResponse](s.T(), rr)
	s.Equal(models.Tick(50), engine.Delay.CurrentDelay)

	rr = s.do("gov", http.MethodPost, path, map[string]any{"delay": 60})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_set")
}

func (s *HandlerSuite) TestAuthorityChanges() {
	rr := s.do("gov", http.MethodPost, "/engines/vaults/authority/changes", authority.Change{
		Type:  authority.ChangeGrant,
		Grant: models.Grant{Identity: "ops", Kind: vaults.KindSetFee, Capabilities: models.FullAuthority},
	})
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	pending := testutil.UnmarshalResponse[authority.PendingChange](s.T(), rr)

	rr = s.get("/engines/vaults/authority/changes")
	changes := testutil.UnmarshalResponse[[]authority.PendingChange](s.T(), rr)
	s.Len(*changes, 1)

	confirmPath := fmt.Sprintf("/engines/vaults/authority/changes/%d/confirm", pending.ID)
	rr = s.post("gov", confirmPath)
	testutil.AssertJSONContains(s.T(), rr, "confirmed", false)

	s.clock.Advance(delay)
	rr = s.post("gov", confirmPath)
	testutil.AssertJSONContains(s.T(), rr, "confirmed", true)

	s.propose("ops", vaults.KindSetFee, map[string]any{"fee_bps": 5})

	s.Run("invalid change", func() {
		rr := s.do("gov", http.MethodPost, "/engines/vaults/authority/changes", map[string]any{"type": "set_governance"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_payload")
	})
}

func (s *HandlerSuite) TestEngines() {
	rr := s.get("/engines")
	engines := testutil.UnmarshalResponse[[]EngineResponse](s.T(), rr)
	s.Require().Len(*engines, 1)
	e := (*engines)[0]
	s.Equal("vaults", e.Name)
	s.Equal("gov", e.Governance)
	s.Equal(models.Tick(500), e.ExpirationWindow)
	s.Contains(e.Kinds, vaults.KindSetFee)
	s.Contains(e.Kinds, service.KindSetDelay)
}
