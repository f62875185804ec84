package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"timelock/internal/timelock/authority"
	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
	"timelock/pkg/platform/httputil"
	"timelock/pkg/requestcontext"
)

// Engine is the lifecycle surface one named engine exposes over HTTP.
type Engine interface {
	Name() string
	Kinds() []models.ActionKind
	Decode(kind models.ActionKind, raw []byte) (models.Payload, error)
	Delay() models.DelayConfig
	Expiration() models.Expiration
	Governance() string
	Authorities() []models.AuthorityRecord

	Propose(ctx context.Context, caller string, payload models.Payload) (*models.PendingAction, error)
	Confirm(ctx context.Context, caller string, id models.ActionID) (models.Outcome, error)
	Cancel(ctx context.Context, caller string, id models.ActionID) error
	GetPendingAction(ctx context.Context, id models.ActionID) (*models.PendingAction, error)
	ListPending(ctx context.Context) ([]*models.PendingAction, error)
	SetDelayAfterSetup(ctx context.Context, caller string, delay models.Tick) error

	ProposeAuthorityChange(ctx context.Context, caller string, change authority.Change) (*authority.PendingChange, error)
	ConfirmAuthorityChange(ctx context.Context, caller string, id authority.ChangeID) (bool, error)
	CancelAuthorityChange(ctx context.Context, caller string, id authority.ChangeID) error
	PendingAuthorityChanges() []authority.PendingChange
}

// Handler routes requests to engines by name.
type Handler struct {
	engines map[string]Engine
	logger  *slog.Logger
}

// New constructs a handler over engines. Names must be unique.
func New(logger *slog.Logger, engines ...Engine) *Handler {
	h := &Handler{engines: make(map[string]Engine, len(engines)), logger: logger}
	for _, e := range engines {
		h.engines[e.Name()] = e
	}
	return h
}

// Register mounts timelock endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/engines", h.HandleListEngines)
	r.Route("/engines/{engine}", func(r chi.Router) {
		r.Get("/", h.HandleGetEngine)
		r.Get("/actions", h.HandleListActions)
		r.Post("/actions", h.HandlePropose)
		r.Get("/actions/{id}", h.HandleGetAction)
		r.Post("/actions/{id}/confirm", h.HandleConfirm)
		r.Post("/actions/{id}/cancel", h.HandleCancel)
		r.Post("/delay/bootstrap", h.HandleBootstrapDelay)
		r.Get("/authority/changes", h.HandleListAuthorityChanges)
		r.Post("/authority/changes", h.HandleProposeAuthorityChange)
		r.Post("/authority/changes/{id}/confirm", h.HandleConfirmAuthorityChange)
		r.Post("/authority/changes/{id}/cancel", h.HandleCancelAuthorityChange)
	})
}

func (h *Handler) HandleListEngines(w http.ResponseWriter, r *http.Request) {
	out := make([]*EngineResponse, 0, len(h.engines))
	for _, e := range h.engines {
		out = append(out, toEngineResponse(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleGetEngine(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEngineResponse(engine))
}

// HandlePropose handles POST /engines/{engine}/actions.
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProposeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	payload, err := engine.Decode(models.ActionKind(req.Kind), req.Payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	action, err := engine.Propose(ctx, caller, payload)
	if err != nil {
		h.logFailure(ctx, "propose failed", engine, err, "kind", req.Kind)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toActionResponse(action))
}

func (h *Handler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	actions, err := engine.ListPending(r.Context())
	if err != nil {
		h.logFailure(r.Context(), "list actions failed", engine, err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]*ActionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, toActionResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleGetAction(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	id, ok := actionID(w, r)
	if !ok {
		return
	}
	action, err := engine.GetPendingAction(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toActionResponse(action))
}

// HandleConfirm handles POST /engines/{engine}/actions/{id}/confirm. Every
// non-infrastructure outcome is a 200: callers poll on it.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := actionID(w, r)
	if !ok {
		return
	}
	outcome, err := engine.Confirm(ctx, caller, id)
	if err != nil {
		h.logFailure(ctx, "confirm failed", engine, err, "action_id", id)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ConfirmResponse{
		ID:        id,
		Outcome:   outcome,
		Confirmed: outcome.Confirmed(),
		Status:    outcome.Status(),
	})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := actionID(w, r)
	if !ok {
		return
	}
	if err := engine.Cancel(ctx, caller, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleBootstrapDelay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BootstrapDelayRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := engine.SetDelayAfterSetup(ctx, caller, models.Tick(req.Delay)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEngineResponse(engine))
}

func (h *Handler) HandleListAuthorityChanges(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, engine.PendingAuthorityChanges())
}

func (h *Handler) HandleProposeAuthorityChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AuthorityChangeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	pending, err := engine.ProposeAuthorityChange(ctx, caller, req.Change)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pending)
}

func (h *Handler) HandleConfirmAuthorityChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := changeID(w, r)
	if !ok {
		return
	}
	confirmed, err := engine.ConfirmAuthorityChange(ctx, caller, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "confirmed": confirmed})
}

func (h *Handler) HandleCancelAuthorityChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := changeID(w, r)
	if !ok {
		return
	}
	if err := engine.CancelAuthorityChange(ctx, caller, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (Engine, bool) {
	name := chi.URLParam(r, "engine")
	e, ok := h.engines[name]
	if !ok {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown engine %q", name))
		return nil, false
	}
	return e, true
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := requestcontext.Actor(r.Context())
	if caller == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, engine Engine, err error, args ...any) {
	if h.logger == nil || dErrors.CodeOf(err) != dErrors.CodeInternal {
		return
	}
	args = append(args,
		"engine", engine.Name(),
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	h.logger.ErrorContext(ctx, msg, args...)
}

func actionID(w http.ResponseWriter, r *http.Request) (models.ActionID, bool) {
	id, err := models.ParseActionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return models.NoAction, false
	}
	return id, true
}

func changeID(w http.ResponseWriter, r *http.Request) (authority.ChangeID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid change id"))
		return 0, false
	}
	return authority.ChangeID(n), true
}
