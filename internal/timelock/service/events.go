package service

import (
	"context"

	"timelock/internal/timelock/models"
	audit "timelock/pkg/platform/audit"
	"timelock/pkg/requestcontext"
)

// publish stamps event with the engine name and fans it out to the log, the
// in-process sink and the audit publisher. Audit failures are logged and do
// not undo the transition.
func (e *Engine) publish(ctx context.Context, event models.Event) {
	event.Engine = e.name
	e.logInfo(ctx, string(event.Type),
		"action_id", event.ActionID,
		"kind", event.Kind,
		"actor", event.Actor,
		"reason", event.Reason,
		"at", event.At,
		"log_type", "audit",
	)
	if e.sink != nil {
		e.sink.Publish(ctx, event)
	}
	if e.auditPublisher == nil {
		return
	}
	if err := e.auditPublisher.Emit(ctx, toAuditEvent(ctx, event)); err != nil {
		e.logError(ctx, "failed to publish audit event",
			"event", event.Type,
			"action_id", event.ActionID,
			"error", err,
		)
	}
}

func toAuditEvent(ctx context.Context, event models.Event) audit.Event {
	return audit.Event{
		Category:   audit.AuditEvent(event.Type).Category(),
		Timestamp:  requestcontext.Now(ctx),
		Engine:     event.Engine,
		Action:     string(event.Type),
		ActionID:   uint64(event.ActionID),
		Kind:       string(event.Kind),
		ActorID:    event.Actor,
		Reason:     string(event.Reason),
		Tick:       uint64(event.At),
		RequestID:  requestcontext.RequestID(ctx),
		Attributes: event.Attributes,
	}
}

// actionEmitter is the hooks.Emitter handed to a consumer's Apply. It ties
// consumer events to the action being confirmed.
type actionEmitter struct {
	engine *Engine
	action *models.PendingAction
	actor  string
	at     models.Tick
}

func (a *actionEmitter) Emit(ctx context.Context, eventType models.EventType, attrs map[string]any) {
	a.engine.publish(ctx, models.Event{
		Type:       eventType,
		ActionID:   a.action.ID,
		Kind:       a.action.Kind,
		Actor:      a.actor,
		At:         a.at,
		Attributes: attrs,
	})
}

func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.InfoContext(ctx, msg, e.withRequest(ctx, args)...)
}

func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.WarnContext(ctx, msg, e.withRequest(ctx, args)...)
}

func (e *Engine) logError(ctx context.Context, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.ErrorContext(ctx, msg, e.withRequest(ctx, args)...)
}

func (e *Engine) withRequest(ctx context.Context, args []any) []any {
	args = append(args, "engine", e.name)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	return args
}
