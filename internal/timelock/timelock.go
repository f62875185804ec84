package timelock

import (
	"log/slog"

	"timelock/internal/timelock/handler"
	"timelock/internal/timelock/service"
	"timelock/internal/timelock/sweeper"
)

// Engine drives the proposal lifecycle for one consumer.
type Engine = service.Engine

// Config describes one engine instance.
type Config = service.Config

// Handler wires HTTP endpoints to a set of named engines.
type Handler = handler.Handler

// NewEngine constructs an engine and registers its consumers' hooks.
func NewEngine(cfg Config, opts ...service.Option) (*Engine, error) {
	return service.New(cfg, opts...)
}

// NewHandler exposes engines over HTTP by name.
func NewHandler(logger *slog.Logger, engines ...*Engine) *Handler {
	hs := make([]handler.Engine, 0, len(engines))
	for _, e := range engines {
		hs = append(hs, e)
	}
	return handler.New(logger, hs...)
}

// SweeperTargets adapts engines for the sweeper.
func SweeperTargets(engines ...*Engine) []sweeper.Target {
	out := make([]sweeper.Target, 0, len(engines))
	for _, e := range engines {
		out = append(out, e)
	}
	return out
}
