// Package sweeper periodically removes expired actions. Engines never
// schedule themselves, so without a sweeper expired actions stay in storage
// until a Confirm touches them; reads already treat them as gone.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Target is an engine that can sweep its expired actions.
type Target interface {
	Name() string
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper polls a set of engines.
type Sweeper struct {
	targets  []Target
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// New builds a sweeper that runs every interval.
func New(interval time.Duration, targets []Target, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Sweeper{targets: targets, interval: interval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce sweeps every target once and returns the total removed. A failing
// engine is logged and does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	total := 0
	for _, t := range s.targets {
		n, err := t.SweepExpired(ctx)
		total += n
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "sweep failed", "engine", t.Name(), "error", err)
			}
			continue
		}
		if n > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "swept expired actions", "engine", t.Name(), "count", n)
		}
	}
	return total
}
