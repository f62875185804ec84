// Package clock provides the engine's Clock Source: an opaque monotonic
// counter the engine reads to measure elapsed delay.
package clock

import (
	"context"
	"sync"

	"timelock/internal/timelock/models"
	"timelock/pkg/requestcontext"
)

// Clock reads the current tick.
type Clock interface {
	Now(ctx context.Context) models.Tick
}

// Wall counts unix seconds. It honours a request-scoped time pinned with
// requestcontext.WithTime so one request sees a single instant.
type Wall struct{}

func (Wall) Now(ctx context.Context) models.Tick {
	sec := requestcontext.Now(ctx).Unix()
	if sec < 0 {
		return 0
	}
	return models.Tick(sec)
}

// Manual is a clock advanced explicitly, for tests and simulations. It never
// goes backwards.
type Manual struct {
	mu  sync.Mutex
	now models.Tick
}

// NewManual starts a manual clock at start.
func NewManual(start models.Tick) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now(context.Context) models.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new tick.
func (m *Manual) Advance(d models.Tick) models.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}

// Set moves the clock to t; earlier values are ignored.
func (m *Manual) Set(t models.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.now {
		m.now = t
	}
}
