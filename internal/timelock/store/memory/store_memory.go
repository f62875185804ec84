package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"timelock/internal/timelock/models"
	"timelock/pkg/platform/sentinel"
)

// InMemoryLedger keeps records in a map guarded by a mutex. It is the default
// ledger for single-process engines.
type InMemoryLedger struct {
	mu      sync.RWMutex
	lastID  models.ActionID
	records map[models.ActionID]*models.Record
	delay   *models.DelayState
}

// New creates an empty in-memory ledger.
func New() *InMemoryLedger {
	return &InMemoryLedger{records: make(map[models.ActionID]*models.Record)}
}

func (s *InMemoryLedger) NextID(_ context.Context) (models.ActionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID, nil
}

func (s *InMemoryLedger) Save(_ context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("save action %d: %w", rec.ID, sentinel.ErrAlreadyUsed)
	}
	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *InMemoryLedger) Find(_ context.Context, id models.ActionID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(rec), nil
}

func (s *InMemoryLedger) Take(_ context.Context, id models.ActionID) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.records, id)
	return rec, nil
}

func (s *InMemoryLedger) List(_ context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(rec *models.Record) *models.Record {
	c := *rec
	c.Payload = append([]byte(nil), rec.Payload...)
	return &c
}

func (s *InMemoryLedger) LoadDelay(_ context.Context) (models.DelayState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.delay == nil {
		return models.DelayState{}, sentinel.ErrNotFound
	}
	return *s.delay, nil
}

func (s *InMemoryLedger) SaveDelay(_ context.Context, delay models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delay == nil {
		s.delay = &models.DelayState{}
	}
	s.delay.CurrentDelay = delay
	return nil
}

func (s *InMemoryLedger) ClaimBootstrap(_ context.Context, delay models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delay != nil && s.delay.Bootstrapped {
		return fmt.Errorf("claim bootstrap: %w", sentinel.ErrAlreadyUsed)
	}
	s.delay = &models.DelayState{CurrentDelay: delay, Bootstrapped: true}
	return nil
}
