// Package service is the Lifecycle Coordinator: an Engine drives proposals
// through propose, confirm, cancel and expire for one consumer.
//
// Every mutating call runs under a per-engine lock, so two confirms of the
// same id can never both apply. The engine never schedules itself; callers
// poll Confirm, and the sweeper calls SweepExpired.
package service

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"timelock/internal/timelock/authority"
	"timelock/internal/timelock/clock"
	"timelock/internal/timelock/hooks"
	timelockmetrics "timelock/internal/timelock/metrics"
	"timelock/internal/timelock/models"
	"timelock/internal/timelock/store"
	"timelock/internal/timelock/store/memory"
	dErrors "timelock/pkg/domain-errors"
	audit "timelock/pkg/platform/audit"
)

// EventSink receives every engine and consumer event in process.
type EventSink interface {
	Publish(ctx context.Context, event models.Event)
}

// AuditPublisher persists events for the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config describes one engine instance.
type Config struct {
	// Name identifies the engine in events, metrics and storage keys.
	Name       string
	Governance string
	Grants     []models.Grant
	Delay      models.DelayConfig
	// Expiration has no default; use models.NeverExpires or
	// models.ExpiresAfter.
	Expiration models.Expiration

	Clock  clock.Clock
	Ledger store.Ledger
	Hooks  *hooks.Registry
	Hub    authority.Hub
	// Consumers register their kinds on the engine's registry during New.
	Consumers []hooks.Registrar
}

// Engine owns the delay configuration, authority table and pending actions of
// one consumer.
type Engine struct {
	name       string
	expiration models.Expiration
	clock      clock.Clock
	ledger     store.Ledger
	hooks      *hooks.Registry
	authority  *authority.Resolver

	// mu serializes propose, confirm, cancel, sweeps and the bootstrap.
	mu sync.Mutex

	delayMu      sync.RWMutex
	delay        models.DelayConfig
	bootstrapped bool

	logger         *slog.Logger
	metrics        *timelockmetrics.Metrics
	sink           EventSink
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *timelockmetrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) {
		e.auditPublisher = publisher
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

const tracerName = "timelock"

// New validates cfg and builds an engine. The built-in set_delay kind and
// every configured consumer are registered on the engine's hook registry.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "engine name is required")
	}
	if !cfg.Expiration.IsSet() {
		return nil, dErrors.New(dErrors.CodeValidation, "expiration window must be configured explicitly")
	}
	delay, err := models.NewDelayConfig(cfg.Delay.MinDelay, cfg.Delay.MaxDelay, cfg.Delay.CurrentDelay)
	if err != nil {
		return nil, err
	}
	if w := cfg.Expiration.Window(); delay.MaxDelay > models.MaxTick || w > models.MaxTick-delay.MaxDelay {
		return nil, dErrors.Newf(dErrors.CodeValidation, "max delay %d plus expiration window %d exceeds the clock range", delay.MaxDelay, w)
	}

	e := &Engine{
		name:       cfg.Name,
		expiration: cfg.Expiration,
		clock:      cfg.Clock,
		ledger:     cfg.Ledger,
		hooks:      cfg.Hooks,
		delay:      delay,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.Wall{}
	}
	if e.ledger == nil {
		e.ledger = memory.New()
	}
	if e.hooks == nil {
		e.hooks = hooks.NewRegistry()
	}

	resolverOpts := []authority.Option{}
	if cfg.Hub != nil {
		resolverOpts = append(resolverOpts, authority.WithHub(cfg.Hub))
	}
	if e.logger != nil {
		resolverOpts = append(resolverOpts, authority.WithLogger(e.logger.With("engine", cfg.Name)))
	}
	e.authority, err = authority.New(cfg.Governance, cfg.Grants, resolverOpts...)
	if err != nil {
		return nil, err
	}

	if err := e.hooks.Register(e.setDelayHook()); err != nil {
		return nil, err
	}
	for _, c := range cfg.Consumers {
		if err := c.RegisterHooks(e.hooks); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.name
}

// Kinds lists the action kinds this engine accepts.
func (e *Engine) Kinds() []models.ActionKind {
	return e.hooks.Kinds()
}

// Decode builds a payload of kind from its JSON form.
func (e *Engine) Decode(kind models.ActionKind, raw []byte) (models.Payload, error) {
	return e.hooks.Decode(kind, raw)
}

// Expiration returns the configured expiration window.
func (e *Engine) Expiration() models.Expiration {
	return e.expiration
}

// Governance returns the engine's current root identity.
func (e *Engine) Governance() string {
	return e.authority.Governance()
}

// Authorities lists the capability table.
func (e *Engine) Authorities() []models.AuthorityRecord {
	return e.authority.Records()
}

func (e *Engine) now(ctx context.Context) models.Tick {
	return e.clock.Now(ctx)
}
