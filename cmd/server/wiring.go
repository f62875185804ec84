package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"timelock/internal/consumers/debt"
	"timelock/internal/consumers/oracles"
	"timelock/internal/consumers/vaults"
	"timelock/internal/platform/config"
	"timelock/internal/platform/postgres"
	platformredis "timelock/internal/platform/redis"
	"timelock/internal/timelock"
	"timelock/internal/timelock/authority"
	"timelock/internal/timelock/clock"
	"timelock/internal/timelock/hooks"
	timelockmetrics "timelock/internal/timelock/metrics"
	"timelock/internal/timelock/models"
	"timelock/internal/timelock/service"
	"timelock/internal/timelock/store"
	memoryledger "timelock/internal/timelock/store/memory"
	postgresledger "timelock/internal/timelock/store/postgres"
	redisledger "timelock/internal/timelock/store/redis"
	"timelock/pkg/platform/audit/publishers/compliance"
	"timelock/pkg/platform/audit/publishers/kafka"
	auditmemory "timelock/pkg/platform/audit/store/memory"
	auditpostgres "timelock/pkg/platform/audit/store/postgres"
	"timelock/pkg/platform/audit/worker"
	"timelock/pkg/platform/circuit"
)

// infrastructure holds the shared connections. Either may be nil.
type infrastructure struct {
	redis *platformredis.Client
	db    *sql.DB
}

func openInfra(ctx context.Context, cfg config.Config) (*infrastructure, error) {
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		if rc != nil {
			_ = rc.Close()
		}
		return nil, err
	}
	return &infrastructure{redis: rc, db: db}, nil
}

func (i *infrastructure) Health(ctx context.Context) error {
	var errs []error
	if i.redis != nil {
		errs = append(errs, i.redis.Health(ctx))
	}
	if i.db != nil {
		errs = append(errs, i.db.PingContext(ctx))
	}
	return errors.Join(errs...)
}

func (i *infrastructure) Close() {
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

// auditPipeline is where engine events end up: a compliance store (with an
// outbox relayed to kafka when postgres is available) or kafka directly.
type auditPipeline struct {
	publisher service.AuditPublisher
	relay     *worker.Worker
	kafka     *kafka.Publisher
}

func (p *auditPipeline) Close() {
	if p.kafka != nil {
		_ = p.kafka.Close()
	}
}

func buildAudit(ctx context.Context, cfg config.Config, infra *infrastructure, reg prometheus.Registerer, log *slog.Logger) (*auditPipeline, error) {
	p := &auditPipeline{}
	if len(cfg.Audit.Brokers) > 0 {
		kp, err := kafka.New(cfg.Audit.Brokers, cfg.Audit.Topic, kafka.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := kp.EnsureTopic(ctx, cfg.Audit.Partitions, cfg.Audit.Replication); err != nil {
			_ = kp.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
		p.kafka = kp
	}

	complianceOpts := []compliance.Option{
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	}
	switch {
	case infra.db != nil:
		st := auditpostgres.New(infra.db)
		if err := st.Migrate(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("migrate audit store: %w", err)
		}
		p.publisher = compliance.New(st, complianceOpts...)
		if p.kafka != nil {
			p.relay = worker.NewWorker(st, p.kafka,
				worker.WithInterval(cfg.Audit.RelayInterval),
				worker.WithBreaker(circuit.New("audit-relay")),
				worker.WithLogger(log),
			)
		}
	case p.kafka != nil:
		p.publisher = p.kafka
	default:
		p.publisher = compliance.New(auditmemory.NewInMemoryStore(), complianceOpts...)
	}
	return p, nil
}

func buildEngines(ctx context.Context, cfg config.Config, infra *infrastructure, reg prometheus.Registerer, auditPublisher service.AuditPublisher, log *slog.Logger) ([]*timelock.Engine, error) {
	delay, err := cfg.Timelock.DelayConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Timelock.Store == config.StorePostgres {
		if err := postgresledger.New(infra.db, "").Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
	}

	m := timelockmetrics.New(reg)
	hub := authority.NewStaticHub(cfg.Timelock.RootAdmins...)

	consumers := []struct {
		name     string
		consumer hooks.Registrar
		toggles  []models.ActionKind
	}{
		{
			name: "vaults",
			consumer: vaults.New(vaults.Settings{
				Limits:          vaults.Limits{MaxVaults: 100, MaxAssetsPerVault: 20},
				CreationEnabled: true,
				FeeBps:          30,
			}),
			toggles: []models.ActionKind{vaults.KindSetCreationEnabled},
		},
		{
			name:     "oracles",
			consumer: oracles.New(500),
			toggles:  []models.ActionKind{oracles.KindSetFeedPaused},
		},
		{
			name: "debt",
			consumer: debt.New(debt.Parameters{
				MinDebt:               100,
				MaxDebt:               1_000_000,
				InterestRateBps:       500,
				LiquidationPenaltyBps: 1000,
			}),
			toggles: []models.ActionKind{debt.KindSetBorrowingEnabled},
		},
	}

	engines := make([]*timelock.Engine, 0, len(consumers))
	for _, c := range consumers {
		ledger, err := newLedger(cfg.Timelock.Store, infra, c.name)
		if err != nil {
			return nil, err
		}
		var grants []models.Grant
		for _, g := range cfg.Timelock.Guardians {
			for _, kind := range c.toggles {
				grants = append(grants, models.Grant{Identity: g, Kind: kind, Capabilities: models.CanDisableOnly})
			}
		}
		engine, err := timelock.NewEngine(timelock.Config{
			Name:       c.name,
			Governance: cfg.Timelock.Governance,
			Grants:     grants,
			Delay:      delay,
			Expiration: cfg.Timelock.Expiration(),
			Clock:      clock.Wall{},
			Ledger:     ledger,
			Hub:        hub,
			Consumers:  []hooks.Registrar{c.consumer},
		},
			service.WithLogger(log),
			service.WithMetrics(m),
			service.WithAuditPublisher(auditPublisher),
		)
		if err != nil {
			return nil, fmt.Errorf("build %s engine: %w", c.name, err)
		}
		if err := engine.Restore(ctx); err != nil {
			return nil, fmt.Errorf("restore %s engine: %w", c.name, err)
		}
		engines = append(engines, engine)
	}
	return engines, nil
}

func newLedger(kind config.Store, infra *infrastructure, engine string) (store.Ledger, error) {
	switch kind {
	case config.StoreMemory:
		return memoryledger.New(), nil
	case config.StoreRedis:
		if infra.redis == nil {
			return nil, errors.New("redis store selected without a redis client")
		}
		return redisledger.New(infra.redis.Client, engine), nil
	case config.StorePostgres:
		if infra.db == nil {
			return nil, errors.New("postgres store selected without a database")
		}
		return postgresledger.New(infra.db, engine), nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}
