package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"timelock/internal/platform/config"
	"timelock/internal/platform/httpserver"
	"timelock/internal/platform/logger"
	"timelock/internal/platform/metrics"
	"timelock/internal/timelock"
	"timelock/internal/timelock/sweeper"
	"timelock/pkg/platform/httputil"
	"timelock/pkg/platform/middleware/actor"
	"timelock/pkg/platform/middleware/ratelimit"
	"timelock/pkg/platform/middleware/request"
)

// main wires the engines, their stores and the audit pipeline, then runs the
// HTTP server, the sweeper and the outbox relay until interrupted.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(os.Stdout, cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	infra, err := openInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	pipeline, err := buildAudit(ctx, cfg, infra, reg, log)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	engines, err := buildEngines(ctx, cfg, infra, reg, pipeline.publisher, log)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(request.Middleware)
	router.Get("/healthz", healthHandler(infra))
	router.Handle("/metrics", metrics.Handler(reg))
	router.Group(func(r chi.Router) {
		r.Use(actor.RequireActor(actor.NewTokens(cfg.Server.JWTSigningKey), log))
		r.Use(newRateLimiter(cfg.Server, infra, log).PerActor)
		timelock.NewHandler(log, engines...).Register(r)
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	sweep := sweeper.New(cfg.Timelock.SweepInterval, timelock.SweeperTargets(engines...), sweeper.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting timelock server", "addr", cfg.Server.Addr, "store", cfg.Timelock.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCanceled(sweep.Run(gctx))
	})
	if pipeline.relay != nil {
		g.Go(func() error {
			return ignoreCanceled(pipeline.relay.Run(gctx))
		})
	}

	err = g.Wait()
	log.Info("timelock server stopped", "error", err)
	return err
}

func healthHandler(infra *infrastructure) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := infra.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// newRateLimiter shares windows through redis when it is configured.
func newRateLimiter(cfg config.Server, infra *infrastructure, log *slog.Logger) *ratelimit.Limiter {
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if infra.redis != nil {
		store = ratelimit.NewRedisStore(infra.redis)
	}
	return ratelimit.New(store, cfg.RateLimit, cfg.RateLimitWindow, ratelimit.WithLogger(log))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
