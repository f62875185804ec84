// Package ratelimit throttles authenticated callers with a sliding window
// keyed by caller identity.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"timelock/pkg/platform/httputil"
	"timelock/pkg/requestcontext"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window frees a slot.
func (r *Result) RetryAfter(now time.Time) int {
	if r.Allowed {
		return 0
	}
	return int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Limiter is the per-caller rate limiting middleware.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New allows limit requests per caller in any window. A limit of zero or
// less disables limiting.
func New(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{store: store, limit: limit, window: window}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PerActor must run after the actor middleware. Requests without an actor
// and requests hitting a store error pass through.
func (l *Limiter) PerActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller := requestcontext.Actor(ctx)
		if l.limit <= 0 || caller == "" {
			next.ServeHTTP(w, r)
			return
		}

		result, err := l.store.Allow(ctx, "actor:"+caller, l.limit, l.window)
		if err != nil {
			if l.logger != nil {
				l.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"actor", caller,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retry := result.RetryAfter(requestcontext.Now(ctx))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			httputil.WriteJSON(w, http.StatusTooManyRequests, &exceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "too many requests for this caller",
				RetryAfter: retry,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
