package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"timelock/internal/timelock/models"
)

// Metrics provides observability for timelock engines. One instance is shared
// by every engine in a process; series are labelled by engine name.
type Metrics struct {
	ActionsProposed  *prometheus.CounterVec
	ConfirmOutcomes  *prometheus.CounterVec
	ActionsCancelled *prometheus.CounterVec
	ActionsExpired   *prometheus.CounterVec
	PendingActions   *prometheus.GaugeVec
	ConfirmDuration  *prometheus.HistogramVec
}

// New registers the timelock metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActionsProposed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timelock_actions_proposed_total",
			Help: "Total number of actions proposed",
		}, []string{"engine", "kind"}),
		ConfirmOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timelock_confirm_outcomes_total",
			Help: "Confirm calls by outcome",
		}, []string{"engine", "outcome"}),
		ActionsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timelock_actions_cancelled_total",
			Help: "Total number of actions cancelled, by reason",
		}, []string{"engine", "reason"}),
		ActionsExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timelock_actions_expired_total",
			Help: "Total number of actions swept after their expiration window",
		}, []string{"engine"}),
		PendingActions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "timelock_pending_actions",
			Help: "Actions currently stored in the ledger",
		}, []string{"engine"}),
		ConfirmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timelock_confirm_duration_seconds",
			Help:    "Duration of Confirm calls including re-validation and apply",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"engine"}),
	}
}

func (m *Metrics) IncrementProposed(engine string, kind models.ActionKind) {
	m.ActionsProposed.WithLabelValues(engine, string(kind)).Inc()
	m.PendingActions.WithLabelValues(engine).Inc()
}

func (m *Metrics) IncrementOutcome(engine string, outcome models.Outcome) {
	m.ConfirmOutcomes.WithLabelValues(engine, string(outcome)).Inc()
	if outcome.Confirmed() {
		m.PendingActions.WithLabelValues(engine).Dec()
	}
}

func (m *Metrics) IncrementCancelled(engine string, reason models.CancelReason) {
	m.ActionsCancelled.WithLabelValues(engine, string(reason)).Inc()
	m.PendingActions.WithLabelValues(engine).Dec()
}

// IncrementExpired counts swept actions, whether by Confirm or a sweep.
func (m *Metrics) IncrementExpired(engine string, n int) {
	m.ActionsExpired.WithLabelValues(engine).Add(float64(n))
	m.PendingActions.WithLabelValues(engine).Sub(float64(n))
}

// ObserveConfirm records the duration of a Confirm call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveConfirm(engine string, start time.Time) {
	m.ConfirmDuration.WithLabelValues(engine).Observe(time.Since(start).Seconds())
}
