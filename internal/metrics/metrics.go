package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ActionsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Metrics struct {
	// ActionsTotal counts tracker actions by action name and outcome
	ActionsTotal *prometheus.CounterVec

	// SleepDuration tracks completed sleep sessions in hours
	SleepDuration prometheus.Histogram
}

// New registers the bot metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sleepbot_actions_total",
				Help: "Total sleep tracker actions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		SleepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sleepbot_sleep_duration_hours",
				Help:    "Duration of completed sleep sessions in hours",
				Buckets: []float64{1, 2, 4, 5, 6, 7, 8, 9, 10, 12, 16},
			},
		),
	}
}

func (m *Metrics) ObserveAction(action, outcome string) {
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveSleep(d time.Duration) {
	m.SleepDuration.Observe(d.Hours())
}
