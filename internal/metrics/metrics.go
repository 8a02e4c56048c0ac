package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunnerMetrics captures settlement batch health signals.
type RunnerMetrics struct {
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	unitsProcessed     *prometheus.CounterVec
	unitErrors         *prometheus.CounterVec
	settlementsCreated *prometheus.CounterVec
	settlementsSkipped *prometheus.CounterVec
}

var (
	runnerOnce sync.Once
	runner     *RunnerMetrics
)

// Runner returns the process-wide settlement runner metrics, registering
// them on the default registry on first use.
func Runner() *RunnerMetrics {
	runnerOnce.Do(func() {
		runner = newRunnerMetrics(prometheus.DefaultRegisterer)
	})
	return runner
}

func newRunnerMetrics(reg prometheus.Registerer) *RunnerMetrics {
	m := &RunnerMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_runner_runs_total",
			Help: "Settlement batch runs started, by trigger.",
		}, []string{"trigger"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_runner_duration_seconds",
			Help:    "Duration of a settlement batch run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger"}),
		unitsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_runner_units_total",
			Help: "Settlement units processed, by cohort.",
		}, []string{"cohort"}),
		unitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_runner_unit_errors_total",
			Help: "Settlement units that failed, by cohort.",
		}, []string{"cohort"}),
		settlementsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_created_total",
			Help: "Settlements created by the runner, by cohort.",
		}, []string{"cohort"}),
		settlementsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_skipped_total",
			Help: "Settlement units skipped because the period already settled.",
		}, []string{"cohort"}),
	}

	for _, c := range []prometheus.Collector{
		m.runs, m.runDuration, m.unitsProcessed, m.unitErrors,
		m.settlementsCreated, m.settlementsSkipped,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
	return m
}

func (m *RunnerMetrics) IncRun(trigger string) {
	m.runs.WithLabelValues(trigger).Inc()
}

func (m *RunnerMetrics) ObserveRunDuration(trigger string, d time.Duration) {
	m.runDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

func (m *RunnerMetrics) AddUnitsProcessed(cohort string, n int) {
	m.unitsProcessed.WithLabelValues(cohort).Add(float64(n))
}

func (m *RunnerMetrics) IncUnitError(cohort string) {
	m.unitErrors.WithLabelValues(cohort).Inc()
}

func (m *RunnerMetrics) IncSettlementCreated(cohort string) {
	m.settlementsCreated.WithLabelValues(cohort).Inc()
}

func (m *RunnerMetrics) IncSettlementSkipped(cohort string) {
	m.settlementsSkipped.WithLabelValues(cohort).Inc()
}
