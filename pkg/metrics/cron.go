package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron job results used as the result label.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobTimedOut  = "timed_out"
)

// CronJobMetrics records how the cron worker's retention and stale order jobs
// behave. Alert on roha_cron_job_last_success_timestamp_seconds falling
// behind rather than on individual failures.
type CronJobMetrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
	skippedCycles prometheus.Counter
}

// NewCronJobMetrics registers the cron metrics on reg. A nil registerer yields
// a no-op recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roha_cron_job_runs_total",
			Help: "Cron job executions by job and result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "roha_cron_job_duration_seconds",
			Help: "Wall time of cron job executions.",
			// retention deletes are quick; stale scans can take a while on a cold cache
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roha_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		skippedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roha_cron_cycles_skipped_total",
			Help: "Cycles skipped because another replica held the cron lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skippedCycles)
	return m
}

// ObserveRun records one execution of job. result is one of the Job* labels.
func (m *CronJobMetrics) ObserveRun(job, result string, took time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, result).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if result == JobSucceeded {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

func (m *CronJobMetrics) IncSkippedCycle() {
	if m == nil || m.skippedCycles == nil {
		return
	}
	m.skippedCycles.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
