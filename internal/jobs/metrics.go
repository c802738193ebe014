package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs            *prometheus.CounterVec
	failures        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	integrityIssues *prometheus.GaugeVec
	expirations     *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetIntegrityIssues publishes the latest scan result for one issue kind.
func (m *Metrics) SetIntegrityIssues(kind string, count int) {
	if m == nil {
		return
	}
	m.integrityIssues.WithLabelValues(kind).Set(float64(count))
}

// SetExpirations publishes how many tracked items sit at an alert level.
func (m *Metrics) SetExpirations(level string, count int) {
	if m == nil {
		return
	}
	m.expirations.WithLabelValues(level).Set(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gondolapp_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gondolapp_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gondolapp_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	issues := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gondolapp_integrity_issues",
		Help: "Local store integrity issues found by the last scan, by kind.",
	}, []string{"kind"})
	expirations := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gondolapp_expiration_items",
		Help: "Tracked expiration items by alert level at the last sweep.",
	}, []string{"level"})
	registerer.MustRegister(runs, failures, duration, issues, expirations)
	return &Metrics{runs: runs, failures: failures, duration: duration, integrityIssues: issues, expirations: expirations}
}
