package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Batch jobs (15s - 10m) ---
	30000, 60000, 120000, 300000, 600000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
		)
	}
	m.MetricCollector = metric
	return metric
}

const subsystemRenewal = "contract_renewal"

var (
	MetricJobRuns = &Metric{
		ID:          "jobRuns",
		Name:        "job_runs_total",
		Description: "scheduler job runs by job and result",
		Type:        "counter_vec",
		Args:        []string{"job", "result"},
	}
	MetricJobDuration = &Metric{
		ID:          "jobDur",
		Name:        "job_duration_ms",
		Description: "scheduler job latency in milliseconds",
		Type:        "histogram_vec",
		Args:        []string{"job"},
	}
	MetricTransitions = &Metric{
		ID:          "transitions",
		Name:        "contract_transitions_total",
		Description: "contract state transitions by reason",
		Type:        "counter_vec",
		Args:        []string{"reason"},
	}
	MetricReminders = &Metric{
		ID:          "reminders",
		Name:        "reminders_sent_total",
		Description: "renewal reminders sent by stage",
		Type:        "counter_vec",
		Args:        []string{"stage"},
	}
	MetricOutbox = &Metric{
		ID:          "outbox",
		Name:        "outbox_dispatch_total",
		Description: "side effect task dispatch results by kind",
		Type:        "counter_vec",
		Args:        []string{"kind", "result"},
	}
)

// Business exposes the domain collectors. A nil *Business is a valid no-op recorder.
type Business struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	reminders   *prometheus.CounterVec
	outbox      *prometheus.CounterVec
}

// NewBusiness creates the collectors and registers them on reg when reg is non-nil.
func NewBusiness(reg prometheus.Registerer) *Business {
	b := &Business{
		jobRuns:     NewMetric(MetricJobRuns, subsystemRenewal).(*prometheus.CounterVec),
		jobDuration: NewMetric(MetricJobDuration, subsystemRenewal).(*prometheus.HistogramVec),
		transitions: NewMetric(MetricTransitions, subsystemRenewal).(*prometheus.CounterVec),
		reminders:   NewMetric(MetricReminders, subsystemRenewal).(*prometheus.CounterVec),
		outbox:      NewMetric(MetricOutbox, subsystemRenewal).(*prometheus.CounterVec),
	}
	if reg != nil {
		reg.MustRegister(b.jobRuns, b.jobDuration, b.transitions, b.reminders, b.outbox)
	}
	return b
}

func (b *Business) ObserveJob(job, result string, elapsed time.Duration) {
	if b == nil {
		return
	}
	b.jobRuns.WithLabelValues(job, result).Inc()
	b.jobDuration.WithLabelValues(job).Observe(float64(elapsed.Milliseconds()))
}

func (b *Business) IncTransition(reason string) {
	if b == nil {
		return
	}
	b.transitions.WithLabelValues(reason).Inc()
}

func (b *Business) IncReminder(stage string) {
	if b == nil {
		return
	}
	b.reminders.WithLabelValues(stage).Inc()
}

func (b *Business) IncOutbox(kind, result string) {
	if b == nil {
		return
	}
	b.outbox.WithLabelValues(kind, result).Inc()
}
