// Package metrics exports client and job measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/tgbridge/internal/cron"
	"github.com/flemzord/tgbridge/internal/telegram"
)

const namespace = "tgbridge"

// Recorder implements telegram.Observer and cron.Observer.
type Recorder struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
	timeouts *prometheus.CounterVec
	failures *prometheus.CounterVec
	unparsed *prometheus.CounterVec
	jobRuns  *prometheus.CounterVec
	jobTime  *prometheus.HistogramVec
}

var (
	_ telegram.Observer = (*Recorder)(nil)
	_ cron.Observer     = (*Recorder)(nil)
)

// NewRecorder creates a Recorder and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands sent to the chat client.",
		}, []string{"command"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from writing a command to the end of its response.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"command"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_timeouts_total",
			Help:      "Commands whose response did not reach the prompt in time.",
		}, []string{"command"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Commands that failed on the transport.",
		}, []string{"command"}),
		unparsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unparsed_lines_total",
			Help:      "Response lines no pattern matched.",
		}, []string{"command"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Sync job runs by outcome.",
		}, []string{"job", "result"}),
		jobTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Sync job run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
	reg.MustRegister(r.commands, r.duration, r.timeouts, r.failures, r.unparsed, r.jobRuns, r.jobTime)
	return r
}

// ObserveCommand implements protocol.Observer.
func (r *Recorder) ObserveCommand(name string, elapsed time.Duration, timedOut bool, err error) {
	r.commands.WithLabelValues(name).Inc()
	r.duration.WithLabelValues(name).Observe(elapsed.Seconds())
	if timedOut {
		r.timeouts.WithLabelValues(name).Inc()
	}
	if err != nil {
		r.failures.WithLabelValues(name).Inc()
	}
}

// ObserveUnparsed implements telegram.Observer.
func (r *Recorder) ObserveUnparsed(command string, lines int) {
	if lines > 0 {
		r.unparsed.WithLabelValues(command).Add(float64(lines))
	}
}

// ObserveJob implements cron.Observer.
func (r *Recorder) ObserveJob(name string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.jobRuns.WithLabelValues(name, result).Inc()
	r.jobTime.WithLabelValues(name).Observe(elapsed.Seconds())
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// StateGauge exports the client lifecycle state, one series per state set
// to 1 for the current one.
func StateGauge(reg prometheus.Registerer, state func() string) {
	states := []string{"not_started", "starting", "running", "stopped", "failed"}
	for _, s := range states {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "client_state",
			Help:        "Chat client lifecycle state.",
			ConstLabels: prometheus.Labels{"state": s},
		}, func() float64 {
			if state() == s {
				return 1
			}
			return 0
		}))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
