package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder holds the per-invocation command metrics.
type Recorder struct {
	reg      *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuflow_ops_runs_total",
				Help: "Total number of operator command runs.",
			},
			[]string{"command", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docuflow_ops_run_duration_seconds",
				Help:    "Duration of operator command runs.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180},
			},
			[]string{"command"},
		),
	}
	for _, c := range []prometheus.Collector{r.runs, r.duration} {
		if err := r.reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records one finished command.
func (r *Recorder) Observe(command string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.runs.WithLabelValues(command, status).Inc()
	r.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Push sends the registry to a Pushgateway under job "docuflow_ops".
// An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url, instance string) error {
	if url == "" {
		return nil
	}
	p := push.New(url, "docuflow_ops").Gatherer(r.reg)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.AddContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
