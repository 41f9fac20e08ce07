package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tmbatch/internal/ledger"
)

// Metrics holds the per-run outcome counters. Each run uses its own registry
// so a textfile export reflects only that run.
type Metrics struct {
	registry  *prometheus.Registry
	tomograms *prometheus.CounterVec
	lastRun   prometheus.Gauge
	duration  prometheus.Gauge
}

// NewMetrics registers the batch collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tomograms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tmbatch_tomograms_total",
			Help: "Tomograms processed by outcome.",
		}, []string{"outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tmbatch_last_run_timestamp_seconds",
			Help: "Unix time the last batch run finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tmbatch_last_run_duration_seconds",
			Help: "Wall time of the last batch run.",
		}),
	}
	m.registry.MustRegister(m.tomograms, m.lastRun, m.duration)
	for _, status := range []ledger.Status{ledger.StatusGenerated, ledger.StatusSubmitted, ledger.StatusFailed, ledger.StatusSkipped} {
		m.tomograms.WithLabelValues(string(status))
	}
	return m
}

func (m *Metrics) observe(status ledger.Status) {
	if m == nil {
		return
	}
	m.tomograms.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) finish(end time.Time, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(end.Unix()))
	m.duration.Set(elapsed.Seconds())
}

// WriteTextfile writes the metrics in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
