// Package metrics exports cell verdict counters in the Prometheus text
// format, for node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/nbverify/internal/harness"
)

// Recorder counts verdicts as the harness reports them.
// Safe for concurrent use by parallel file runs.
type Recorder struct {
	registry *prometheus.Registry

	cells        *prometheus.CounterVec
	cellDuration prometheus.Histogram
	poisoned     prometheus.Counter
}

var _ harness.Observer = (*Recorder)(nil)

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cells: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbverify_cells_total",
				Help: "Cells judged, by verdict status",
			},
			[]string{"status"},
		),
		cellDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nbverify_cell_duration_seconds",
				Help:    "Wall time spent executing a cell",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		poisoned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nbverify_files_poisoned_total",
				Help: "Files in which a cell timed out",
			},
		),
	}

	r.registry.MustRegister(r.cells, r.cellDuration, r.poisoned)

	// Pre-create every status so absent outcomes export as zero.
	for _, s := range []harness.Status{
		harness.StatusPassed,
		harness.StatusFailed,
		harness.StatusSkipped,
		harness.StatusExpectedFailure,
	} {
		r.cells.WithLabelValues(string(s))
	}
	return r
}

// CellFinished counts one verdict. Skipped cells never ran, so they add
// no duration sample.
func (r *Recorder) CellFinished(_ string, v harness.Verdict) {
	r.cells.WithLabelValues(string(v.Status)).Inc()
	if v.Status != harness.StatusSkipped {
		r.cellDuration.Observe(v.Duration.Seconds())
	}
}

// FilePoisoned counts one poisoned file.
func (r *Recorder) FilePoisoned(string) {
	r.poisoned.Inc()
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically writes the current values to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
