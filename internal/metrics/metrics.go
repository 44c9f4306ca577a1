// Package metrics exports run outcomes in the Prometheus text format for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the metrics of one run on a private registry, so nothing
// leaks into the process-wide default registry.
type Recorder struct {
	path     string
	registry *prometheus.Registry

	posted     *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	failed     *prometheus.CounterVec
	candidates *prometheus.GaugeVec
	lastRun    *prometheus.GaugeVec
	duration   *prometheus.GaugeVec
}

// NewRecorder creates a Recorder writing to path. A "{mode}" placeholder in
// path is replaced by the run mode so both modes can share a directory.
func NewRecorder(path string) *Recorder {
	r := &Recorder{
		path:     path,
		registry: prometheus.NewRegistry(),
	}

	r.posted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xreply_replies_posted_total",
			Help: "Replies posted (or logged in dry-run mode) by the last run",
		},
		[]string{"mode", "dry_run"},
	)
	r.skipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xreply_replies_skipped_total",
			Help: "Candidates the generator declined by the last run",
		},
		[]string{"mode"},
	)
	r.failed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xreply_publish_failures_total",
			Help: "Replies that failed to publish in the last run",
		},
		[]string{"mode"},
	)
	r.candidates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xreply_candidates",
			Help: "Candidates left after filtering in the last run",
		},
		[]string{"mode"},
	)
	r.lastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xreply_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
		[]string{"mode"},
	)
	r.duration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xreply_last_run_duration_seconds",
			Help: "Wall time of the last run",
		},
		[]string{"mode"},
	)

	r.registry.MustRegister(r.posted, r.skipped, r.failed, r.candidates, r.lastRun, r.duration)
	return r
}

// Path returns the textfile location for mode.
func (r *Recorder) Path(mode string) string {
	return strings.ReplaceAll(r.path, "{mode}", mode)
}

// ObserveRun records the outcome of a run and writes the textfile.
func (r *Recorder) ObserveRun(mode string, dryRun bool, candidates, posted, skipped, failed int, started, finished time.Time) error {
	r.posted.WithLabelValues(mode, fmt.Sprint(dryRun)).Add(float64(posted))
	r.skipped.WithLabelValues(mode).Add(float64(skipped))
	r.failed.WithLabelValues(mode).Add(float64(failed))
	r.candidates.WithLabelValues(mode).Set(float64(candidates))
	r.lastRun.WithLabelValues(mode).Set(float64(finished.Unix()))
	r.duration.WithLabelValues(mode).Set(finished.Sub(started).Seconds())

	path := r.Path(mode)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
