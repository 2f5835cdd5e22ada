// Package metrics records decode outcomes for the catalog indexer.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sweepview"

// ResultOK labels a successful decode; failures carry their error kind.
const ResultOK = "ok"

type Recorder struct {
	registry *prometheus.Registry
	decodes  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
	skipped  prometheus.Counter
}

// NewRecorder builds a recorder backed by its own registry so that several
// indexers in one process do not collide on the global one.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_total",
			Help:      "Replay decodes by format and result.",
		}, []string{"format", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent reading and decoding one replay.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"format"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoded_bytes_total",
			Help:      "Uncompressed replay bytes successfully decoded.",
		}, []string{"format"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_files_total",
			Help:      "Files skipped because their extension is not a replay format.",
		}),
	}
	r.registry.MustRegister(r.decodes, r.duration, r.bytes, r.skipped)
	return r
}

// ObserveDecode records one decode attempt. format may be empty when the
// file never reached a decoder.
func (r *Recorder) ObserveDecode(format, result string, size int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if format == "" {
		format = "unknown"
	}
	r.decodes.WithLabelValues(format, result).Inc()
	r.duration.WithLabelValues(format).Observe(elapsed.Seconds())
	if result == ResultOK && size > 0 {
		r.bytes.WithLabelValues(format).Add(float64(size))
	}
}

func (r *Recorder) ObserveSkip() {
	if r == nil {
		return
	}
	r.skipped.Inc()
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current values in the node exporter textfile
// format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
