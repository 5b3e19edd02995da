// Package metrics exports per-run counters in the Prometheus text format so a
// node_exporter textfile collector can pick up unattended mirror runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshsymonds/gmarchive/internal/mirror"
)

const namespace = "gmarchive"

// Session holds the collectors for a single run on a private registry.
type Session struct {
	registry *prometheus.Registry

	messages  *prometheus.CounterVec
	threads   prometheus.Counter
	archived  prometheus.Gauge
	complete  prometheus.Gauge
	lastRun   prometheus.Gauge
	duration  prometheus.Gauge
	selectors *prometheus.GaugeVec
}

func NewSession() *Session {
	s := &Session{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages handled by outcome.",
		}, []string{"outcome"}),
		threads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threads_total",
			Help:      "Threads walked.",
		}),
		archived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_bytes",
			Help:      "Size of the mbox file after the run.",
		}),
		complete: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_complete",
			Help:      "1 if the last run walked the whole selection.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		selectors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selector_info",
			Help:      "Selection mirrored by the last run.",
		}, []string{"kind", "value"}),
	}
	s.registry.MustRegister(s.messages, s.threads, s.archived, s.complete, s.lastRun, s.duration, s.selectors)
	return s
}

func (s *Session) Registry() *prometheus.Registry { return s.registry }

// Observe records a finished run. elapsed is the wall time of the run and
// size the archive size in bytes, or negative when unknown.
func (s *Session) Observe(rep mirror.Report, elapsed time.Duration, size int64, now time.Time) {
	s.messages.WithLabelValues("appended").Add(float64(rep.Appended))
	s.messages.WithLabelValues("skipped_duplicate").Add(float64(rep.SkippedDuplicate))
	s.messages.WithLabelValues("skipped_no_download").Add(float64(rep.SkippedNoDownload))
	s.messages.WithLabelValues("deleted").Add(float64(rep.Deleted))
	s.threads.Add(float64(rep.Threads))
	if size >= 0 {
		s.archived.Set(float64(size))
	}
	if rep.Complete {
		s.complete.Set(1)
	} else {
		s.complete.Set(0)
	}
	s.lastRun.Set(float64(now.Unix()))
	s.duration.Set(elapsed.Seconds())
	if !rep.Selector.IsZero() {
		s.selectors.WithLabelValues(rep.Selector.Kind.String(), rep.Selector.Value).Set(1)
	}
}

// WriteTextfile atomically replaces path with the current metric values.
func (s *Session) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
