// Package metrics is the Prometheus implementation of identity.Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isometry/adauth/internal/identity"
)

const namespace = "adauth"

// durationBuckets cover a fast bind up to the longest attempt deadline.
var durationBuckets = []float64{
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1,     // 1s
	2,     // 2s
	4,     // 4s, race deadline
	8,     // 8s
}

// Recorder records resolver metrics into a Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	resolutions     *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	cacheEvictions  prometheus.Counter
	cacheSize       prometheus.Gauge
}

var _ identity.Metrics = (*Recorder)(nil)

// New creates a Recorder with its own registry, including the Go runtime and process
// collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Recorder{
		registry: reg,
		attempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Directory authentication attempts by login name format and result",
			},
			[]string{"format", "result"}, // result: "ok", "rejected", "timeout"
		),
		attemptDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of directory authentication attempts",
				Buckets:   durationBuckets,
			},
			[]string{"format"},
		),
		resolutions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Username resolutions by path and outcome",
			},
			[]string{"path", "success"},
		),
		resolveDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "End-to-end duration of username resolutions",
				Buckets:   durationBuckets,
			},
			[]string{"path"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "format_cache_lookups_total",
				Help:      "Format cache lookups by status",
			},
			[]string{"status"}, // "hit", "miss"
		),
		cacheEvictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "format_cache_evictions_total",
				Help:      "Usernames evicted from the format cache",
			},
		),
		cacheSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "format_cache_entries",
				Help:      "Number of usernames in the format cache",
			},
		),
	}
}

func (r *Recorder) ObserveAttempt(format identity.Format, ok, timedOut bool, elapsed time.Duration) {
	result := "rejected"
	switch {
	case ok:
		result = "ok"
	case timedOut:
		result = "timeout"
	}
	r.attempts.WithLabelValues(format.String(), result).Inc()
	r.attemptDuration.WithLabelValues(format.String()).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveResolution(path string, ok bool, elapsed time.Duration) {
	r.resolutions.WithLabelValues(path, strconv.FormatBool(ok)).Inc()
	r.resolveDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveCacheLookup(hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	r.cacheLookups.WithLabelValues(status).Inc()
}

func (r *Recorder) ObserveCacheEviction() {
	r.cacheEvictions.Inc()
}

func (r *Recorder) SetCacheSize(n int) {
	r.cacheSize.Set(float64(n))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
