// Package metrics holds the prometheus collectors of the review service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shotreview"

// Recorder owns a registry and the service collectors. A nil *Recorder
// records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	captures        *prometheus.CounterVec
	attemptFailures *prometheus.CounterVec
	degraded        prometheus.Counter
	remoteDeletes   *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

// New registers the collectors plus the Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Screenshots captured, by the strategy that produced the image.",
		}, []string{"method"}),
		attemptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_attempt_failures_total",
			Help:      "Capture strategies that failed and fell through.",
		}, []string{"method"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_degraded_total",
			Help:      "Screenshots kept inline because the image store was unavailable.",
		}),
		remoteDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_deletes_total",
			Help:      "Remote image deletions, by result.",
		}, []string{"result"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Best-effort persistence failures, by target.",
		}, []string{"target"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.captures,
		r.attemptFailures,
		r.degraded,
		r.remoteDeletes,
		r.persistFailures,
		r.rateLimited,
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) CaptureSucceeded(method string) {
	if r != nil {
		r.captures.WithLabelValues(method).Inc()
	}
}

func (r *Recorder) CaptureAttemptFailed(method string) {
	if r != nil {
		r.attemptFailures.WithLabelValues(method).Inc()
	}
}

func (r *Recorder) StorageDegraded() {
	if r != nil {
		r.degraded.Inc()
	}
}

// RemoteDelete counts one remote image deletion.
func (r *Recorder) RemoteDelete(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.remoteDeletes.WithLabelValues(result).Inc()
}

// PersistFailed counts a failed write to "cache", "records" or "events".
func (r *Recorder) PersistFailed(target string) {
	if r != nil {
		r.persistFailures.WithLabelValues(target).Inc()
	}
}

func (r *Recorder) RateLimited(route string) {
	if r != nil {
		r.rateLimited.WithLabelValues(route).Inc()
	}
}
