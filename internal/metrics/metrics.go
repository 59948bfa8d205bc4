// Package metrics records pack service activity as Prometheus metrics on a
// private registry, exposed by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

const namespace = "ctxpack"

// Recorder implements pack.Recorder with Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	mutations      *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	purged         prometheus.Counter
	lenientDrops   prometheus.Counter
	chunksRendered prometheus.Histogram
	requests       *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with its own registry, including Go runtime
// and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Accepted pack mutations by action.",
		}, []string{"action"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Rejected requests of kind conflict by code.",
		}, []string{"code"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_packs_total",
			Help:      "Packs removed after their expired grace window.",
		}),
		lenientDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lenient_drops_total",
			Help:      "Corrupt or oversized records dropped while listing.",
		}),
		chunksRendered: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_rendered",
			Help:      "Chunks emitted per output read.",
			Buckets:   []float64{0, 1, 3, 6, 12, 25, 50, 100},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Tool requests by tool and outcome.",
		}, []string{"tool", "outcome"}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Tool request latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"tool"}),
	}
	reg.MustRegister(
		r.mutations, r.conflicts, r.purged, r.lenientDrops,
		r.chunksRendered, r.requests, r.requestSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) MutationAccepted(action string) { r.mutations.WithLabelValues(action).Inc() }
func (r *Recorder) Conflict(code string)           { r.conflicts.WithLabelValues(code).Inc() }
func (r *Recorder) Purged(n int)                   { r.purged.Add(float64(n)) }
func (r *Recorder) LenientDrop()                   { r.lenientDrops.Inc() }
func (r *Recorder) ChunksRendered(n int)           { r.chunksRendered.Observe(float64(n)) }

// ObserveRequest records one tool call. outcome is "ok" or the error kind.
func (r *Recorder) ObserveRequest(tool, outcome string, elapsed time.Duration) {
	r.requests.WithLabelValues(tool, outcome).Inc()
	r.requestSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Compile-time check that Recorder implements pack.Recorder interface
var _ pack.Recorder = (*Recorder)(nil)
