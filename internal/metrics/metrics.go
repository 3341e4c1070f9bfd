// ABOUTME: Prometheus collectors for model exchanges and rejected sends
// ABOUTME: Recorder satisfies transport.Observer and is served on the metrics path

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/llm-chat/internal/transport"
)

// Rejection reasons for sends refused before reaching a transport.
const (
	ReasonEmpty = "empty"
	ReasonBusy  = "busy"
)

// Recorder owns a private registry so several instances can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmchat_transport_requests_total",
			Help: "Model exchanges by transport and outcome (ok, fallback, error).",
		}, []string{"transport", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmchat_transport_request_duration_seconds",
			Help:    "Wall time of model exchanges.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"transport"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmchat_send_rejected_total",
			Help: "Sends refused before reaching a transport.",
		}, []string{"reason"}),
	}
	r.registry.MustRegister(r.requests, r.duration, r.rejected)
	return r
}

// ObserveRequest records one finished exchange.
func (r *Recorder) ObserveRequest(kind string, outcome transport.Outcome, elapsed time.Duration) {
	r.requests.WithLabelValues(kind, string(outcome)).Inc()
	r.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveRejected records a refused send.
func (r *Recorder) ObserveRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
