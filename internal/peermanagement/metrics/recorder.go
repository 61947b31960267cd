package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes Prometheus metrics for the interception layer. A nil
// *Recorder records nothing.
type Recorder struct {
	messages           *prometheus.CounterVec
	bytes              *prometheus.CounterVec
	arbitration        *prometheus.HistogramVec
	controllerFailures prometheus.Counter
	faultDelay         prometheus.Histogram
	handshakes         *prometheus.CounterVec
	activeLinks        prometheus.Gauge
}

// NewRecorder registers the metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interceptor_messages_total",
			Help: "Chunks read from source sessions grouped by link, direction and outcome",
		}, []string{"link", "direction", "outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interceptor_bytes_total",
			Help: "Bytes relayed grouped by link, direction and side",
		}, []string{"link", "direction", "side"}),
		arbitration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interceptor_arbitration_duration_seconds",
			Help:    "Latency of controller decisions",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		controllerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interceptor_controller_unavailable_total",
			Help: "Decisions that fell back because the controller was unavailable",
		}),
		faultDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "interceptor_fault_delay_seconds",
			Help:    "Injected delay per forwarded chunk",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interceptor_handshakes_total",
			Help: "Peer session handshakes grouped by result",
		}, []string{"result"}),
		activeLinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "interceptor_active_links",
			Help: "Number of links currently relaying",
		}),
	}

	reg.MustRegister(
		r.messages,
		r.bytes,
		r.arbitration,
		r.controllerFailures,
		r.faultDelay,
		r.handshakes,
		r.activeLinks,
	)
	return r
}

// Handler returns an HTTP handler serving the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveMessage records the outcome of one chunk.
func (r *Recorder) ObserveMessage(link, direction string, o Outcome, in, out int) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(link, direction, o.String()).Inc()
	r.bytes.WithLabelValues(link, direction, "in").Add(float64(in))
	if out > 0 {
		r.bytes.WithLabelValues(link, direction, "out").Add(float64(out))
	}
}

// ObserveArbitration records the latency of a controller decision.
func (r *Recorder) ObserveArbitration(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.arbitration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveControllerUnavailable counts a fallback decision.
func (r *Recorder) ObserveControllerUnavailable() {
	if r == nil {
		return
	}
	r.controllerFailures.Inc()
}

// ObserveFaultDelay records an injected delay.
func (r *Recorder) ObserveFaultDelay(d time.Duration) {
	if r == nil || d <= 0 {
		return
	}
	r.faultDelay.Observe(d.Seconds())
}

// ObserveHandshake counts a handshake attempt; result is "ok" or an error kind.
func (r *Recorder) ObserveHandshake(result string) {
	if r == nil {
		return
	}
	r.handshakes.WithLabelValues(result).Inc()
}

// LinkUp increments the active link gauge.
func (r *Recorder) LinkUp() {
	if r == nil {
		return
	}
	r.activeLinks.Inc()
}

// LinkDown decrements the active link gauge.
func (r *Recorder) LinkDown() {
	if r == nil {
		return
	}
	r.activeLinks.Dec()
}
