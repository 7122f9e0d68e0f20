// Package metrics exposes pipeline counters to Prometheus. All methods are
// safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sniper"

type Metrics struct {
	registry *prometheus.Registry

	detected     *prometheus.CounterVec
	decoded      *prometheus.CounterVec
	decodeErrors prometheus.Counter
	decisions    *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	claimLost    prometheus.Counter
	latency      *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	streamState  prometheus.Gauge
	transitions  *prometheus.CounterVec
	priorityFee  prometheus.Gauge
}

// New builds the collectors on a private registry, with Go and process
// collectors included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_detected_total",
			Help:      "Raw transactions received from detection transports.",
		}, []string{"source"}),
		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pools_detected_total",
			Help:      "Pool initializations decoded, by layout.",
		}, []string{"pool_type"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Transactions dropped because they could not be decoded.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_decisions_total",
			Help:      "Filter decisions, by result and rejection reason.",
		}, []string{"result", "reason"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Terminal execution outcomes, by status and route.",
		}, []string{"status", "route"}),
		claimLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_pools_total",
			Help:      "Accepted pools skipped because another task already claimed them.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_to_terminal_seconds",
			Help:      "Time from detection to a terminal outcome.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_in_flight",
			Help:      "Executions currently holding a permit.",
		}),
		streamState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detection_state",
			Help:      "Current detection state code.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_transitions_total",
			Help:      "Detection state transitions.",
		}, []string{"from", "to"}),
		priorityFee: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "priority_fee_micro_lamports",
			Help:      "Compute unit price of the last fee plan.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.detected, m.decoded, m.decodeErrors, m.decisions, m.outcomes, m.claimLost,
		m.latency, m.inFlight, m.streamState, m.transitions, m.priorityFee,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Detected(source string) {
	if m == nil {
		return
	}
	m.detected.WithLabelValues(source).Inc()
}

func (m *Metrics) Decoded(poolType string) {
	if m == nil {
		return
	}
	m.decoded.WithLabelValues(poolType).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) Decision(accepted bool, reason string) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.decisions.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) ClaimLost() {
	if m == nil {
		return
	}
	m.claimLost.Inc()
}

// Outcome records a terminal execution and its detection-to-terminal latency.
func (m *Metrics) Outcome(status, route string, latency time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status, route).Inc()
	m.latency.WithLabelValues(status).Observe(latency.Seconds())
}

func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}

func (m *Metrics) StateChanged(from, to string, code int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	m.streamState.Set(float64(code))
}

func (m *Metrics) PriorityFee(microLamports uint64) {
	if m == nil {
		return
	}
	m.priorityFee.Set(float64(microLamports))
}
