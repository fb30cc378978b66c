package transport

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "salekit"

	attemptsTotalMetric  = "transport_attempts_total"
	breakerTripsMetric   = "transport_breaker_trips_total"
	attemptLatencyMetric = "transport_attempt_latency_seconds"
)

type metrics struct {
	attempts *prometheus.CounterVec
	trips    prometheus.Counter
	latency  *prometheus.HistogramVec
}

// newMetrics registers the pool collectors on reg. A nil reg keeps them
// unregistered; a collector already registered by an earlier pool is reused.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		// attempts counts every endpoint attempt.
		// Labels:
		//   - kind: wallet | public
		//   - outcome: success | timeout | rpc_error | exception
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      attemptsTotalMetric,
				Help:      "JSON-RPC attempts made by the transport pool.",
			},
			[]string{"kind", "outcome"},
		),
		trips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      breakerTripsMetric,
			Help:      "Times the wallet endpoint was paused for rate limiting.",
		}),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      attemptLatencyMetric,
				Help:      "Latency of a single endpoint attempt.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		),
	}
	if reg == nil {
		return m
	}
	m.attempts = register(reg, m.attempts)
	m.trips = register(reg, m.trips)
	m.latency = register(reg, m.latency)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observe(kind Kind, err error, took time.Duration) {
	m.attempts.WithLabelValues(kind.String(), outcome(err)).Inc()
	m.latency.WithLabelValues(kind.String()).Observe(took.Seconds())
}
