package gdriver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the driver's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests          *prometheus.CounterVec
	DeliverTxFailures prometheus.Counter
	HandleSeconds     *prometheus.HistogramVec
	CommittedVersion  prometheus.Gauge
}

// NewMetrics returns driver metrics registered with reg.
// If reg is nil, the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gledger",
			Subsystem: "driver",
			Name:      "requests_total",
			Help:      "Requests handled by the driver, by kind.",
		}, []string{"kind"}),

		DeliverTxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gledger",
			Subsystem: "driver",
			Name:      "deliver_tx_failures_total",
			Help:      "Transactions that the application rejected.",
		}),

		HandleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gledger",
			Subsystem: "driver",
			Name:      "handle_seconds",
			Help:      "Time spent handling a request, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),

		CommittedVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gledger",
			Subsystem: "driver",
			Name:      "committed_version",
			Help:      "Latest store version committed by the driver.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.DeliverTxFailures, m.HandleSeconds, m.CommittedVersion)
	}
	return m
}

func (m *Metrics) observeRequest(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(kind).Inc()
	m.HandleSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) deliverTxFailed() {
	if m == nil {
		return
	}
	m.DeliverTxFailures.Inc()
}

func (m *Metrics) committed(version uint64) {
	if m == nil {
		return
	}
	m.CommittedVersion.Set(float64(version))
}
