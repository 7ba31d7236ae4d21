// Package metrics exposes Prometheus collectors for analyses and upstream calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Remote call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dokanalyse",
			Name:      "analyses_total",
			Help:      "Dataset analyses completed, partitioned by result status.",
		},
		[]string{"status"},
	)

	analysisSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dokanalyse",
			Name:      "analysis_seconds",
			Help:      "Latency of a single dataset analysis in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	remoteCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dokanalyse",
			Name:      "remote_calls_total",
			Help:      "Calls to feature services and registers, partitioned by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	upstreamCircuitOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dokanalyse",
			Name:      "upstream_circuit_open",
			Help:      "1 while the circuit breaker for an upstream host is open.",
		},
		[]string{"host"},
	)
)

// Register attaches the collectors to reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisSeconds,
		remoteCallsTotal,
		upstreamCircuitOpen,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records one finished dataset analysis.
func ObserveAnalysis(duration time.Duration, status string) {
	analysesTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisSeconds.Observe(duration.Seconds())
}

// ObserveRemoteCall records an upstream call from its status code.
func ObserveRemoteCall(service string, statusCode int) {
	outcome := OutcomeError
	switch statusCode {
	case http.StatusOK:
		outcome = OutcomeOK
	case http.StatusRequestTimeout:
		outcome = OutcomeTimeout
	}
	remoteCallsTotal.WithLabelValues(service, outcome).Inc()
}

// SetCircuitOpen flags whether the breaker for host is open.
func SetCircuitOpen(host string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	upstreamCircuitOpen.WithLabelValues(host).Set(v)
}
