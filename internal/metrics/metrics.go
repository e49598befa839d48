// Package metrics exposes the coordinator's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_executions_total",
		Help: "Total number of executed operations by type and outcome.",
	}, []string{"operation", "outcome"})
	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convoy_execution_duration_seconds",
		Help:    "Duration of executed operations.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"operation"})
	MonitorTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convoy_monitor_tick_duration_seconds",
		Help:    "Duration of one monitoring pass over all servers.",
		Buckets: prometheus.DefBuckets,
	})
	ServersUnreachable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convoy_servers_unreachable",
		Help: "Number of enabled servers whose agent is currently unreachable.",
	})
	OpenAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convoy_open_alerts",
		Help: "Number of unresolved alerts.",
	})
	AgentRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convoy_agent_request_duration_seconds",
		Help:    "Duration of RPC requests to host agents by request type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	AgentRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_agent_request_errors_total",
		Help: "Total number of failed agent RPC requests by request type.",
	}, []string{"type"})
	DedupedPulls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convoy_deduped_image_pulls_total",
		Help: "Total number of image pulls served from the dedup cache.",
	})
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_webhooks_total",
		Help: "Total number of received webhooks by resource type and outcome.",
	}, []string{"resource", "outcome"})
)

// ObserveExecution records one finished operation.
func ObserveExecution(operation string, d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	ExecutionsTotal.WithLabelValues(operation, outcome).Inc()
	ExecutionDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveAgentRequest records one agent RPC round trip.
func ObserveAgentRequest(typ string, d time.Duration, success bool) {
	AgentRequestDuration.WithLabelValues(typ).Observe(d.Seconds())
	if !success {
		AgentRequestErrors.WithLabelValues(typ).Inc()
	}
}

// IncDedupedPull counts a pull answered from the dedup cache.
func IncDedupedPull() {
	DedupedPulls.Inc()
}
