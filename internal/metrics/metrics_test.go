package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	// Initialise vec label combinations so they appear in Gather output.
	// Vec metrics are not gathered until at least one label set is created.
	ObserveExecution("Deploy", 100*time.Millisecond, true)
	ObserveAgentRequest("GetHealth", 10*time.Millisecond, false)
	IncDedupedPull()
	WebhooksTotal.WithLabelValues("Repo", "accepted").Inc()

	// promauto registers on init, so gathering without error means every
	// collector made it into the default registry.
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expected := map[string]bool{
		"convoy_executions_total":               false,
		"convoy_execution_duration_seconds":     false,
		"convoy_monitor_tick_duration_seconds":  false,
		"convoy_servers_unreachable":            false,
		"convoy_open_alerts":                    false,
		"convoy_agent_request_duration_seconds": false,
		"convoy_agent_request_errors_total":     false,
		"convoy_deduped_image_pulls_total":      false,
		"convoy_webhooks_total":                 false,
	}

	for _, mf := range mfs {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestObserveExecutionOutcomes(t *testing.T) {
	ObserveExecution("RunBuild", time.Second, true)
	ObserveExecution("RunBuild", time.Second, false)
	// Both outcomes must resolve to distinct label sets without panicking.
}

func TestGaugeSets(t *testing.T) {
	ServersUnreachable.Set(2)
	OpenAlerts.Set(5)
	MonitorTickDuration.Observe(0.25)
}
