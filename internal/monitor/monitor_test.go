package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/convoy-ops/convoy/internal/alert"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

func TestGrade(t *testing.T) {
	tests := []struct {
		value    float64
		warning  float64
		critical float64
		want     types.Severity
	}{
		{10, 75, 95, types.SeverityOk},
		{74.9, 75, 95, types.SeverityOk},
		{75, 75, 95, types.SeverityWarning},
		{94.9, 75, 95, types.SeverityWarning},
		{95, 75, 95, types.SeverityCritical},
		{100, 75, 95, types.SeverityCritical},
	}
	for _, tt := range tests {
		if got := grade(tt.value, tt.warning, tt.critical); got != tt.want {
			t.Errorf("grade(%v, %v, %v) = %q, want %q", tt.value, tt.warning, tt.critical, got, tt.want)
		}
	}
}

func TestThresholdDefaults(t *testing.T) {
	if got := threshold(0, types.DefaultCPUWarning); got != types.DefaultCPUWarning {
		t.Errorf("threshold(0) = %v, want default %v", got, types.DefaultCPUWarning)
	}
	if got := threshold(-1, types.DefaultMemCritical); got != types.DefaultMemCritical {
		t.Errorf("threshold(-1) = %v, want default %v", got, types.DefaultMemCritical)
	}
	if got := threshold(80, types.DefaultCPUWarning); got != 80 {
		t.Errorf("threshold(80) = %v, want configured value", got)
	}
}

func TestStatusCacheUnpolledServer(t *testing.T) {
	c := NewStatusCache()

	status := c.ServerStatus("srv-1")
	if status.State != types.ServerNotOk {
		t.Errorf("unpolled state = %q, want NotOk", status.State)
	}
	if status.ServerID != "srv-1" {
		t.Errorf("placeholder id = %q, want srv-1", status.ServerID)
	}
}

func TestStatusCacheReturnsCopy(t *testing.T) {
	c := NewStatusCache()
	c.SetServerStatus(&types.ServerStatus{ServerID: "srv-1", State: types.ServerOk, Version: "1.0"})

	first := c.ServerStatus("srv-1")
	first.Version = "mutated"
	if c.ServerStatus("srv-1").Version != "1.0" {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestStatusCacheDeploymentState(t *testing.T) {
	c := NewStatusCache()

	if got := c.DeploymentState("d1"); got != types.DeploymentNotDeployed {
		t.Errorf("unobserved state = %q, want NotDeployed", got)
	}

	prev := c.SetDeploymentState("d1", types.DeploymentRunning)
	if prev != types.DeploymentNotDeployed {
		t.Errorf("first set prev = %q, want NotDeployed", prev)
	}
	prev = c.SetDeploymentState("d1", types.DeploymentExited)
	if prev != types.DeploymentRunning {
		t.Errorf("second set prev = %q, want Running", prev)
	}
	if got := c.DeploymentState("d1"); got != types.DeploymentExited {
		t.Errorf("state = %q, want Exited", got)
	}
}

func TestStatusCacheDrop(t *testing.T) {
	c := NewStatusCache()
	c.SetServerStatus(&types.ServerStatus{ServerID: "srv-1", State: types.ServerOk})
	c.SetContainers("srv-1", []types.ContainerSummary{{Name: "web", State: "running"}})
	c.SetDeploymentState("d1", types.DeploymentRunning)

	c.Drop("srv-1")
	if c.ServerStatus("srv-1").State != types.ServerNotOk {
		t.Error("server status survives Drop")
	}
	if c.Containers("srv-1") != nil {
		t.Error("containers survive Drop")
	}

	c.DropDeployment("d1")
	if c.DeploymentState("d1") != types.DeploymentNotDeployed {
		t.Error("deployment state survives DropDeployment")
	}
}

// agentStub serves the agent protocol with two switchable failure modes:
// refuse everything, or answer version but fail the stats query.
type agentStub struct {
	srv       *httptest.Server
	failAll   atomic.Bool
	failStats atomic.Bool
}

func newAgentStub(t *testing.T) *agentStub {
	t.Helper()
	a := &agentStub{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.failAll.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"agent down"}`))
			return
		}
		var req struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Type {
		case "GetHealth":
			w.Write([]byte("{}"))
		case "GetVersion":
			json.NewEncoder(w).Encode(map[string]string{"version": "1.4.2"})
		case "GetSystemStats":
			if a.failStats.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"stats collector crashed"}`))
				return
			}
			json.NewEncoder(w).Encode(types.SystemStats{CPUPercent: 10, MemUsedGB: 2, MemTotalGB: 8})
		case "ListContainers":
			w.Write([]byte("[]"))
		default:
			http.Error(w, `{"error":"unknown type"}`, http.StatusBadRequest)
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

// newTestMonitor wires a monitor over a fresh store plus a server pointed
// at the stub agent. Send flags stay off so no alerter is contacted; the
// alert lifecycle is observed through the store.
func newTestMonitor(t *testing.T, stub *agentStub) (*Monitor, *store.DB, *types.Server) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "convoy.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	server, err := db.Servers.Create("edge", "", nil, types.ServerConfig{
		Address: stub.srv.URL,
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("Create server: %v", err)
	}

	log := logging.New(false, "error")
	m := New(db, NewStatusCache(), alert.NewDispatcher(db, log), log, time.Minute)
	return m, db, server
}

func unresolvedAlerts(t *testing.T, db *store.DB) []*types.Alert {
	t.Helper()
	open, err := db.ListAlerts(store.AlertQuery{Unresolved: true, Limit: 100})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	return open
}

func TestGradeHealthTemps(t *testing.T) {
	stub := newAgentStub(t)
	m, db, server := newTestMonitor(t, stub)

	stats := &types.SystemStats{
		CPUPercent: 10, MemUsedGB: 2, MemTotalGB: 8,
		Components: []types.TempReading{
			{Label: "cpu0", Temp: 50, Critical: 100},
			{Label: "nvme", Temp: 90, Critical: 100},
			{Label: "gpu", Temp: 40}, // unknown critical point
		},
	}
	health := m.gradeHealth(context.Background(), server, stats)
	if health.Temps["cpu0"] != types.SeverityOk || health.Temps["gpu"] != types.SeverityOk {
		t.Errorf("temps = %+v, want cpu0 and gpu Ok", health.Temps)
	}
	if health.Temps["nvme"] != types.SeverityWarning {
		t.Errorf("nvme at 90%% of critical = %q, want Warning", health.Temps["nvme"])
	}

	open := unresolvedAlerts(t, db)
	if len(open) != 1 || open[0].Variant != types.AlertServerTemp {
		t.Fatalf("open alerts = %+v, want one ServerTemp", open)
	}
	if open[0].Severity != types.SeverityWarning || open[0].Data.Path != "nvme" {
		t.Errorf("alert = %+v, want Warning on nvme", open[0])
	}

	// The component cools down and the alert resolves.
	stats.Components[1].Temp = 50
	m.gradeHealth(context.Background(), server, stats)
	if open = unresolvedAlerts(t, db); len(open) != 0 {
		t.Errorf("open alerts after cooldown = %+v, want none", open)
	}
}

func TestPollServerStatsFailure(t *testing.T) {
	stub := newAgentStub(t)
	stub.failStats.Store(true)
	m, db, server := newTestMonitor(t, stub)
	d, err := db.Deployments.Create("web", "", nil, types.DeploymentConfig{ServerID: server.ID})
	if err != nil {
		t.Fatalf("Create deployment: %v", err)
	}
	m.cache.SetDeploymentState(d.ID, types.DeploymentRunning)

	if m.pollServer(context.Background(), server) {
		t.Error("pollServer = true, want unreachable on stats failure")
	}

	status := m.cache.ServerStatus(server.ID)
	if status.State != types.ServerNotOk {
		t.Errorf("state = %q, want NotOk", status.State)
	}
	if status.Version != "1.4.2" {
		t.Errorf("version = %q, want kept from the answered query", status.Version)
	}
	if status.Err == "" {
		t.Error("status err empty, want stats failure recorded")
	}
	if got := m.cache.DeploymentState(d.ID); got != types.DeploymentUnknown {
		t.Errorf("deployment state = %q, want Unknown", got)
	}

	open := unresolvedAlerts(t, db)
	if len(open) != 1 || open[0].Variant != types.AlertServerUnreachable {
		t.Errorf("open alerts = %+v, want one ServerUnreachable", open)
	}
}

func TestPollServerAlertLifecycle(t *testing.T) {
	stub := newAgentStub(t)
	stub.failAll.Store(true)
	m, db, server := newTestMonitor(t, stub)

	if m.pollServer(context.Background(), server) {
		t.Error("pollServer = true, want unreachable")
	}
	open := unresolvedAlerts(t, db)
	if len(open) != 1 || open[0].Variant != types.AlertServerUnreachable {
		t.Fatalf("open alerts = %+v, want one ServerUnreachable", open)
	}

	// A second failing pass does not duplicate the alert.
	m.pollServer(context.Background(), server)
	if open = unresolvedAlerts(t, db); len(open) != 1 {
		t.Errorf("open alerts after repeat failure = %d, want 1", len(open))
	}

	// The server comes back: status flips to Ok and the alert resolves.
	stub.failAll.Store(false)
	if !m.pollServer(context.Background(), server) {
		t.Error("pollServer = false, want reachable")
	}
	if got := m.cache.ServerStatus(server.ID).State; got != types.ServerOk {
		t.Errorf("state = %q, want Ok", got)
	}
	if open = unresolvedAlerts(t, db); len(open) != 0 {
		t.Errorf("open alerts after recovery = %+v, want none", open)
	}

	all, err := db.ListAlerts(store.AlertQuery{Limit: 100})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(all) != 1 || !all[0].Resolved || all[0].ResolvedTS.IsZero() {
		t.Errorf("alert history = %+v, want one resolved stamped alert", all)
	}
}
