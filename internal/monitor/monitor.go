// Package monitor polls every enabled server's agent on an interval,
// grades health against per-server thresholds, and opens or resolves
// alerts as conditions rise and clear.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/alert"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/metrics"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// Monitor runs the periodic polling pass.
type Monitor struct {
	db         *store.DB
	cache      *StatusCache
	dispatcher *alert.Dispatcher
	log        *logging.Logger
	interval   time.Duration
}

// New wires the monitor.
func New(db *store.DB, cache *StatusCache, dispatcher *alert.Dispatcher, log *logging.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		db:         db,
		cache:      cache,
		dispatcher: dispatcher,
		log:        log.Component("monitor"),
		interval:   interval,
	}
}

// Run ticks until the context is cancelled. One pass runs immediately on
// start so status is populated before the first interval elapses.
func (m *Monitor) Run(ctx context.Context) {
	m.Tick(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick polls all servers once, in parallel.
func (m *Monitor) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.MonitorTickDuration.Observe(time.Since(start).Seconds())
	}()

	servers, err := m.db.Servers.List(types.Query{})
	if err != nil {
		m.log.Error("list servers failed", "error", err.Error())
		return
	}

	var wg sync.WaitGroup
	var unreachable sync.Map
	for _, server := range servers {
		wg.Add(1)
		go func(s *types.Server) {
			defer wg.Done()
			if !m.pollServer(ctx, s) {
				unreachable.Store(s.ID, struct{}{})
			}
		}(server)
	}
	wg.Wait()

	count := 0
	unreachable.Range(func(_, _ any) bool { count++; return true })
	metrics.ServersUnreachable.Set(float64(count))

	if open, err := m.db.ListAlerts(store.AlertQuery{Unresolved: true, Limit: 1 << 30}); err == nil {
		metrics.OpenAlerts.Set(float64(len(open)))
	}
}

// pollServer performs one server's pass. Returns false when the server is
// enabled but its agent could not be reached.
func (m *Monitor) pollServer(ctx context.Context, server *types.Server) bool {
	if !server.Config.Enabled {
		m.cache.SetServerStatus(&types.ServerStatus{
			ServerID: server.ID,
			State:    types.ServerDisabled,
			PolledAt: time.Now().UTC(),
		})
		m.markDeployments(server.ID, types.DeploymentUnknown)
		return true
	}

	client := agent.ForServer(server)
	version, err := client.GetVersion(ctx)
	if err != nil {
		m.cache.SetServerStatus(&types.ServerStatus{
			ServerID: server.ID,
			State:    types.ServerNotOk,
			Err:      err.Error(),
			PolledAt: time.Now().UTC(),
		})
		m.markDeployments(server.ID, types.DeploymentUnknown)
		m.openAlert(ctx, server, types.AlertServerUnreachable, types.SeverityCritical, types.AlertData{
			Name:   server.Name,
			Region: server.Config.Region,
			Err:    err.Error(),
		}, server.Config.SendUnreachableAlerts)
		return false
	}
	status := &types.ServerStatus{
		ServerID: server.ID,
		State:    types.ServerOk,
		Version:  version,
		PolledAt: time.Now().UTC(),
	}

	// A stats failure gets the same treatment as a version failure: the
	// agent answered once but cannot report state, so nothing further is
	// queried this tick.
	stats, err := client.GetSystemStats(ctx)
	if err != nil {
		m.cache.SetServerStatus(&types.ServerStatus{
			ServerID: server.ID,
			State:    types.ServerNotOk,
			Version:  version,
			Err:      err.Error(),
			PolledAt: time.Now().UTC(),
		})
		m.markDeployments(server.ID, types.DeploymentUnknown)
		m.openAlert(ctx, server, types.AlertServerUnreachable, types.SeverityCritical, types.AlertData{
			Name:   server.Name,
			Region: server.Config.Region,
			Err:    err.Error(),
		}, server.Config.SendUnreachableAlerts)
		return false
	}
	m.resolveAlert(ctx, server, types.AlertServerUnreachable, server.Config.SendUnreachableAlerts)

	status.Stats = stats
	status.Health = m.gradeHealth(ctx, server, stats)
	if err := m.db.RecordStats(server.ID, *stats); err != nil {
		m.log.Error("record stats failed", "server", server.Name, "error", err.Error())
	}

	containers, err := client.ListContainers(ctx)
	if err != nil {
		m.log.Error("container poll failed", "server", server.Name, "error", err.Error())
	} else {
		m.cache.SetContainers(server.ID, containers)
		m.trackDeployments(ctx, server, containers)
	}

	m.cache.SetServerStatus(status)
	return true
}

// gradeHealth compares stats against the server's thresholds, opening and
// resolving threshold alerts as dimensions rise and clear.
func (m *Monitor) gradeHealth(ctx context.Context, server *types.Server, stats *types.SystemStats) *types.ServerHealth {
	cfg := &server.Config
	health := &types.ServerHealth{
		CPU: grade(stats.CPUPercent, threshold(cfg.CPUWarning, types.DefaultCPUWarning), threshold(cfg.CPUCritical, types.DefaultCPUCritical)),
		Mem: grade(stats.MemPercent(), threshold(cfg.MemWarning, types.DefaultMemWarning), threshold(cfg.MemCritical, types.DefaultMemCritical)),
	}

	m.thresholdAlert(ctx, server, types.AlertServerCPU, health.CPU, types.AlertData{
		Name:    server.Name,
		Percent: stats.CPUPercent,
	}, cfg.SendCPUAlerts)
	m.thresholdAlert(ctx, server, types.AlertServerMem, health.Mem, types.AlertData{
		Name:    server.Name,
		Percent: stats.MemPercent(),
	}, cfg.SendMemAlerts)

	// Disks grade individually; the single disk alert tracks the worst one.
	worst := types.SeverityOk
	var worstDisk types.DiskUsage
	if len(stats.Disks) > 0 {
		health.Disks = make(map[string]types.Severity, len(stats.Disks))
		for _, disk := range stats.Disks {
			sev := grade(disk.Percent(), threshold(cfg.DiskWarning, types.DefaultDiskWarning), threshold(cfg.DiskCritical, types.DefaultDiskCritical))
			health.Disks[disk.Path] = sev
			if sev.Rank() > worst.Rank() {
				worst = sev
				worstDisk = disk
			}
		}
	}
	m.thresholdAlert(ctx, server, types.AlertServerDisk, worst, types.AlertData{
		Name:    server.Name,
		Percent: worstDisk.Percent(),
		Path:    worstDisk.Path,
	}, cfg.SendDiskAlerts)

	// Components grade on temperature as a percentage of their critical
	// point; the single temp alert tracks the hottest one.
	worstTemp := types.SeverityOk
	var worstLabel string
	var worstPct float64
	if len(stats.Components) > 0 {
		health.Temps = make(map[string]types.Severity, len(stats.Components))
		for _, comp := range stats.Components {
			sev := types.SeverityOk
			pct := 0.0
			if comp.Critical > 0 {
				pct = comp.Temp / comp.Critical * 100
				sev = grade(pct, threshold(cfg.TempWarning, types.DefaultTempWarning), threshold(cfg.TempCritical, types.DefaultTempCritical))
			}
			health.Temps[comp.Label] = sev
			if sev.Rank() > worstTemp.Rank() || (sev == worstTemp && pct > worstPct) {
				worstTemp = sev
				worstLabel = comp.Label
				worstPct = pct
			}
		}
	}
	m.thresholdAlert(ctx, server, types.AlertServerTemp, worstTemp, types.AlertData{
		Name:    server.Name,
		Percent: worstPct,
		Path:    worstLabel,
	}, cfg.SendTempAlerts)
	return health
}

// trackDeployments maps containers onto deployments on the server and
// fires one-shot state-change alerts.
func (m *Monitor) trackDeployments(ctx context.Context, server *types.Server, containers []types.ContainerSummary) {
	deployments, err := m.db.Deployments.List(types.Query{})
	if err != nil {
		m.log.Error("list deployments failed", "error", err.Error())
		return
	}

	byName := make(map[string]string, len(containers))
	for _, c := range containers {
		byName[c.Name] = c.State
	}

	for _, d := range deployments {
		if d.Config.ServerID != server.ID {
			continue
		}
		state := types.ParseDeploymentState(byName[d.Name])
		prev := m.cache.SetDeploymentState(d.ID, state)
		if prev == state || prev == types.DeploymentUnknown || prev == types.DeploymentNotDeployed {
			continue
		}
		if !d.Config.SendAlerts {
			continue
		}
		m.stateChangeAlert(ctx, d.Target(), types.AlertData{
			Name: d.Name,
			From: string(prev),
			To:   string(state),
		})
	}
}

// thresholdAlert opens, escalates, or resolves one dimension's alert.
func (m *Monitor) thresholdAlert(ctx context.Context, server *types.Server, variant types.AlertVariant, sev types.Severity, data types.AlertData, send bool) {
	if sev == types.SeverityOk {
		m.resolveAlert(ctx, server, variant, send)
		return
	}
	m.openAlert(ctx, server, variant, sev, data, send)
}

func (m *Monitor) openAlert(ctx context.Context, server *types.Server, variant types.AlertVariant, sev types.Severity, data types.AlertData, send bool) {
	a := &types.Alert{
		Severity: sev,
		Target:   server.Target(),
		Variant:  variant,
		Data:     data,
	}
	opened, superseded, created, err := m.db.OpenAlert(a)
	if err != nil {
		m.log.Error("open alert failed", "server", server.Name, "variant", string(variant), "error", err.Error())
		return
	}
	if !send {
		return
	}
	if superseded != nil {
		m.dispatcher.Dispatch(ctx, superseded)
	}
	if created {
		m.dispatcher.Dispatch(ctx, opened)
	}
}

func (m *Monitor) resolveAlert(ctx context.Context, server *types.Server, variant types.AlertVariant, send bool) {
	resolved, err := m.db.ResolveAlert(server.Target(), variant)
	if err != nil {
		m.log.Error("resolve alert failed", "server", server.Name, "variant", string(variant), "error", err.Error())
		return
	}
	if resolved != nil && send {
		m.dispatcher.Dispatch(ctx, resolved)
	}
}

// stateChangeAlert persists and sends a one-shot alert; state changes have
// no open/resolved lifecycle.
func (m *Monitor) stateChangeAlert(ctx context.Context, target types.ResourceTarget, data types.AlertData) {
	a := &types.Alert{
		Severity: types.SeverityWarning,
		Target:   target,
		Variant:  types.AlertContainerStateChange,
		Data:     data,
	}
	opened, _, created, err := m.db.OpenAlert(a)
	if err != nil {
		m.log.Error("open state change alert failed", "deployment", data.Name, "error", err.Error())
		return
	}
	if !created {
		return
	}
	if _, err := m.db.ResolveAlert(target, types.AlertContainerStateChange); err != nil {
		m.log.Error("resolve state change alert failed", "deployment", data.Name, "error", err.Error())
	}
	m.dispatcher.Dispatch(ctx, opened)
}

func (m *Monitor) markDeployments(serverID string, state types.DeploymentState) {
	deployments, err := m.db.Deployments.List(types.Query{})
	if err != nil {
		return
	}
	for _, d := range deployments {
		if d.Config.ServerID == serverID {
			m.cache.SetDeploymentState(d.ID, state)
		}
	}
}

// grade maps a measured percentage onto a severity using the warning and
// critical thresholds.
func grade(value, warning, critical float64) types.Severity {
	switch {
	case value >= critical:
		return types.SeverityCritical
	case value >= warning:
		return types.SeverityWarning
	default:
		return types.SeverityOk
	}
}

// threshold substitutes the default when the configured value is zero.
func threshold(configured, def float64) float64 {
	if configured <= 0 {
		return def
	}
	return configured
}
