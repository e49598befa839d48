package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// Pruner runs the daily maintenance pass: dropping aged stats samples and
// resolved alerts, and image-pruning servers that opted in.
type Pruner struct {
	db            *store.DB
	log           *logging.Logger
	keepStatsFor  time.Duration
	keepAlertsFor time.Duration
	cron          *cron.Cron
}

// NewPruner wires the pruner; Start schedules it.
func NewPruner(db *store.DB, log *logging.Logger, keepStatsDays, keepAlertsDays int) *Pruner {
	return &Pruner{
		db:            db,
		log:           log.Component("pruner"),
		keepStatsFor:  time.Duration(keepStatsDays) * 24 * time.Hour,
		keepAlertsFor: time.Duration(keepAlertsDays) * 24 * time.Hour,
		cron:          cron.New(),
	}
}

// Start schedules the daily run. Stop the returned cron via Stop.
func (p *Pruner) Start(ctx context.Context) error {
	if _, err := p.cron.AddFunc("@daily", func() { p.RunOnce(ctx) }); err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for an in-flight run.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

// RunOnce performs one maintenance pass.
func (p *Pruner) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	if p.keepStatsFor > 0 {
		if n, err := p.db.PruneStats(now.Add(-p.keepStatsFor)); err != nil {
			p.log.Error("prune stats failed", "error", err.Error())
		} else if n > 0 {
			p.log.Info("pruned stats samples", "count", n)
		}
	}
	if p.keepAlertsFor > 0 {
		if n, err := p.db.PruneAlerts(now.Add(-p.keepAlertsFor)); err != nil {
			p.log.Error("prune alerts failed", "error", err.Error())
		} else if n > 0 {
			p.log.Info("pruned resolved alerts", "count", n)
		}
	}

	servers, err := p.db.Servers.List(types.Query{})
	if err != nil {
		p.log.Error("list servers failed", "error", err.Error())
		return
	}
	for _, server := range servers {
		if !server.Config.Enabled || !server.Config.AutoPrune {
			continue
		}
		client := agent.ForServer(server)
		if _, err := client.PruneImages(ctx); err != nil {
			p.log.Error("auto prune failed", "server", server.Name, "error", err.Error())
		} else {
			p.log.Info("auto pruned images", "server", server.Name)
		}
	}
}
