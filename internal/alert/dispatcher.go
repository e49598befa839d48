package alert

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// sendTimeout bounds one delivery attempt per alerter.
const sendTimeout = 30 * time.Second

// Dispatcher fans alerts out to every enabled alerter whose filters match.
// Delivery failures are logged, never propagated; alerting must not block
// the monitor or executions.
type Dispatcher struct {
	db  *store.DB
	log *logging.Logger
}

// NewDispatcher wires the dispatcher over the store.
func NewDispatcher(db *store.DB, log *logging.Logger) *Dispatcher {
	return &Dispatcher{db: db, log: log.Component("alerts")}
}

// Dispatch sends the alert to all matching alerters in parallel and waits
// for every delivery attempt to finish.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *types.Alert) {
	alerters, err := d.db.Alerters.List(types.Query{})
	if err != nil {
		d.log.Error("list alerters failed", "error", err.Error())
		return
	}

	var wg sync.WaitGroup
	for _, alerter := range alerters {
		if !matches(&alerter.Config, alert) {
			continue
		}
		wg.Add(1)
		go func(a *types.Alerter) {
			defer wg.Done()
			d.send(ctx, a, alert)
		}(alerter)
	}
	wg.Wait()
}

// SendTest delivers a synthetic test alert through one alerter, bypassing
// its filters, and returns the delivery error to the caller.
func (d *Dispatcher) SendTest(ctx context.Context, alerterID string) error {
	alerter, err := d.db.Alerters.Get(alerterID)
	if err != nil {
		return err
	}
	sink, err := SinkFor(alerter.Config.Endpoint)
	if err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	test := &types.Alert{
		TS:       time.Now().UTC(),
		Severity: types.SeverityOk,
		Target:   alerter.Target(),
		Variant:  types.AlertTest,
		Data:     types.AlertData{Name: alerter.Name},
	}
	if err := sink.Send(sctx, test); err != nil {
		return oops.Wrap(oops.Upstream, err, "test alert via %s failed", sink.Name())
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, alerter *types.Alerter, alert *types.Alert) {
	sink, err := SinkFor(alerter.Config.Endpoint)
	if err != nil {
		d.log.Error("alerter misconfigured", "alerter", alerter.Name, "error", err.Error())
		return
	}

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := sink.Send(sctx, alert); err != nil {
		d.log.Error("alert delivery failed",
			"alerter", alerter.Name,
			"provider", sink.Name(),
			"variant", string(alert.Variant),
			"error", err.Error(),
		)
	}
}

// matches applies an alerter's enabled flag and variant/resource filters.
func matches(cfg *types.AlerterConfig, alert *types.Alert) bool {
	if !cfg.Enabled {
		return false
	}
	if len(cfg.AlertTypes) > 0 && !slices.Contains(cfg.AlertTypes, alert.Variant) {
		return false
	}
	if len(cfg.ResourceWhitelist) > 0 && !slices.Contains(cfg.ResourceWhitelist, alert.Target.ID) {
		return false
	}
	if slices.Contains(cfg.ResourceBlacklist, alert.Target.ID) {
		return false
	}
	return true
}
