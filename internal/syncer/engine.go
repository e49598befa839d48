package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// deployPause spaces out the deploy pass so a sync touching many
// deployments does not slam every agent at once.
const deployPause = time.Second

// Deployer runs child executions for the deploy-on-sync pass. Implemented
// by the executor; injected to break the package cycle.
type Deployer interface {
	Execute(ctx context.Context, user *types.User, exec types.Execution) (*types.Update, error)
}

// Engine runs resource syncs: materialize, parse, plan, apply, deploy.
type Engine struct {
	db       *store.DB
	cfg      *config.Config
	deployer Deployer
	log      *logging.Logger

	mu      sync.Mutex
	running map[string]*sync.Mutex
}

// New wires the engine.
func New(db *store.DB, cfg *config.Config, deployer Deployer, log *logging.Logger) *Engine {
	return &Engine{
		db:       db,
		cfg:      cfg,
		deployer: deployer,
		log:      log.Component("syncer"),
		running:  make(map[string]*sync.Mutex),
	}
}

// mutexFor returns the per-sync mutex, creating it lazily. The mutex
// serializes runs and previews of one sync, protecting its clone dir.
func (e *Engine) mutexFor(syncID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.running[syncID]
	if !ok {
		m = &sync.Mutex{}
		e.running[syncID] = m
	}
	return m
}

// ExecuteSync runs one sync to completion, recording progress on the
// update. Failures land as error logs; the sync's info cache carries the
// pending error for the UI.
func (e *Engine) ExecuteSync(ctx context.Context, syncRes *types.ResourceSync, u *types.Update) {
	mu := e.mutexFor(syncRes.ID)
	mu.Lock()
	defer mu.Unlock()

	plan, err := e.plan(ctx, syncRes)
	if err != nil {
		u.PushError("plan sync", err)
		e.storeInfo(syncRes, types.SyncInfo{PendingError: err.Error()})
		return
	}
	u.PushLog(types.SimpleLog("plan sync", fmt.Sprintf(
		"%d resource diffs, %d variable diffs, %d group diffs", len(plan.Diffs), len(plan.Variables), len(plan.Groups))))

	applied, err := e.applyPlan(plan, u)
	if err != nil {
		u.PushError("apply sync", err)
		e.storeInfo(syncRes, types.SyncInfo{PendingError: err.Error(), ResourceUpdates: applied})
		return
	}

	if syncRes.Config.DeployOnSync {
		e.deployPass(ctx, plan, u)
	}

	e.storeInfo(syncRes, types.SyncInfo{
		LastSyncTS:      time.Now().UTC(),
		PendingHash:     plan.Hash,
		ResourceUpdates: applied,
	})
}

// RefreshSync re-materializes and re-plans the sync, storing the fresh
// pending hash without applying anything. The last applied timestamp is
// kept so the UI still shows when the sync last ran.
func (e *Engine) RefreshSync(ctx context.Context, syncRes *types.ResourceSync, u *types.Update) {
	mu := e.mutexFor(syncRes.ID)
	mu.Lock()
	defer mu.Unlock()

	plan, err := e.plan(ctx, syncRes)
	if err != nil {
		u.PushError("plan sync", err)
		e.storeInfo(syncRes, types.SyncInfo{LastSyncTS: syncRes.Info.LastSyncTS, PendingError: err.Error()})
		return
	}
	u.PushLog(types.SimpleLog("refresh sync", fmt.Sprintf(
		"%d resource diffs, %d variable diffs, %d group diffs", len(plan.Diffs), len(plan.Variables), len(plan.Groups))))

	e.storeInfo(syncRes, types.SyncInfo{
		LastSyncTS:  syncRes.Info.LastSyncTS,
		PendingHash: plan.Hash,
	})
}

// PreviewSync computes the plan without applying anything.
func (e *Engine) PreviewSync(ctx context.Context, syncRes *types.ResourceSync) (*Plan, error) {
	mu := e.mutexFor(syncRes.ID)
	mu.Lock()
	defer mu.Unlock()
	return e.plan(ctx, syncRes)
}

// Drop forgets a deleted sync's mutex.
func (e *Engine) Drop(syncID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, syncID)
}

func (e *Engine) plan(ctx context.Context, syncRes *types.ResourceSync) (*Plan, error) {
	files, hash, err := e.materialize(ctx, syncRes)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocs(files)
	if err != nil {
		return nil, err
	}
	return e.buildPlan(doc, &syncRes.Config, hash)
}

// deployEntry is one deploy-pass candidate with its resolved dependencies.
type deployEntry struct {
	diff  ResourceDiff
	after []string
}

// deployPass redeploys every deployment and stack whose config changed or
// that carries the deploy flag. Candidates run in rounds ordered by their
// "after" dependencies, pausing between rounds; the pass aborts on the
// first round with a failure. Each child has its own Update with the full
// agent logs.
func (e *Engine) deployPass(ctx context.Context, plan *Plan, u *types.Update) {
	operator, err := e.db.GetUser(u.Operator)
	if err != nil {
		u.PushError("deploy pass", err)
		return
	}

	pending, names, err := e.deployCandidates(plan)
	if err != nil {
		u.PushError("deploy pass", err)
		return
	}

	done := map[string]bool{}
	firstRound := true
	for len(pending) > 0 {
		var round, rest []deployEntry
		for _, en := range pending {
			ready := true
			for _, dep := range en.after {
				if names[dep] && !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				round = append(round, en)
			} else {
				rest = append(rest, en)
			}
		}
		if len(round) == 0 {
			u.PushError("deploy pass", oops.New(oops.InvalidConfig, "dependency cycle among %d undeployed resources", len(pending)))
			return
		}

		if !firstRound {
			select {
			case <-time.After(deployPause):
			case <-ctx.Done():
				u.PushError("deploy pass", ctx.Err())
				return
			}
		}
		firstRound = false

		failed := false
		for _, en := range round {
			var exec types.Execution
			switch en.diff.Type {
			case types.ResourceDeployment:
				exec = types.Execution{Type: types.ExecDeploy, Params: types.ExecutionParams{Deployment: en.diff.Name}}
			case types.ResourceStack:
				exec = types.Execution{Type: types.ExecDeployStack, Params: types.ExecutionParams{Stack: en.diff.Name}}
			}
			done[en.diff.Name] = true

			child, err := e.deployer.Execute(ctx, operator, exec)
			if err != nil {
				u.PushError("deploy pass", fmt.Errorf("%s %s: %w", en.diff.Type, en.diff.Name, err))
				failed = true
				continue
			}
			log := types.SimpleLog("deploy pass", fmt.Sprintf("%s %s: update %s", en.diff.Type, en.diff.Name, child.ID))
			log.Success = child.Success
			if !child.Success {
				log.Stderr = fmt.Sprintf("deploy failed, see update %s", child.ID)
				failed = true
			}
			u.PushLog(log)
		}
		if failed {
			if len(rest) > 0 {
				u.PushError("deploy pass", fmt.Errorf("aborted with %d resources undeployed", len(rest)))
			}
			return
		}
		pending = rest
	}
}

// deployCandidates collects the deployments and stacks the deploy pass
// covers, with their dependencies read from the just-applied configs.
func (e *Engine) deployCandidates(plan *Plan) ([]deployEntry, map[string]bool, error) {
	var pending []deployEntry
	names := map[string]bool{}
	for _, diff := range plan.Diffs {
		if diff.Kind == DiffDelete {
			continue
		}
		if diff.Type != types.ResourceDeployment && diff.Type != types.ResourceStack {
			continue
		}
		if !diff.Deploy && len(diff.Patch) == 0 && diff.Kind != DiffCreate {
			continue
		}
		after, err := e.afterDeps(diff)
		if err != nil {
			return nil, nil, err
		}
		pending = append(pending, deployEntry{diff: diff, after: after})
		names[diff.Name] = true
	}
	return pending, names, nil
}

func (e *Engine) afterDeps(diff ResourceDiff) ([]string, error) {
	switch diff.Type {
	case types.ResourceDeployment:
		d, err := e.db.Deployments.GetByName(diff.Name)
		if err != nil {
			return nil, err
		}
		return d.Config.After, nil
	case types.ResourceStack:
		s, err := e.db.Stacks.GetByName(diff.Name)
		if err != nil {
			return nil, err
		}
		return s.Config.After, nil
	}
	return nil, nil
}

// storeInfo overwrites the sync's info cache; failures only log.
func (e *Engine) storeInfo(syncRes *types.ResourceSync, info types.SyncInfo) {
	if err := e.db.Syncs.UpdateInfo(syncRes.ID, info); err != nil {
		e.log.Error("store sync info failed", "sync", syncRes.Name, "error", err.Error())
	}
}
