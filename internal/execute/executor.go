// Package execute runs the operation side of the API: every execution
// resolves a target, takes its action lock, records an Update, and drives
// the target's agent.
package execute

import (
	"context"
	"time"

	"github.com/convoy-ops/convoy/internal/actionstate"
	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/metrics"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
	"github.com/convoy-ops/convoy/internal/updates"
)

// SyncEngine is the sync side of execution, implemented by the syncer and
// injected to break the package cycle (the syncer deploys through the
// executor).
type SyncEngine interface {
	ExecuteSync(ctx context.Context, sync *types.ResourceSync, u *types.Update)
	RefreshSync(ctx context.Context, sync *types.ResourceSync, u *types.Update)
}

// Executor dispatches executions to their handlers.
type Executor struct {
	db       *store.DB
	cfg      *config.Config
	auth     *auth.Service
	state    *actionstate.Registry
	pipeline *updates.Pipeline
	pulls    *agent.PullCache
	syncs    SyncEngine
	log      *logging.Logger
}

// New wires the executor. The sync engine is attached afterwards with
// SetSyncEngine.
func New(db *store.DB, cfg *config.Config, authSvc *auth.Service, state *actionstate.Registry, pipeline *updates.Pipeline, log *logging.Logger) *Executor {
	return &Executor{
		db:       db,
		cfg:      cfg,
		auth:     authSvc,
		state:    state,
		pipeline: pipeline,
		pulls:    agent.NewPullCache(),
		log:      log.Component("execute"),
	}
}

// SetSyncEngine attaches the sync engine after construction.
func (e *Executor) SetSyncEngine(s SyncEngine) { e.syncs = s }

// Execute runs one execution to completion and returns its Update. Errors
// occurring before the Update exists (unknown target, permission denied)
// are returned as errors; everything after is recorded as failed logs on
// the Update, which is still returned with a nil error.
func (e *Executor) Execute(ctx context.Context, user *types.User, exec types.Execution) (*types.Update, error) {
	target, flag, err := e.resolveTarget(exec)
	if err != nil {
		return nil, err
	}
	if err := e.auth.CheckPermission(user, target, types.LevelExecute); err != nil {
		return nil, err
	}

	u := e.pipeline.Make(target, exec.Operation(), user.ID)
	if _, err := e.pipeline.Add(u); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.ObserveExecution(string(u.Operation), time.Since(start), u.Success)
	}()

	if flag != "" {
		guard, err := e.state.Acquire(target, flag)
		if err != nil {
			u.PushError("acquire lock", err)
			e.finish(u, nil)
			return u, nil
		}
		defer guard.Close()
	}

	interp, err := NewInterpolator(e.db)
	if err != nil {
		u.PushError("load variables", err)
		e.finish(u, nil)
		return u, nil
	}

	e.run(ctx, exec, u, interp)
	e.finish(u, interp)
	return u, nil
}

// finish redacts, finalizes, and persists the update.
func (e *Executor) finish(u *types.Update, interp *Interpolator) {
	if interp != nil {
		interp.Redact(u)
	}
	if err := e.pipeline.Finalize(u); err != nil {
		e.log.Error("finalize update failed", "update", u.ID, "error", err.Error())
	}
}

// run calls the handler for the execution variant. Handlers append logs to
// the update; they do not return errors.
func (e *Executor) run(ctx context.Context, exec types.Execution, u *types.Update, interp *Interpolator) {
	switch exec.Type {
	case types.ExecRunProcedure:
		e.runProcedure(ctx, exec.Params.Procedure, u)
	case types.ExecRunBuild:
		e.runBuild(ctx, exec.Params.Build, u, interp)
	case types.ExecDeploy:
		e.deploy(ctx, exec.Params.Deployment, u, interp)
	case types.ExecStartContainer:
		e.startContainer(ctx, exec.Params.Deployment, u)
	case types.ExecStopContainer:
		e.stopContainer(ctx, exec.Params.Deployment, exec.Params.StopTime, u)
	case types.ExecStopAllContainers:
		e.stopAllContainers(ctx, exec.Params.Server, exec.Params.StopTime, u)
	case types.ExecRemoveContainer:
		e.removeContainer(ctx, exec.Params.Deployment, exec.Params.StopTime, u)
	case types.ExecCloneRepo:
		e.cloneRepo(ctx, exec.Params.Repo, u, interp)
	case types.ExecPullRepo:
		e.pullRepo(ctx, exec.Params.Repo, u, interp)
	case types.ExecBuildRepo:
		e.buildRepo(ctx, exec.Params.Repo, u, interp)
	case types.ExecRunSync:
		e.runSync(ctx, exec.Params.Sync, u)
	case types.ExecRefreshSync:
		e.refreshSync(ctx, exec.Params.Sync, u)
	case types.ExecDeployStack:
		e.deployStack(ctx, exec.Params.Stack, u, interp)
	case types.ExecDestroyStack:
		e.destroyStack(ctx, exec.Params.Stack, u, interp)
	case types.ExecLaunchServer:
		e.launchServer(exec.Params.ServerTemplate, u)
	case types.ExecPruneNetworks:
		e.prune(ctx, exec.Params.Server, u, pruneNetworks)
	case types.ExecPruneImages:
		e.prune(ctx, exec.Params.Server, u, pruneImages)
	case types.ExecPruneContainers:
		e.prune(ctx, exec.Params.Server, u, pruneContainers)
	case types.ExecRunAction:
		e.runAction(ctx, exec.Params.Action, u, interp)
	case types.ExecSleep:
		e.sleep(ctx, exec.Params.DurationMS, u)
	case types.ExecNone:
		u.PushLog(types.SimpleLog("none", "nothing to do"))
	default:
		u.PushError("dispatch", oops.New(oops.InvalidConfig, "unknown execution type %q", exec.Type))
	}
}

// resolveTarget maps an execution to the resource it locks and acts on.
func (e *Executor) resolveTarget(exec types.Execution) (types.ResourceTarget, actionstate.Flag, error) {
	switch exec.Type {
	case types.ExecRunProcedure:
		p, err := e.db.Procedures.Get(exec.Params.Procedure)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return p.Target(), actionstate.Running, nil
	case types.ExecRunBuild:
		b, err := e.db.Builds.Get(exec.Params.Build)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return b.Target(), actionstate.Building, nil
	case types.ExecDeploy:
		d, err := e.db.Deployments.Get(exec.Params.Deployment)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return d.Target(), actionstate.Deploying, nil
	case types.ExecStartContainer:
		d, err := e.db.Deployments.Get(exec.Params.Deployment)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return d.Target(), actionstate.Starting, nil
	case types.ExecStopContainer:
		d, err := e.db.Deployments.Get(exec.Params.Deployment)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return d.Target(), actionstate.Stopping, nil
	case types.ExecRemoveContainer:
		d, err := e.db.Deployments.Get(exec.Params.Deployment)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return d.Target(), actionstate.Removing, nil
	case types.ExecStopAllContainers:
		s, err := e.db.Servers.Get(exec.Params.Server)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return s.Target(), actionstate.Stopping, nil
	case types.ExecCloneRepo:
		r, err := e.db.Repos.Get(exec.Params.Repo)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return r.Target(), actionstate.Cloning, nil
	case types.ExecPullRepo:
		r, err := e.db.Repos.Get(exec.Params.Repo)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return r.Target(), actionstate.Pulling, nil
	case types.ExecBuildRepo:
		r, err := e.db.Repos.Get(exec.Params.Repo)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return r.Target(), actionstate.Building, nil
	case types.ExecRunSync, types.ExecRefreshSync:
		s, err := e.db.Syncs.Get(exec.Params.Sync)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return s.Target(), actionstate.Syncing, nil
	case types.ExecDeployStack:
		s, err := e.db.Stacks.Get(exec.Params.Stack)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return s.Target(), actionstate.Deploying, nil
	case types.ExecDestroyStack:
		s, err := e.db.Stacks.Get(exec.Params.Stack)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return s.Target(), actionstate.Destroying, nil
	case types.ExecLaunchServer:
		t, err := e.db.ServerTemplates.Get(exec.Params.ServerTemplate)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return t.Target(), actionstate.Launching, nil
	case types.ExecPruneNetworks, types.ExecPruneImages, types.ExecPruneContainers:
		s, err := e.db.Servers.Get(exec.Params.Server)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return s.Target(), actionstate.Pruning, nil
	case types.ExecRunAction:
		a, err := e.db.Actions.Get(exec.Params.Action)
		if err != nil {
			return types.ResourceTarget{}, "", err
		}
		return a.Target(), actionstate.Running, nil
	case types.ExecSleep, types.ExecNone:
		// Sleep and None hold no lock; Sleep paces procedures, None is
		// a placeholder child that must still finalize successful.
		return types.SystemTarget(), "", nil
	default:
		return types.ResourceTarget{}, "", oops.New(oops.InvalidConfig, "unknown execution type %q", exec.Type)
	}
}

// serverClient resolves a server reference and builds its agent client,
// rejecting disabled servers.
func (e *Executor) serverClient(serverID string) (*types.Server, *agent.Client, error) {
	if serverID == "" {
		return nil, nil, oops.New(oops.InvalidConfig, "no server attached")
	}
	server, err := e.db.Servers.Get(serverID)
	if err != nil {
		return nil, nil, err
	}
	if !server.Config.Enabled {
		return nil, nil, oops.New(oops.InvalidConfig, "server %q is disabled", server.Name)
	}
	return server, agent.ForServer(server), nil
}

// sleep pauses for the requested duration, honoring cancellation.
func (e *Executor) sleep(ctx context.Context, durationMS int64, u *types.Update) {
	d := time.Duration(durationMS) * time.Millisecond
	select {
	case <-time.After(d):
		u.PushLog(types.SimpleLog("sleep", "slept "+d.String()))
	case <-ctx.Done():
		u.PushError("sleep", ctx.Err())
	}
}
