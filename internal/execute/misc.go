package execute

import (
	"context"
	"fmt"

	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// runSync hands the execution to the sync engine, which owns the diff and
// apply machinery.
func (e *Executor) runSync(ctx context.Context, syncID string, u *types.Update) {
	if e.syncs == nil {
		u.PushError("run sync", oops.New(oops.Internal, "sync engine not attached"))
		return
	}
	sync, err := e.db.Syncs.Get(syncID)
	if err != nil {
		u.PushError("resolve sync", err)
		return
	}
	e.syncs.ExecuteSync(ctx, sync, u)
}

// refreshSync re-plans the sync's pending diff without applying it.
func (e *Executor) refreshSync(ctx context.Context, syncID string, u *types.Update) {
	if e.syncs == nil {
		u.PushError("refresh sync", oops.New(oops.Internal, "sync engine not attached"))
		return
	}
	sync, err := e.db.Syncs.Get(syncID)
	if err != nil {
		u.PushError("resolve sync", err)
		return
	}
	e.syncs.RefreshSync(ctx, sync, u)
}

// runAction executes the action's script through its server's shell.
func (e *Executor) runAction(ctx context.Context, actionID string, u *types.Update, interp *Interpolator) {
	action, err := e.db.Actions.Get(actionID)
	if err != nil {
		u.PushError("resolve action", err)
		return
	}
	if action.Config.FileContents == "" {
		u.PushError("resolve action", oops.New(oops.InvalidConfig, "action %q has no script", action.Name))
		return
	}
	_, client, err := e.serverClient(action.Config.ServerID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}

	log, err := client.RunCommand(ctx, agent.RunCommandParams{
		Command: interp.Apply(action.Config.FileContents),
		Shell:   action.Config.Shell,
	})
	if err != nil {
		u.PushError("run action", err)
		return
	}
	u.PushLog(log)
}

// launchServer creates a Server resource shaped by a template. The server
// is created disabled with an empty address; an operator points it at the
// provisioned host before enabling it.
func (e *Executor) launchServer(templateID string, u *types.Update) {
	tmpl, err := e.db.ServerTemplates.Get(templateID)
	if err != nil {
		u.PushError("resolve template", err)
		return
	}

	name := fmt.Sprintf("%s-%s", tmpl.Name, u.ID[:8])
	server, err := e.db.Servers.Create(name, "launched from template "+tmpl.Name, tmpl.Tags, types.ServerConfig{
		Region:  tmpl.Config.Params.Region,
		Enabled: false,
	})
	if err != nil {
		u.PushError("create server", err)
		return
	}
	u.PushLog(types.SimpleLog("launch server", fmt.Sprintf("created server %s (%s), set its address and enable it once the host is provisioned", server.Name, server.ID)))
}
