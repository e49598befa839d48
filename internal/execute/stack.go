package execute

import (
	"context"
	"path/filepath"

	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

func (e *Executor) deployStack(ctx context.Context, stackID string, u *types.Update, interp *Interpolator) {
	e.stackOp(ctx, stackID, u, interp, true)
}

func (e *Executor) destroyStack(ctx context.Context, stackID string, u *types.Update, interp *Interpolator) {
	e.stackOp(ctx, stackID, u, interp, false)
}

func (e *Executor) stackOp(ctx context.Context, stackID string, u *types.Update, interp *Interpolator, up bool) {
	stack, err := e.db.Stacks.Get(stackID)
	if err != nil {
		u.PushError("resolve stack", err)
		return
	}
	_, client, err := e.serverClient(stack.Config.ServerID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}

	params, err := e.stackParams(ctx, stack, u, interp)
	if err != nil {
		u.PushError("resolve compose source", err)
		return
	}

	var logs []types.Log
	if up {
		logs, err = client.DeployStack(ctx, *params)
	} else {
		logs, err = client.DestroyStack(ctx, *params)
	}
	u.Logs = append(u.Logs, logs...)
	if err != nil {
		u.PushError("run compose", err)
	}
}

// stackParams materializes the stack's compose source into agent params.
// Git sources are cloned on the host first, so the compose run sees the
// repo's current branch tip.
func (e *Executor) stackParams(ctx context.Context, stack *types.Stack, u *types.Update, interp *Interpolator) (*agent.StackParams, error) {
	params := &agent.StackParams{
		Name:        stack.Name,
		Environment: interp.ApplyEnv(stack.Config.Environment),
		ExtraArgs:   stack.Config.ExtraArgs,
	}
	src := stack.Config.Source
	switch src.Type {
	case "UiDefined":
		params.FileContents = interp.Apply(src.Params.FileContents)
	case "Files":
		params.RunDirectory = src.Params.RunDirectory
		params.FilePaths = src.Params.FilePaths
	case "Git":
		_, client, err := e.serverClient(stack.Config.ServerID)
		if err != nil {
			return nil, err
		}
		token := ""
		if src.Params.GitAccount != "" {
			token = e.gitToken("github.com", src.Params.GitAccount, interp)
		}
		// Stack clones live under the configured stack dir on the host,
		// keyed by stack name, so repeated deploys reuse one checkout.
		clonePath := filepath.Join(e.cfg.StackDir, stack.Name)
		logs, err := client.CloneRepo(ctx, agent.RepoParams{
			Name:   stack.Name,
			Repo:   interp.Apply(src.Params.Repo),
			Branch: src.Params.Branch,
			Token:  token,
			Path:   clonePath,
		})
		u.Logs = append(u.Logs, logs...)
		if err != nil {
			return nil, err
		}
		e.save(u, interp)
		params.RunDirectory = filepath.Join(clonePath, src.Params.RunDirectory)
		params.FilePaths = src.Params.FilePaths
	default:
		return nil, oops.New(oops.InvalidConfig, "unknown stack source type %q", src.Type)
	}
	return params, nil
}
