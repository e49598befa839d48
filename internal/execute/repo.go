package execute

import (
	"context"
	"time"

	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/types"
)

func (e *Executor) cloneRepo(ctx context.Context, repoID string, u *types.Update, interp *Interpolator) {
	e.repoOp(ctx, repoID, u, interp, func(client *agent.Client, params agent.RepoParams) ([]types.Log, error) {
		return client.CloneRepo(ctx, params)
	})
}

func (e *Executor) pullRepo(ctx context.Context, repoID string, u *types.Update, interp *Interpolator) {
	e.repoOp(ctx, repoID, u, interp, func(client *agent.Client, params agent.RepoParams) ([]types.Log, error) {
		return client.PullRepo(ctx, params)
	})
}

// buildRepo re-clones from scratch, so the on-clone command runs against a
// clean tree.
func (e *Executor) buildRepo(ctx context.Context, repoID string, u *types.Update, interp *Interpolator) {
	e.cloneRepo(ctx, repoID, u, interp)
}

// repoOp runs one clone/pull against the repo's server and refreshes the
// repo's info cache on success.
func (e *Executor) repoOp(ctx context.Context, repoID string, u *types.Update, interp *Interpolator, op func(*agent.Client, agent.RepoParams) ([]types.Log, error)) {
	repo, err := e.db.Repos.Get(repoID)
	if err != nil {
		u.PushError("resolve repo", err)
		return
	}
	_, client, err := e.serverClient(repo.Config.ServerID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}

	token := e.gitToken(repo.Config.GitProvider, repo.Config.GitAccount, interp)

	logs, err := op(client, agent.RepoParams{
		Name:    repo.Name,
		Repo:    interp.Apply(repo.Config.Repo),
		Branch:  repo.Config.Branch,
		Token:   token,
		Path:    repo.Config.Path,
		OnClone: interp.Apply(repo.Config.OnClone),
		OnPull:  interp.Apply(repo.Config.OnPull),
	})
	u.Logs = append(u.Logs, logs...)
	if err != nil {
		u.PushError("run git operation", err)
		return
	}

	if err := e.db.Repos.UpdateInfo(repo.ID, types.RepoInfo{
		LastPulledAt: time.Now().UTC(),
		Cloned:       true,
	}); err != nil {
		u.PushError("store repo info", err)
	}
}
