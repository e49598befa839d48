package syncer

import (
	"fmt"

	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// applyOrder is the dependency order for creates and updates; deletes run
// through it in reverse so nothing is removed while something later in the
// order still declares it.
var applyOrder = []types.ResourceType{
	types.ResourceServerTemplate,
	types.ResourceServer,
	types.ResourceAlerter,
	types.ResourceBuilder,
	types.ResourceRepo,
	types.ResourceBuild,
	types.ResourceDeployment,
	types.ResourceStack,
	types.ResourceProcedure,
	types.ResourceAction,
	types.ResourceResourceSync,
}

// applyPlan executes the plan, appending one log per change. Returns how
// many changes were applied; the first failure stops the run.
func (e *Engine) applyPlan(plan *Plan, u *types.Update) (int, error) {
	applied := 0

	for _, v := range plan.Variables {
		if err := e.applyVariable(v); err != nil {
			return applied, err
		}
		u.PushLog(types.SimpleLog("sync variables", fmt.Sprintf("%s variable %s", v.Kind, v.Variable.Name)))
		applied++
	}
	for _, g := range plan.Groups {
		if err := e.applyGroup(g); err != nil {
			return applied, err
		}
		u.PushLog(types.SimpleLog("sync user groups", fmt.Sprintf("%s user group %s", g.Kind, g.Name)))
		applied++
	}

	for _, typ := range applyOrder {
		for _, diff := range plan.Diffs {
			if diff.Type != typ || diff.Kind == DiffDelete {
				continue
			}
			changed, err := e.applyDiff(diff)
			if err != nil {
				return applied, err
			}
			if changed {
				u.PushLog(types.SimpleLog("sync resources", fmt.Sprintf("%s %s %s", diff.Kind, diff.Type, diff.Name)))
				applied++
			}
		}
	}

	for i := len(applyOrder) - 1; i >= 0; i-- {
		for _, diff := range plan.Diffs {
			if diff.Type != applyOrder[i] || diff.Kind != DiffDelete {
				continue
			}
			if _, err := e.applyDiff(diff); err != nil {
				return applied, err
			}
			u.PushLog(types.SimpleLog("sync resources", fmt.Sprintf("Delete %s %s", diff.Type, diff.Name)))
			applied++
		}
	}
	return applied, nil
}

// applyDiff routes one diff to its typed collection. Returns false when
// the diff carried nothing to change (deploy-only entries).
func (e *Engine) applyDiff(diff ResourceDiff) (bool, error) {
	switch diff.Type {
	case types.ResourceServer:
		return applyKindDiff(e, e.db.Servers, diff)
	case types.ResourceDeployment:
		return applyKindDiff(e, e.db.Deployments, diff)
	case types.ResourceBuild:
		return applyKindDiff(e, e.db.Builds, diff)
	case types.ResourceRepo:
		return applyKindDiff(e, e.db.Repos, diff)
	case types.ResourceStack:
		return applyKindDiff(e, e.db.Stacks, diff)
	case types.ResourceProcedure:
		return applyKindDiff(e, e.db.Procedures, diff)
	case types.ResourceResourceSync:
		return applyKindDiff(e, e.db.Syncs, diff)
	case types.ResourceBuilder:
		return applyKindDiff(e, e.db.Builders, diff)
	case types.ResourceAlerter:
		return applyKindDiff(e, e.db.Alerters, diff)
	case types.ResourceServerTemplate:
		return applyKindDiff(e, e.db.ServerTemplates, diff)
	case types.ResourceAction:
		return applyKindDiff(e, e.db.Actions, diff)
	default:
		return false, nil
	}
}

func applyKindDiff[C, I any](e *Engine, col *store.Collection[C, I], diff ResourceDiff) (bool, error) {
	switch diff.Kind {
	case DiffCreate:
		var zero C
		cfg, err := store.ApplyPatch(zero, diff.Patch)
		if err != nil {
			return false, err
		}
		desc := ""
		if diff.Description != nil {
			desc = *diff.Description
		}
		var tags []string
		if diff.Tags != nil {
			tags = *diff.Tags
		}
		_, err = col.Create(diff.Name, desc, tags, cfg)
		return true, err

	case DiffUpdate:
		res, err := col.GetByName(diff.Name)
		if err != nil {
			return false, err
		}
		changed := false
		if len(diff.Patch) > 0 {
			if res, err = col.UpdateConfig(res.ID, diff.Patch); err != nil {
				return false, err
			}
			changed = true
		}
		if diff.Description != nil && *diff.Description != res.Description {
			res.Description = *diff.Description
			changed = true
		}
		if diff.Tags != nil {
			res.Tags = *diff.Tags
			changed = true
		}
		if changed {
			if err := col.Put(res); err != nil {
				return false, err
			}
		}
		return changed, nil

	case DiffDelete:
		res, err := col.GetByName(diff.Name)
		if err != nil {
			return false, err
		}
		if err := e.db.PreDelete(res.Target()); err != nil {
			return false, err
		}
		_, err = col.Delete(res.ID)
		return true, err
	}
	return false, nil
}

func (e *Engine) applyVariable(diff VariableDiff) error {
	switch diff.Kind {
	case DiffDelete:
		return e.db.DeleteVariable(diff.Variable.Name)
	default:
		v := diff.Variable
		return e.db.PutVariable(&v)
	}
}

func (e *Engine) applyGroup(diff GroupDiff) error {
	switch diff.Kind {
	case DiffCreate:
		return e.db.CreateUserGroup(&types.UserGroup{Name: diff.Name, Users: diff.Users})
	case DiffUpdate:
		g, err := e.db.GetUserGroupByName(diff.Name)
		if err != nil {
			return err
		}
		g.Users = diff.Users
		return e.db.PutUserGroup(g)
	case DiffDelete:
		g, err := e.db.GetUserGroupByName(diff.Name)
		if err != nil {
			return err
		}
		return e.db.DeleteUserGroup(g.ID)
	}
	return nil
}
