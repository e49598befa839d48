package syncer

import (
	"encoding/json"
	"slices"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// DiffKind names what a planned change does.
type DiffKind string

const (
	DiffCreate DiffKind = "Create"
	DiffUpdate DiffKind = "Update"
	DiffDelete DiffKind = "Delete"
)

// ResourceDiff is one planned change against one resource.
type ResourceDiff struct {
	Type types.ResourceType `json:"type"`
	Name string             `json:"name"`
	Kind DiffKind           `json:"kind"`
	// Patch holds the declared config for creates and the changed fields
	// for updates; empty for pure description/tag changes and deletes.
	Patch       store.ConfigPatch `json:"patch,omitempty"`
	Description *string           `json:"description,omitempty"`
	Tags        *[]string         `json:"tags,omitempty"`
	Deploy      bool              `json:"deploy,omitempty"`
}

// VariableDiff is one planned change to a global variable.
type VariableDiff struct {
	Kind     DiffKind       `json:"kind"`
	Variable types.Variable `json:"variable"`
}

// GroupDiff is one planned change to a user group's membership.
type GroupDiff struct {
	Kind  DiffKind `json:"kind"`
	Name  string   `json:"name"`
	Users []string `json:"users,omitempty"`
}

// Plan is every change a sync run would make.
type Plan struct {
	Diffs     []ResourceDiff `json:"diffs,omitempty"`
	Variables []VariableDiff `json:"variables,omitempty"`
	Groups    []GroupDiff    `json:"groups,omitempty"`
	Hash      string         `json:"hash"`
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Diffs) == 0 && len(p.Variables) == 0 && len(p.Groups) == 0
}

// buildPlan diffs the parsed document against stored state.
func (e *Engine) buildPlan(doc *Doc, cfg *types.ResourceSyncConfig, hash string) (*Plan, error) {
	plan := &Plan{Hash: hash}

	var err error
	add := func(diffs []ResourceDiff, kindErr error) {
		if err == nil {
			err = kindErr
			plan.Diffs = append(plan.Diffs, diffs...)
		}
	}
	add(planKind(e.db.ServerTemplates, types.ResourceServerTemplate, doc, cfg))
	add(planKind(e.db.Servers, types.ResourceServer, doc, cfg))
	add(planKind(e.db.Alerters, types.ResourceAlerter, doc, cfg))
	add(planKind(e.db.Builders, types.ResourceBuilder, doc, cfg))
	add(planKind(e.db.Repos, types.ResourceRepo, doc, cfg))
	add(planKind(e.db.Builds, types.ResourceBuild, doc, cfg))
	add(planKind(e.db.Deployments, types.ResourceDeployment, doc, cfg))
	add(planKind(e.db.Stacks, types.ResourceStack, doc, cfg))
	add(planKind(e.db.Procedures, types.ResourceProcedure, doc, cfg))
	add(planKind(e.db.Actions, types.ResourceAction, doc, cfg))
	add(planKind(e.db.Syncs, types.ResourceResourceSync, doc, cfg))
	if err != nil {
		return nil, err
	}

	if err := e.planVariables(doc, cfg, plan); err != nil {
		return nil, err
	}
	if err := e.planGroups(doc, cfg, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// planKind diffs one resource type's declarations against the collection.
func planKind[C, I any](col *store.Collection[C, I], typ types.ResourceType, doc *Doc, cfg *types.ResourceSyncConfig) ([]ResourceDiff, error) {
	specs := doc.specs(typ)
	declared := map[string]bool{}
	var diffs []ResourceDiff

	for _, spec := range specs {
		declared[spec.Name] = true
		existing, err := col.GetByName(spec.Name)
		if err != nil {
			if !oops.Is(err, oops.NotFound) {
				return nil, err
			}
			diffs = append(diffs, ResourceDiff{
				Type:        typ,
				Name:        spec.Name,
				Kind:        DiffCreate,
				Patch:       spec.Config,
				Description: strPtr(spec.Description),
				Tags:        tagsPtr(spec.Tags),
				Deploy:      spec.Deploy,
			})
			continue
		}

		proposed, err := store.ApplyPatch(existing.Config, store.ConfigPatch(spec.Config))
		if err != nil {
			return nil, oops.Wrap(oops.InvalidConfig, err, "%s %q", typ, spec.Name)
		}
		patch, err := store.DiffConfigs(existing.Config, proposed)
		if err != nil {
			return nil, err
		}

		diff := ResourceDiff{Type: typ, Name: spec.Name, Kind: DiffUpdate, Patch: patch, Deploy: spec.Deploy}
		changed := len(patch) > 0
		if spec.Description != "" && spec.Description != existing.Description {
			diff.Description = strPtr(spec.Description)
			changed = true
		}
		if spec.Tags != nil && !slices.Equal(normalizeTags(spec.Tags), normalizeTags(existing.Tags)) {
			diff.Tags = tagsPtr(spec.Tags)
			changed = true
		}
		if changed {
			diffs = append(diffs, diff)
		} else if spec.Deploy {
			// Unchanged resources still join the deploy pass when flagged.
			diffs = append(diffs, ResourceDiff{Type: typ, Name: spec.Name, Kind: DiffUpdate, Deploy: true})
		}
	}

	// With delete enabled, managed resources the document no longer
	// declares are pruned. The match-tags scope bounds what "managed"
	// means; an empty document prunes everything in scope.
	if cfg.Delete {
		existing, err := col.List(types.Query{Tags: cfg.MatchTags, TagBehavior: types.TagsMatchAll})
		if err != nil {
			return nil, err
		}
		for _, res := range existing {
			if !declared[res.Name] {
				diffs = append(diffs, ResourceDiff{Type: typ, Name: res.Name, Kind: DiffDelete})
			}
		}
	}
	return diffs, nil
}

func (e *Engine) planVariables(doc *Doc, cfg *types.ResourceSyncConfig, plan *Plan) error {
	declared := map[string]bool{}
	for _, v := range doc.Variables {
		declared[v.Name] = true
		existing, err := e.db.GetVariable(v.Name)
		if err != nil {
			if !oops.Is(err, oops.NotFound) {
				return err
			}
			plan.Variables = append(plan.Variables, VariableDiff{Kind: DiffCreate, Variable: v})
			continue
		}
		if existing.Value != v.Value || existing.Description != v.Description || existing.IsSecret != v.IsSecret {
			plan.Variables = append(plan.Variables, VariableDiff{Kind: DiffUpdate, Variable: v})
		}
	}
	if cfg.Delete {
		existing, err := e.db.ListVariables()
		if err != nil {
			return err
		}
		for _, v := range existing {
			if !declared[v.Name] {
				plan.Variables = append(plan.Variables, VariableDiff{Kind: DiffDelete, Variable: *v})
			}
		}
	}
	return nil
}

func (e *Engine) planGroups(doc *Doc, cfg *types.ResourceSyncConfig, plan *Plan) error {
	declared := map[string]bool{}
	for _, g := range doc.UserGroups {
		declared[g.Name] = true
		userIDs, err := e.resolveUsernames(g.Users)
		if err != nil {
			return err
		}
		existing, err := e.db.GetUserGroupByName(g.Name)
		if err != nil {
			if !oops.Is(err, oops.NotFound) {
				return err
			}
			plan.Groups = append(plan.Groups, GroupDiff{Kind: DiffCreate, Name: g.Name, Users: userIDs})
			continue
		}
		if !slices.Equal(normalizeTags(existing.Users), normalizeTags(userIDs)) {
			plan.Groups = append(plan.Groups, GroupDiff{Kind: DiffUpdate, Name: g.Name, Users: userIDs})
		}
	}
	if cfg.Delete {
		existing, err := e.db.ListUserGroups()
		if err != nil {
			return err
		}
		for _, g := range existing {
			if !declared[g.Name] {
				plan.Groups = append(plan.Groups, GroupDiff{Kind: DiffDelete, Name: g.Name})
			}
		}
	}
	return nil
}

// resolveUsernames maps usernames to user ids, skipping unknown users.
func (e *Engine) resolveUsernames(usernames []string) ([]string, error) {
	var ids []string
	for _, name := range usernames {
		user, err := e.db.GetUserByUsername(name)
		if err != nil {
			if oops.Is(err, oops.NotFound) {
				continue
			}
			return nil, err
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tagsPtr(tags []string) *[]string {
	if tags == nil {
		return nil
	}
	return &tags
}

func normalizeTags(tags []string) []string {
	out := slices.Clone(tags)
	slices.Sort(out)
	return out
}

// configMap marshals a typed config to its map form for export.
func configMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
