package syncer

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// Export renders matching resources as a TOML sync document. Exporting and
// then syncing the output against the same state is a no-op.
func (e *Engine) Export(q types.Query) ([]byte, error) {
	doc := &Doc{}

	var err error
	put := func(specs []ResourceSpec, kindErr error) []ResourceSpec {
		if err == nil {
			err = kindErr
		}
		return specs
	}
	doc.ServerTemplates = put(exportKind(e.db.ServerTemplates, q))
	doc.Servers = put(exportKind(e.db.Servers, q))
	doc.Alerters = put(exportKind(e.db.Alerters, q))
	doc.Builders = put(exportKind(e.db.Builders, q))
	doc.Repos = put(exportKind(e.db.Repos, q))
	doc.Builds = put(exportKind(e.db.Builds, q))
	doc.Deployments = put(exportKind(e.db.Deployments, q))
	doc.Stacks = put(exportKind(e.db.Stacks, q))
	doc.Procedures = put(exportKind(e.db.Procedures, q))
	doc.Actions = put(exportKind(e.db.Actions, q))
	doc.Syncs = put(exportKind(e.db.Syncs, q))
	if err != nil {
		return nil, err
	}

	variables, err := e.db.ListVariables()
	if err != nil {
		return nil, err
	}
	for _, v := range variables {
		doc.Variables = append(doc.Variables, *v)
	}

	groups, err := e.db.ListUserGroups()
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		usernames, err := e.resolveUserIDs(g.Users)
		if err != nil {
			return nil, err
		}
		doc.UserGroups = append(doc.UserGroups, UserGroupSpec{Name: g.Name, Users: usernames})
	}

	return toml.Marshal(doc)
}

func exportKind[C, I any](col *store.Collection[C, I], q types.Query) ([]ResourceSpec, error) {
	resources, err := col.List(q)
	if err != nil {
		return nil, err
	}
	var specs []ResourceSpec
	for _, res := range resources {
		cfg, err := configMap(res.Config)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ResourceSpec{
			Name:        res.Name,
			Description: res.Description,
			Tags:        res.Tags,
			Config:      cfg,
		})
	}
	return specs, nil
}

// resolveUserIDs maps member ids back to usernames for export.
func (e *Engine) resolveUserIDs(ids []string) ([]string, error) {
	var names []string
	for _, id := range ids {
		user, err := e.db.GetUser(id)
		if err != nil {
			continue
		}
		names = append(names, user.Username)
	}
	return names, nil
}
