package store

import (
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// DB bundles the store with a typed collection per resource type. It is the
// single authority for persisted state.
type DB struct {
	*Store

	Servers         *Collection[types.ServerConfig, types.NoInfo]
	Deployments     *Collection[types.DeploymentConfig, types.NoInfo]
	Builds          *Collection[types.BuildConfig, types.BuildInfo]
	Repos           *Collection[types.RepoConfig, types.RepoInfo]
	Stacks          *Collection[types.StackConfig, types.NoInfo]
	Procedures      *Collection[types.ProcedureConfig, types.NoInfo]
	Syncs           *Collection[types.ResourceSyncConfig, types.SyncInfo]
	Builders        *Collection[types.BuilderConfig, types.NoInfo]
	Alerters        *Collection[types.AlerterConfig, types.NoInfo]
	ServerTemplates *Collection[types.ServerTemplateConfig, types.NoInfo]
	Actions         *Collection[types.ActionConfig, types.NoInfo]
}

// OpenDB opens the database and binds every collection.
func OpenDB(path string) (*DB, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	db := &DB{
		Store:           s,
		Servers:         NewCollection[types.ServerConfig, types.NoInfo](s, types.ResourceServer),
		Deployments:     NewCollection[types.DeploymentConfig, types.NoInfo](s, types.ResourceDeployment),
		Builds:          NewCollection[types.BuildConfig, types.BuildInfo](s, types.ResourceBuild),
		Repos:           NewCollection[types.RepoConfig, types.RepoInfo](s, types.ResourceRepo),
		Stacks:          NewCollection[types.StackConfig, types.NoInfo](s, types.ResourceStack),
		Procedures:      NewCollection[types.ProcedureConfig, types.NoInfo](s, types.ResourceProcedure),
		Syncs:           NewCollection[types.ResourceSyncConfig, types.SyncInfo](s, types.ResourceResourceSync),
		Builders:        NewCollection[types.BuilderConfig, types.NoInfo](s, types.ResourceBuilder),
		Alerters:        NewCollection[types.AlerterConfig, types.NoInfo](s, types.ResourceAlerter),
		ServerTemplates: NewCollection[types.ServerTemplateConfig, types.NoInfo](s, types.ResourceServerTemplate),
		Actions:         NewCollection[types.ActionConfig, types.NoInfo](s, types.ResourceAction),
	}

	// Configs referencing other resources reject dangling refs on create
	// and update.
	db.Deployments.SetValidator(func(cfg types.DeploymentConfig) error {
		return db.ValidateServerRef(cfg.ServerID)
	})
	db.Repos.SetValidator(func(cfg types.RepoConfig) error {
		return db.ValidateServerRef(cfg.ServerID)
	})
	db.Stacks.SetValidator(func(cfg types.StackConfig) error {
		return db.ValidateServerRef(cfg.ServerID)
	})
	db.Builds.SetValidator(func(cfg types.BuildConfig) error {
		return db.ValidateBuilderRef(cfg.BuilderID)
	})
	db.Builders.SetValidator(func(cfg types.BuilderConfig) error {
		if cfg.Type == "Server" {
			return db.ValidateServerRef(cfg.Params.ServerID)
		}
		return nil
	})
	return db, nil
}

// PreDelete detaches foreign references to the resource and resolves its
// open alerts. A failure here aborts the delete.
func (db *DB) PreDelete(target types.ResourceTarget) error {
	switch target.Type {
	case types.ResourceServer:
		// Deployments, repos, and stacks keep their server_id; they report
		// InvalidConfig on next use. Builders pointing at the server are
		// detached so builds fail cleanly.
		builders, err := db.Builders.List(types.Query{})
		if err != nil {
			return err
		}
		for _, b := range builders {
			if b.Config.Type == "Server" && b.Config.Params.ServerID == target.ID {
				b.Config.Params.ServerID = ""
				if err := db.Builders.Put(b); err != nil {
					return err
				}
			}
		}
	case types.ResourceBuilder:
		builds, err := db.Builds.List(types.Query{})
		if err != nil {
			return err
		}
		for _, b := range builds {
			if b.Config.BuilderID == target.ID {
				b.Config.BuilderID = ""
				if err := db.Builds.Put(b); err != nil {
					return err
				}
			}
		}
	case types.ResourceBuild:
		deployments, err := db.Deployments.List(types.Query{})
		if err != nil {
			return err
		}
		for _, d := range deployments {
			if d.Config.Image.Type == "Build" && d.Config.Image.Params.BuildID == target.ID {
				d.Config.Image = types.DeploymentImage{Type: "Image"}
				if err := db.Deployments.Put(d); err != nil {
					return err
				}
			}
		}
	}

	if _, err := db.ResolveAlertsForTarget(target); err != nil {
		return err
	}
	return db.DeletePermissionsOnTarget(target)
}

// ValidateServerRef confirms a referenced server exists. Used by config
// validation on create/update.
func (db *DB) ValidateServerRef(serverID string) error {
	if serverID == "" {
		return nil
	}
	if _, err := db.Servers.Get(serverID); err != nil {
		if oops.Is(err, oops.NotFound) {
			return oops.New(oops.InvalidConfig, "attached server %q does not exist", serverID)
		}
		return err
	}
	return nil
}

// ValidateBuilderRef confirms a referenced builder exists.
func (db *DB) ValidateBuilderRef(builderID string) error {
	if builderID == "" {
		return nil
	}
	if _, err := db.Builders.Get(builderID); err != nil {
		if oops.Is(err, oops.NotFound) {
			return oops.New(oops.InvalidConfig, "attached builder %q does not exist", builderID)
		}
		return err
	}
	return nil
}
