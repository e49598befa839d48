package execute

import (
	"context"
	"time"

	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// runBuild increments the build version, runs the image build on the
// attached builder, and records the built version on success.
func (e *Executor) runBuild(ctx context.Context, buildID string, u *types.Update, interp *Interpolator) {
	build, err := e.db.Builds.Get(buildID)
	if err != nil {
		u.PushError("resolve build", err)
		return
	}

	client, err := e.builderClient(build.Config.BuilderID)
	if err != nil {
		u.PushError("resolve builder", err)
		return
	}

	version := build.Config.Version.Increment()
	u.Version = version
	e.save(u, interp)

	token := e.gitToken(build.Config.GitProvider, build.Config.GitAccount, interp)

	imageName := build.Config.ImageName
	if imageName == "" {
		imageName = build.Name
	}
	logs, err := client.Build(ctx, agent.BuildParams{
		Name:          build.Name,
		Repo:          interp.Apply(build.Config.Repo),
		Branch:        build.Config.Branch,
		Token:         token,
		Dockerfile:    build.Config.Dockerfile,
		BuildPath:     build.Config.BuildPath,
		BuildArgs:     interp.ApplyEnv(build.Config.BuildArgs),
		Image:         imageName + ":" + version.String(),
		Registry:      build.Config.ImageRegistry,
		RegistryToken: e.registryToken(build.Config.ImageRegistry, build.Config.ImageAccount, interp),
	})
	u.Logs = append(u.Logs, logs...)
	if err != nil {
		u.PushError("run build", err)
		return
	}

	build.Config.Version = version
	if err := e.db.Builds.Put(build); err != nil {
		u.PushError("store version", err)
		return
	}
	if err := e.db.Builds.UpdateInfo(build.ID, types.BuildInfo{
		LastBuiltAt:  time.Now().UTC(),
		BuiltVersion: version,
	}); err != nil {
		u.PushError("store build info", err)
	}
}

// builderClient resolves a builder reference to an agent client. Only the
// Server variant is currently launchable; Aws builders need cloud
// credentials the coordinator does not hold.
func (e *Executor) builderClient(builderID string) (*agent.Client, error) {
	if builderID == "" {
		return nil, oops.New(oops.InvalidConfig, "no builder attached")
	}
	builder, err := e.db.Builders.Get(builderID)
	if err != nil {
		return nil, err
	}
	switch builder.Config.Type {
	case "Server":
		_, client, err := e.serverClient(builder.Config.Params.ServerID)
		return client, err
	case "Aws":
		return nil, oops.New(oops.InvalidConfig, "aws builders are not supported on this coordinator")
	default:
		return nil, oops.New(oops.InvalidConfig, "unknown builder type %q", builder.Config.Type)
	}
}

// gitToken looks up the stored token for a repo's provider account and
// registers it for redaction.
func (e *Executor) gitToken(provider, account string, interp *Interpolator) string {
	if account == "" {
		return ""
	}
	if provider == "" {
		provider = "github.com"
	}
	token, ok := e.cfg.GitToken(provider, account)
	if !ok {
		return ""
	}
	interp.AddSecret(token, "GIT_TOKEN")
	return token
}

// registryToken looks up the stored token for a registry account and
// registers it for redaction.
func (e *Executor) registryToken(domain, account string, interp *Interpolator) string {
	if account == "" {
		return ""
	}
	if domain == "" {
		domain = "docker.io"
	}
	token, ok := e.cfg.RegistryToken(domain, account)
	if !ok {
		return ""
	}
	interp.AddSecret(token, "REGISTRY_TOKEN")
	return token
}
