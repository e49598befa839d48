package execute

import (
	"context"
	"fmt"
	"strings"

	"github.com/convoy-ops/convoy/internal/agent"
	"github.com/convoy-ops/convoy/internal/types"
)

// deploy pulls the deployment's image and replaces its container.
func (e *Executor) deploy(ctx context.Context, deploymentID string, u *types.Update, interp *Interpolator) {
	d, err := e.db.Deployments.Get(deploymentID)
	if err != nil {
		u.PushError("resolve deployment", err)
		return
	}
	_, client, err := e.serverClient(d.Config.ServerID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}

	image, account, err := e.resolveImage(d)
	if err != nil {
		u.PushError("resolve image", err)
		return
	}
	image = interp.Apply(image)

	pullLog, err := e.pulls.Pull(ctx, client, agent.PullImageParams{
		Name:    image,
		Account: account,
		Token:   e.registryToken(imageDomain(image), account, interp),
	})
	if err != nil {
		u.PushError("pull image", err)
		return
	}
	u.PushLog(pullLog)
	e.save(u, interp)

	deployLog, err := client.Deploy(ctx, agent.DeployParams{
		Name:        d.Name,
		Image:       image,
		Network:     d.Config.Network,
		Restart:     d.Config.Restart,
		Command:     interp.Apply(d.Config.Command),
		Environment: interp.ApplyEnv(d.Config.Environment),
		Ports:       d.Config.Ports,
		Volumes:     d.Config.Volumes,
		Labels:      d.Config.Labels,
		ExtraArgs:   d.Config.ExtraArgs,
	})
	if err != nil {
		u.PushError("deploy container", err)
		return
	}
	u.PushLog(deployLog)
}

// resolveImage returns the image reference for a deployment, following the
// Build variant to the build's last built version.
func (e *Executor) resolveImage(d *types.Deployment) (image, account string, err error) {
	img := d.Config.Image
	switch img.Type {
	case "Build":
		build, err := e.db.Builds.Get(img.Params.BuildID)
		if err != nil {
			return "", "", err
		}
		version := img.Params.Version
		if version == "" {
			version = build.Info.BuiltVersion.String()
		}
		name := build.Config.ImageName
		if name == "" {
			name = build.Name
		}
		if build.Config.ImageRegistry != "" {
			name = strings.TrimRight(build.Config.ImageRegistry, "/") + "/" + name
		}
		return fmt.Sprintf("%s:%s", name, version), build.Config.ImageAccount, nil
	default:
		return img.Params.Image, img.Params.Account, nil
	}
}

// imageDomain extracts the registry host from an image reference. A first
// segment without a dot or port is a docker hub namespace, not a host.
func imageDomain(image string) string {
	first, _, found := strings.Cut(image, "/")
	if !found || !strings.ContainsAny(first, ".:") {
		return ""
	}
	return first
}

func (e *Executor) startContainer(ctx context.Context, deploymentID string, u *types.Update) {
	d, err := e.db.Deployments.Get(deploymentID)
	if err != nil {
		u.PushError("resolve deployment", err)
		return
	}
	_, client, err := e.serverClient(d.Config.ServerID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}
	log, err := client.StartContainer(ctx, d.Name)
	if err != nil {
		u.PushError("start container", err)
		return
	}
	u.PushLog(log)
}

func (e *Executor) stopContainer(ctx context.Context, deploymentID string, stopTime int, u *types.Update) {
	d, err := e.db.Deployments.Get(deploymentID)
	if err != nil {
		u.PushError("resolve deployment", err)
		return
	}
	_, client, err := e.serverClient(d.Config.ServerID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}
	log, err := client.StopContainer(ctx, d.Name, stopTime)
	if err != nil {
		u.PushError("stop container", err)
		return
	}
	u.PushLog(log)
}

func (e *Executor) removeContainer(ctx context.Context, deploymentID string, stopTime int, u *types.Update) {
	d, err := e.db.Deployments.Get(deploymentID)
	if err != nil {
		u.PushError("resolve deployment", err)
		return
	}
	_, client, err := e.serverClient(d.Config.ServerID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}
	log, err := client.RemoveContainer(ctx, d.Name, stopTime)
	if err != nil {
		u.PushError("remove container", err)
		return
	}
	u.PushLog(log)
}

func (e *Executor) stopAllContainers(ctx context.Context, serverID string, stopTime int, u *types.Update) {
	_, client, err := e.serverClient(serverID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}
	log, err := client.StopAllContainers(ctx, stopTime)
	if err != nil {
		u.PushError("stop all containers", err)
		return
	}
	u.PushLog(log)
}

// pruneKind selects which prune RPC a prune execution runs.
type pruneKind int

const (
	pruneNetworks pruneKind = iota
	pruneImages
	pruneContainers
)

func (e *Executor) prune(ctx context.Context, serverID string, u *types.Update, kind pruneKind) {
	_, client, err := e.serverClient(serverID)
	if err != nil {
		u.PushError("resolve server", err)
		return
	}

	var log types.Log
	switch kind {
	case pruneNetworks:
		log, err = client.PruneNetworks(ctx)
	case pruneImages:
		log, err = client.PruneImages(ctx)
	default:
		log, err = client.PruneContainers(ctx)
	}
	if err != nil {
		u.PushError("prune", err)
		return
	}
	u.PushLog(log)
}

// save persists live progress mid-handler; failures only log. Logs are
// redacted before every persist, not just at finalize, so an update read
// mid-run never exposes an interpolated secret.
func (e *Executor) save(u *types.Update, interp *Interpolator) {
	if interp != nil {
		interp.Redact(u)
	}
	if err := e.pipeline.Save(u); err != nil {
		e.log.Error("save update failed", "update", u.ID, "error", err.Error())
	}
}
