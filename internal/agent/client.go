// Package agent is the typed RPC client for host agents. Every request is
// a POST of {"type": ..., "params": ...} to the agent's root endpoint with
// a bearer passkey; responses decode against the request's response type.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convoy-ops/convoy/internal/metrics"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// healthCheckTimeout bounds the cheap preflight that distinguishes
// "agent unreachable" from "agent rejected request".
const healthCheckTimeout = time.Second

// Client speaks to one host agent.
type Client struct {
	address    string
	passkey    string
	httpClient *http.Client
}

// NewClient creates a client for the agent at address with the given
// passkey. Real requests carry no timeout; the agent is trusted to stream
// progress or fail.
func NewClient(address, passkey string) *Client {
	return &Client{
		address:    strings.TrimRight(address, "/"),
		passkey:    passkey,
		httpClient: &http.Client{},
	}
}

// ForServer builds a client for a server's configured agent endpoint.
func ForServer(server *types.Server) *Client {
	return NewClient(server.Config.Address, server.Config.Passkey)
}

// request is the agent protocol envelope.
type request struct {
	Type   string `json:"type"`
	Params any    `json:"params"`
}

// agentError is the structured error body an agent returns on non-200.
type agentError struct {
	Error string `json:"error"`
	Trace []string `json:"trace,omitempty"`
}

// call performs one request/response cycle, preceded by the health check.
func (c *Client) call(ctx context.Context, typ string, params, out any) error {
	if typ != "GetHealth" {
		if err := c.health(ctx); err != nil {
			return err
		}
	}
	start := time.Now()
	err := c.post(ctx, typ, params, out)
	metrics.ObserveAgentRequest(typ, time.Since(start), err == nil)
	return err
}

func (c *Client) post(ctx context.Context, typ string, params, out any) error {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(request{Type: typ, Params: params})
	if err != nil {
		return oops.Wrap(oops.Internal, err, "marshal %s request", typ)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address, bytes.NewReader(body))
	if err != nil {
		return oops.Wrap(oops.Internal, err, "create %s request", typ)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.passkey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return oops.Wrap(oops.Upstream, err, "agent %s unreachable", c.address)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var ae agentError
		if json.Unmarshal(data, &ae) == nil && ae.Error != "" {
			return oops.New(oops.Upstream, "agent %s: %s (status %d)", typ, ae.Error, resp.StatusCode)
		}
		return oops.New(oops.Upstream, "agent %s returned status %d", typ, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Wrap(oops.Upstream, err, "decode %s response", typ)
	}
	return nil
}

// health performs the cheap GetHealth preflight with a 1s timeout.
func (c *Client) health(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	var out struct{}
	if err := c.post(hctx, "GetHealth", nil, &out); err != nil {
		return oops.Wrap(oops.Upstream, err, "agent health check failed")
	}
	return nil
}

// GetHealth checks agent liveness.
func (c *Client) GetHealth(ctx context.Context) error {
	return c.call(ctx, "GetHealth", nil, nil)
}

// VersionResponse carries the agent's reported version.
type VersionResponse struct {
	Version string `json:"version"`
}

// GetVersion returns the agent's version.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var out VersionResponse
	if err := c.call(ctx, "GetVersion", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// GetSystemStats returns the host's resource usage snapshot.
func (c *Client) GetSystemStats(ctx context.Context) (*types.SystemStats, error) {
	var out types.SystemStats
	if err := c.call(ctx, "GetSystemStats", nil, &out); err != nil {
		return nil, err
	}
	out.PolledAt = time.Now().UTC()
	return &out, nil
}

// ListContainers returns all containers on the host.
func (c *Client) ListContainers(ctx context.Context) ([]types.ContainerSummary, error) {
	var out []types.ContainerSummary
	if err := c.call(ctx, "ListContainers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeployParams describes one container deploy.
type DeployParams struct {
	Name        string             `json:"name"`
	Image       string             `json:"image"`
	Network     string             `json:"network,omitempty"`
	Restart     string             `json:"restart,omitempty"`
	Command     string             `json:"command,omitempty"`
	Environment []types.EnvVar     `json:"environment,omitempty"`
	Ports       []types.Conversion `json:"ports,omitempty"`
	Volumes     []types.Conversion `json:"volumes,omitempty"`
	Labels      []types.EnvVar     `json:"labels,omitempty"`
	ExtraArgs   []string           `json:"extra_args,omitempty"`
}

// Deploy replaces the named container with the given spec.
func (c *Client) Deploy(ctx context.Context, params DeployParams) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "Deploy", params, &out)
	return out, err
}

// ContainerParams targets one container by name.
type ContainerParams struct {
	Name     string `json:"name"`
	StopTime int    `json:"stop_time,omitempty"`
}

// StartContainer starts the named container.
func (c *Client) StartContainer(ctx context.Context, name string) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "StartContainer", ContainerParams{Name: name}, &out)
	return out, err
}

// StopContainer stops the named container.
func (c *Client) StopContainer(ctx context.Context, name string, stopTime int) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "StopContainer", ContainerParams{Name: name, StopTime: stopTime}, &out)
	return out, err
}

// StopAllContainers stops every container on the host.
func (c *Client) StopAllContainers(ctx context.Context, stopTime int) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "StopAllContainers", ContainerParams{StopTime: stopTime}, &out)
	return out, err
}

// RemoveContainer stops and removes the named container.
func (c *Client) RemoveContainer(ctx context.Context, name string, stopTime int) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "RemoveContainer", ContainerParams{Name: name, StopTime: stopTime}, &out)
	return out, err
}

// PullImageParams names the image to pull, with optional registry account.
type PullImageParams struct {
	Name    string `json:"name"`
	Account string `json:"account,omitempty"`
	Token   string `json:"token,omitempty"`
}

// pullImage performs the raw pull RPC (see PullImage on Client for the
// deduplicated entry point).
func (c *Client) pullImage(ctx context.Context, params PullImageParams) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "PullImage", params, &out)
	return out, err
}

// BuildParams describes an image build from a cloned repo.
type BuildParams struct {
	Name          string         `json:"name"`
	Repo          string         `json:"repo"`
	Branch        string         `json:"branch,omitempty"`
	Token         string         `json:"token,omitempty"`
	Dockerfile    string         `json:"dockerfile_path,omitempty"`
	BuildPath     string         `json:"build_path,omitempty"`
	BuildArgs     []types.EnvVar `json:"build_args,omitempty"`
	Image         string         `json:"image"`
	Registry      string         `json:"registry,omitempty"`
	RegistryToken string         `json:"registry_token,omitempty"`
}

// Build clones and builds an image, returning one log per build stage.
func (c *Client) Build(ctx context.Context, params BuildParams) ([]types.Log, error) {
	var out []types.Log
	err := c.call(ctx, "Build", params, &out)
	return out, err
}

// RepoParams describes a clone/pull of a git repo on the host.
type RepoParams struct {
	Name      string `json:"name"`
	Repo      string `json:"repo"`
	Branch    string `json:"branch,omitempty"`
	Token     string `json:"token,omitempty"`
	Path      string `json:"path,omitempty"`
	OnClone   string `json:"on_clone,omitempty"`
	OnPull    string `json:"on_pull,omitempty"`
}

// CloneRepo clones the repo onto the host.
func (c *Client) CloneRepo(ctx context.Context, params RepoParams) ([]types.Log, error) {
	var out []types.Log
	err := c.call(ctx, "CloneRepo", params, &out)
	return out, err
}

// PullRepo pulls the repo's configured branch on the host.
func (c *Client) PullRepo(ctx context.Context, params RepoParams) ([]types.Log, error) {
	var out []types.Log
	err := c.call(ctx, "PullRepo", params, &out)
	return out, err
}

// StackParams describes a compose deploy/destroy.
type StackParams struct {
	Name         string         `json:"name"`
	FileContents string         `json:"file_contents,omitempty"`
	RunDirectory string         `json:"run_directory,omitempty"`
	FilePaths    []string       `json:"file_paths,omitempty"`
	Environment  []types.EnvVar `json:"environment,omitempty"`
	ExtraArgs    []string       `json:"extra_args,omitempty"`
}

// DeployStack runs compose up for the stack.
func (c *Client) DeployStack(ctx context.Context, params StackParams) ([]types.Log, error) {
	var out []types.Log
	err := c.call(ctx, "DeployStack", params, &out)
	return out, err
}

// DestroyStack runs compose down for the stack.
func (c *Client) DestroyStack(ctx context.Context, params StackParams) ([]types.Log, error) {
	var out []types.Log
	err := c.call(ctx, "DestroyStack", params, &out)
	return out, err
}

// PruneNetworks removes unused networks on the host.
func (c *Client) PruneNetworks(ctx context.Context) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "PruneNetworks", nil, &out)
	return out, err
}

// PruneImages removes unused images on the host.
func (c *Client) PruneImages(ctx context.Context) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "PruneImages", nil, &out)
	return out, err
}

// PruneContainers removes stopped containers on the host.
func (c *Client) PruneContainers(ctx context.Context) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "PruneContainers", nil, &out)
	return out, err
}

// RunCommandParams describes a scripted action run on the host.
type RunCommandParams struct {
	Command string `json:"command"`
	Shell   string `json:"shell,omitempty"`
}

// RunCommand executes a script through the host shell.
func (c *Client) RunCommand(ctx context.Context, params RunCommandParams) (types.Log, error) {
	var out types.Log
	err := c.call(ctx, "RunCommand", params, &out)
	return out, err
}

func (c *Client) String() string {
	return fmt.Sprintf("agent(%s)", c.address)
}
