package monitor

import (
	"sync"

	"github.com/convoy-ops/convoy/internal/types"
)

// StatusCache is the in-memory view of the last monitoring pass. It is the
// read path for server and deployment state; nothing here is persisted.
type StatusCache struct {
	mu          sync.RWMutex
	servers     map[string]*types.ServerStatus
	deployments map[string]types.DeploymentState
	containers  map[string][]types.ContainerSummary
}

// NewStatusCache creates an empty cache.
func NewStatusCache() *StatusCache {
	return &StatusCache{
		servers:     make(map[string]*types.ServerStatus),
		deployments: make(map[string]types.DeploymentState),
		containers:  make(map[string][]types.ContainerSummary),
	}
}

// ServerStatus returns the cached status for a server, or a NotOk
// placeholder when the server has not been polled yet.
func (c *StatusCache) ServerStatus(serverID string) *types.ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.servers[serverID]; ok {
		cp := *s
		return &cp
	}
	return &types.ServerStatus{ServerID: serverID, State: types.ServerNotOk}
}

// SetServerStatus replaces a server's cached status.
func (c *StatusCache) SetServerStatus(s *types.ServerStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[s.ServerID] = s
}

// DeploymentState returns the cached state for a deployment. Deployments
// never observed report NotDeployed.
func (c *StatusCache) DeploymentState(deploymentID string) types.DeploymentState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.deployments[deploymentID]; ok {
		return s
	}
	return types.DeploymentNotDeployed
}

// SetDeploymentState replaces one deployment's cached state, returning the
// previous state.
func (c *StatusCache) SetDeploymentState(deploymentID string, state types.DeploymentState) types.DeploymentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.deployments[deploymentID]
	c.deployments[deploymentID] = state
	if !ok {
		return types.DeploymentNotDeployed
	}
	return prev
}

// Containers returns the cached container list for a server.
func (c *StatusCache) Containers(serverID string) []types.ContainerSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containers[serverID]
}

// SetContainers replaces a server's cached container list.
func (c *StatusCache) SetContainers(serverID string, containers []types.ContainerSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.containers[serverID] = containers
}

// Drop removes everything cached for a server (called on server delete).
func (c *StatusCache) Drop(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.servers, serverID)
	delete(c.containers, serverID)
}

// DropDeployment removes one deployment's cached state.
func (c *StatusCache) DropDeployment(deploymentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deployments, deploymentID)
}
