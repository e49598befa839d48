package types

import "time"

// ServerState is the monitor loop's view of a server.
type ServerState string

const (
	ServerOk       ServerState = "Ok"
	ServerNotOk    ServerState = "NotOk"
	ServerDisabled ServerState = "Disabled"
)

// DeploymentState is the monitor loop's view of a deployment's container.
type DeploymentState string

const (
	DeploymentRunning    DeploymentState = "Running"
	DeploymentExited     DeploymentState = "Exited"
	DeploymentRestarting DeploymentState = "Restarting"
	DeploymentPaused     DeploymentState = "Paused"
	DeploymentDead       DeploymentState = "Dead"
	DeploymentCreated    DeploymentState = "Created"
	DeploymentNotDeployed DeploymentState = "NotDeployed"
	DeploymentUnknown    DeploymentState = "Unknown"
)

// ParseDeploymentState maps a docker state string onto DeploymentState.
func ParseDeploymentState(s string) DeploymentState {
	switch s {
	case "running":
		return DeploymentRunning
	case "exited":
		return DeploymentExited
	case "restarting":
		return DeploymentRestarting
	case "paused":
		return DeploymentPaused
	case "dead":
		return DeploymentDead
	case "created":
		return DeploymentCreated
	case "":
		return DeploymentNotDeployed
	default:
		return DeploymentUnknown
	}
}

// DiskUsage is one mounted disk on a server.
type DiskUsage struct {
	Path    string  `json:"path"`
	UsedGB  float64 `json:"used_gb"`
	TotalGB float64 `json:"total_gb"`
}

// Percent returns disk usage as a percentage of capacity.
func (d DiskUsage) Percent() float64 {
	if d.TotalGB <= 0 {
		return 0
	}
	return d.UsedGB / d.TotalGB * 100
}

// TempReading is one hardware temperature component.
type TempReading struct {
	Label    string  `json:"label"`
	Temp     float64 `json:"temp"`
	Critical float64 `json:"critical"` // 0 = unknown critical point
}

// SystemStats is a server's resource usage snapshot as reported by its agent.
type SystemStats struct {
	CPUPercent  float64       `json:"cpu_perc"`
	MemUsedGB   float64       `json:"mem_used_gb"`
	MemTotalGB  float64       `json:"mem_total_gb"`
	Disks       []DiskUsage   `json:"disks,omitempty"`
	Components  []TempReading `json:"components,omitempty"`
	PolledAt    time.Time     `json:"polled_at"`
}

// MemPercent returns memory usage as a percentage of total.
func (s SystemStats) MemPercent() float64 {
	if s.MemTotalGB <= 0 {
		return 0
	}
	return s.MemUsedGB / s.MemTotalGB * 100
}

// ContainerSummary is the agent's view of one container.
type ContainerSummary struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Image string `json:"image"`
	State string `json:"state"`
}

// ServerHealthLevel grades one measured dimension.
type ServerHealthLevel struct {
	Level Severity `json:"level"`
}

// ServerHealth grades every monitored dimension of a server.
type ServerHealth struct {
	CPU   Severity            `json:"cpu"`
	Mem   Severity            `json:"mem"`
	Disks map[string]Severity `json:"disks,omitempty"`  // by mount path
	Temps map[string]Severity `json:"temps,omitempty"`  // by component label
}

// ServerStatus is the monitor's cached view of one server.
type ServerStatus struct {
	ServerID string       `json:"server_id"`
	State    ServerState  `json:"state"`
	Version  string       `json:"version,omitempty"`
	Stats    *SystemStats `json:"stats,omitempty"`
	Health   *ServerHealth `json:"health,omitempty"`
	Err      string       `json:"error,omitempty"`
	PolledAt time.Time    `json:"polled_at"`
}

// ActionState holds the transient busy flags of one resource. Default is
// all false; never persisted.
type ActionState struct {
	Building   bool `json:"building,omitempty"`
	Deploying  bool `json:"deploying,omitempty"`
	Starting   bool `json:"starting,omitempty"`
	Stopping   bool `json:"stopping,omitempty"`
	Removing   bool `json:"removing,omitempty"`
	Destroying bool `json:"destroying,omitempty"`
	Cloning    bool `json:"cloning,omitempty"`
	Pulling    bool `json:"pulling,omitempty"`
	Syncing    bool `json:"syncing,omitempty"`
	Pruning    bool `json:"pruning,omitempty"`
	Launching  bool `json:"launching,omitempty"`
	Running    bool `json:"running,omitempty"`
}

// Busy reports whether any operation is in flight.
func (s ActionState) Busy() bool {
	return s.Building || s.Deploying || s.Starting || s.Stopping ||
		s.Removing || s.Destroying || s.Cloning || s.Pulling ||
		s.Syncing || s.Pruning || s.Launching || s.Running
}
