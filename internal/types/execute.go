package types

// ExecutionType names one variant of the execute request union.
type ExecutionType string

const (
	ExecNone              ExecutionType = "None"
	ExecRunProcedure      ExecutionType = "RunProcedure"
	ExecRunBuild          ExecutionType = "RunBuild"
	ExecDeploy            ExecutionType = "Deploy"
	ExecStartContainer    ExecutionType = "StartContainer"
	ExecStopContainer     ExecutionType = "StopContainer"
	ExecStopAllContainers ExecutionType = "StopAllContainers"
	ExecRemoveContainer   ExecutionType = "RemoveContainer"
	ExecCloneRepo         ExecutionType = "CloneRepo"
	ExecPullRepo          ExecutionType = "PullRepo"
	ExecBuildRepo         ExecutionType = "BuildRepo"
	ExecRunSync           ExecutionType = "RunSync"
	ExecRefreshSync       ExecutionType = "RefreshResourceSync"
	ExecDeployStack       ExecutionType = "DeployStack"
	ExecDestroyStack      ExecutionType = "DestroyStack"
	ExecLaunchServer      ExecutionType = "LaunchServer"
	ExecPruneNetworks     ExecutionType = "PruneNetworks"
	ExecPruneImages       ExecutionType = "PruneImages"
	ExecPruneContainers   ExecutionType = "PruneContainers"
	ExecRunAction         ExecutionType = "RunAction"
	ExecSleep             ExecutionType = "Sleep"
)

// ExecutionParams carries the variant payload for an Execution. Resource
// references accept an id or a name.
type ExecutionParams struct {
	Procedure      string `json:"procedure,omitempty" toml:"procedure,omitempty"`
	Build          string `json:"build,omitempty" toml:"build,omitempty"`
	Deployment     string `json:"deployment,omitempty" toml:"deployment,omitempty"`
	Server         string `json:"server,omitempty" toml:"server,omitempty"`
	Repo           string `json:"repo,omitempty" toml:"repo,omitempty"`
	Stack          string `json:"stack,omitempty" toml:"stack,omitempty"`
	Sync           string `json:"sync,omitempty" toml:"sync,omitempty"`
	Action         string `json:"action,omitempty" toml:"action,omitempty"`
	ServerTemplate string `json:"server_template,omitempty" toml:"server_template,omitempty"`

	// StopContainer / StopAllContainers.
	StopTime int `json:"stop_time,omitempty" toml:"stop_time,omitempty"`

	// Sleep.
	DurationMS int64 `json:"duration_ms,omitempty" toml:"duration_ms,omitempty"`
}

// Execution is one entry of the execute request union:
// {"type": "<Variant>", "params": {...}}.
type Execution struct {
	Type   ExecutionType   `json:"type" toml:"type"`
	Params ExecutionParams `json:"params" toml:"params"`
}

// Operation maps an execution variant to the Update operation it records.
func (e Execution) Operation() Operation {
	switch e.Type {
	case ExecRunProcedure:
		return OpRunProcedure
	case ExecRunBuild:
		return OpRunBuild
	case ExecDeploy:
		return OpDeploy
	case ExecStartContainer:
		return OpStartContainer
	case ExecStopContainer:
		return OpStopContainer
	case ExecStopAllContainers:
		return OpStopAllContainers
	case ExecRemoveContainer:
		return OpRemoveContainer
	case ExecCloneRepo:
		return OpCloneRepo
	case ExecPullRepo:
		return OpPullRepo
	case ExecBuildRepo:
		return OpBuildRepo
	case ExecRunSync:
		return OpRunSync
	case ExecRefreshSync:
		return OpRefreshSync
	case ExecDeployStack:
		return OpDeployStack
	case ExecDestroyStack:
		return OpDestroyStack
	case ExecLaunchServer:
		return OpLaunchServer
	case ExecPruneNetworks:
		return OpPruneNetworks
	case ExecPruneImages:
		return OpPruneImages
	case ExecPruneContainers:
		return OpPruneContainers
	case ExecRunAction:
		return OpRunAction
	case ExecSleep:
		return OpSleep
	default:
		return OpNone
	}
}
