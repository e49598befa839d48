package types

import "time"

// Operation names the kind of executed operation an Update records.
type Operation string

const (
	OpNone                Operation = "None"
	OpCreateResource      Operation = "CreateResource"
	OpUpdateResource      Operation = "UpdateResource"
	OpDeleteResource      Operation = "DeleteResource"
	OpRenameResource      Operation = "RenameResource"
	OpRunProcedure        Operation = "RunProcedure"
	OpRunBuild            Operation = "RunBuild"
	OpDeploy              Operation = "Deploy"
	OpStartContainer      Operation = "StartContainer"
	OpStopContainer       Operation = "StopContainer"
	OpStopAllContainers   Operation = "StopAllContainers"
	OpRemoveContainer     Operation = "RemoveContainer"
	OpCloneRepo           Operation = "CloneRepo"
	OpPullRepo            Operation = "PullRepo"
	OpBuildRepo           Operation = "BuildRepo"
	OpRunSync             Operation = "RunSync"
	OpRefreshSync         Operation = "RefreshResourceSync"
	OpDeployStack         Operation = "DeployStack"
	OpDestroyStack        Operation = "DestroyStack"
	OpLaunchServer        Operation = "LaunchServer"
	OpPruneNetworks       Operation = "PruneNetworks"
	OpPruneImages         Operation = "PruneImages"
	OpPruneContainers     Operation = "PruneContainers"
	OpRunAction           Operation = "RunAction"
	OpSleep               Operation = "Sleep"
)

// UpdateStatus is the lifecycle state of an Update.
type UpdateStatus string

const (
	UpdateQueued     UpdateStatus = "Queued"
	UpdateInProgress UpdateStatus = "InProgress"
	UpdateComplete   UpdateStatus = "Complete"
)

// Log is one stage of an Update: a command with its captured output.
type Log struct {
	Stage   string    `json:"stage"`
	Command string    `json:"command,omitempty"`
	Stdout  string    `json:"stdout,omitempty"`
	Stderr  string    `json:"stderr,omitempty"`
	Success bool      `json:"success"`
	StartTS time.Time `json:"start_ts"`
	EndTS   time.Time `json:"end_ts"`
}

// SimpleLog builds a successful log with stdout only.
func SimpleLog(stage, stdout string) Log {
	now := time.Now().UTC()
	return Log{Stage: stage, Stdout: stdout, Success: true, StartTS: now, EndTS: now}
}

// ErrorLog builds a failed log carrying the error text on stderr.
func ErrorLog(stage string, err error) Log {
	now := time.Now().UTC()
	return Log{Stage: stage, Stderr: err.Error(), Success: false, StartTS: now, EndTS: now}
}

// Update is the append-only audit record of one executed operation.
type Update struct {
	ID        string         `json:"id"`
	Target    ResourceTarget `json:"target"`
	Operation Operation      `json:"operation"`
	Operator  string         `json:"operator"` // user id
	Status    UpdateStatus   `json:"status"`
	Success   bool           `json:"success"`
	StartTS   time.Time      `json:"start_ts"`
	EndTS     time.Time      `json:"end_ts,omitempty"`
	Version   Version        `json:"version,omitempty"` // set for build operations
	Logs      []Log          `json:"logs,omitempty"`
}

// Finalize completes the update exactly once: status Complete, end
// timestamp set, success the AND of all log successes. Idempotent.
func (u *Update) Finalize() {
	if u.Status == UpdateComplete {
		return
	}
	u.Status = UpdateComplete
	u.EndTS = time.Now().UTC()
	u.Success = true
	for _, l := range u.Logs {
		if !l.Success {
			u.Success = false
			break
		}
	}
}

// PushLog appends a log entry preserving append order.
func (u *Update) PushLog(l Log) { u.Logs = append(u.Logs, l) }

// PushError appends a failed log for the given stage.
func (u *Update) PushError(stage string, err error) {
	u.PushLog(ErrorLog(stage, err))
}

// UpdateListItem is the broadcast/listing projection of an Update, with the
// operator's username joined in.
type UpdateListItem struct {
	ID        string         `json:"id"`
	Target    ResourceTarget `json:"target"`
	Operation Operation      `json:"operation"`
	Operator  string         `json:"operator"`
	Username  string         `json:"username,omitempty"`
	Status    UpdateStatus   `json:"status"`
	Success   bool           `json:"success"`
	StartTS   time.Time      `json:"start_ts"`
	Version   Version        `json:"version,omitempty"`
}
