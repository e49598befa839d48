package types

import "time"

// Severity orders alert levels.
type Severity string

const (
	SeverityOk       Severity = "Ok"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// Rank returns the ordering value of a severity for comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// AlertVariant names what kind of condition an alert observes.
type AlertVariant string

const (
	AlertServerUnreachable           AlertVariant = "ServerUnreachable"
	AlertServerCPU                   AlertVariant = "ServerCpu"
	AlertServerMem                   AlertVariant = "ServerMem"
	AlertServerDisk                  AlertVariant = "ServerDisk"
	AlertServerTemp                  AlertVariant = "ServerTemp"
	AlertContainerStateChange        AlertVariant = "ContainerStateChange"
	AlertAwsBuilderTerminationFailed AlertVariant = "AwsBuilderTerminationFailed"
	AlertTest                        AlertVariant = "Test"
)

// AlertData carries variant-specific fields. Only the fields relevant to
// the variant are populated.
type AlertData struct {
	Name    string  `json:"name,omitempty"`    // resource name for display
	Region  string  `json:"region,omitempty"`  // ServerUnreachable
	Err     string  `json:"error,omitempty"`   // ServerUnreachable, AwsBuilderTerminationFailed
	Percent float64 `json:"percent,omitempty"` // ServerCpu / ServerMem / ServerDisk / ServerTemp
	Path    string  `json:"path,omitempty"`    // ServerDisk mount path, ServerTemp component label
	From    string  `json:"from,omitempty"`    // ContainerStateChange previous state
	To      string  `json:"to,omitempty"`      // ContainerStateChange new state
	InstanceID string `json:"instance_id,omitempty"` // AwsBuilderTerminationFailed
}

// Alert is an observation of a threshold breach or state change, open until
// the condition clears. At most one unresolved alert exists per
// (target, variant).
type Alert struct {
	ID         string         `json:"id"`
	TS         time.Time      `json:"ts"`
	Resolved   bool           `json:"resolved"`
	ResolvedTS time.Time      `json:"resolved_ts,omitempty"`
	Severity   Severity       `json:"severity"`
	Target     ResourceTarget `json:"target"`
	Variant    AlertVariant   `json:"variant"`
	Data       AlertData      `json:"data"`
}
