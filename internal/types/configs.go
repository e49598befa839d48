package types

import (
	"fmt"
	"time"
)

// ServerConfig declares one managed host and the alert thresholds the
// monitor loop applies to it.
type ServerConfig struct {
	Address  string `json:"address" toml:"address"`   // agent base url, e.g. https://host:8120
	Passkey  string `json:"passkey" toml:"passkey"`   // bearer passkey for the agent
	Enabled  bool   `json:"enabled" toml:"enabled"`   // disabled servers are not polled
	Region   string `json:"region,omitempty" toml:"region,omitempty"`
	AutoPrune bool  `json:"auto_prune,omitempty" toml:"auto_prune,omitempty"`

	// Alert thresholds as percentages. Zero means use the default.
	CPUWarning  float64 `json:"cpu_warning,omitempty" toml:"cpu_warning,omitempty"`
	CPUCritical float64 `json:"cpu_critical,omitempty" toml:"cpu_critical,omitempty"`
	MemWarning  float64 `json:"mem_warning,omitempty" toml:"mem_warning,omitempty"`
	MemCritical float64 `json:"mem_critical,omitempty" toml:"mem_critical,omitempty"`
	DiskWarning float64 `json:"disk_warning,omitempty" toml:"disk_warning,omitempty"`
	DiskCritical float64 `json:"disk_critical,omitempty" toml:"disk_critical,omitempty"`
	// Temperature thresholds apply to each component's temperature as a
	// percentage of its critical point.
	TempWarning  float64 `json:"temp_warning,omitempty" toml:"temp_warning,omitempty"`
	TempCritical float64 `json:"temp_critical,omitempty" toml:"temp_critical,omitempty"`

	SendUnreachableAlerts bool `json:"send_unreachable_alerts" toml:"send_unreachable_alerts"`
	SendCPUAlerts         bool `json:"send_cpu_alerts" toml:"send_cpu_alerts"`
	SendMemAlerts         bool `json:"send_mem_alerts" toml:"send_mem_alerts"`
	SendDiskAlerts        bool `json:"send_disk_alerts" toml:"send_disk_alerts"`
	SendTempAlerts        bool `json:"send_temp_alerts" toml:"send_temp_alerts"`
}

// Default threshold values applied when a ServerConfig leaves them zero.
const (
	DefaultCPUWarning   = 90.0
	DefaultCPUCritical  = 99.0
	DefaultMemWarning   = 75.0
	DefaultMemCritical  = 95.0
	DefaultDiskWarning  = 75.0
	DefaultDiskCritical = 95.0
	DefaultTempWarning  = 85.0
	DefaultTempCritical = 98.0
)

// EnvVar is one environment entry on a deployment or build.
type EnvVar struct {
	Variable string `json:"variable" toml:"variable"`
	Value    string `json:"value" toml:"value"`
}

// Conversion maps a host port or path to a container port or path.
type Conversion struct {
	Local     string `json:"local" toml:"local"`
	Container string `json:"container" toml:"container"`
}

// DeploymentImage is the tagged union selecting where a deployment's image
// comes from: a plain registry image or the latest build of a Build.
type DeploymentImage struct {
	Type   string                `json:"type" toml:"type"` // "Image" | "Build"
	Params DeploymentImageParams `json:"params" toml:"params"`
}

// DeploymentImageParams carries the variant payload for DeploymentImage.
type DeploymentImageParams struct {
	Image   string `json:"image,omitempty" toml:"image,omitempty"`     // Image variant
	Account string `json:"account,omitempty" toml:"account,omitempty"` // Image variant, registry account to pull with
	BuildID string `json:"build_id,omitempty" toml:"build_id,omitempty"` // Build variant
	Version string `json:"version,omitempty" toml:"version,omitempty"`  // Build variant, empty = latest
}

// DeploymentConfig declares one long-lived container on one server.
type DeploymentConfig struct {
	ServerID     string          `json:"server_id" toml:"server_id"`
	Image        DeploymentImage `json:"image" toml:"image"`
	Network      string          `json:"network,omitempty" toml:"network,omitempty"`
	Restart      string          `json:"restart,omitempty" toml:"restart,omitempty"`
	Command      string          `json:"command,omitempty" toml:"command,omitempty"`
	Environment  []EnvVar        `json:"environment,omitempty" toml:"environment,omitempty"`
	Ports        []Conversion    `json:"ports,omitempty" toml:"ports,omitempty"`
	Volumes      []Conversion    `json:"volumes,omitempty" toml:"volumes,omitempty"`
	Labels       []EnvVar        `json:"labels,omitempty" toml:"labels,omitempty"`
	ExtraArgs    []string        `json:"extra_args,omitempty" toml:"extra_args,omitempty"`
	// After names deployments or stacks that must deploy before this one
	// in a sync's deploy pass.
	After        []string        `json:"after,omitempty" toml:"after,omitempty"`
	SendAlerts   bool            `json:"send_alerts" toml:"send_alerts"`
	WebhookEnabled bool          `json:"webhook_enabled" toml:"webhook_enabled"`
	WebhookSecret  string        `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// BuildConfig declares an image build from a git repo.
type BuildConfig struct {
	BuilderID   string   `json:"builder_id" toml:"builder_id"`
	Repo        string   `json:"repo" toml:"repo"`
	Branch      string   `json:"branch,omitempty" toml:"branch,omitempty"`
	GitProvider string   `json:"git_provider,omitempty" toml:"git_provider,omitempty"`
	GitAccount  string   `json:"git_account,omitempty" toml:"git_account,omitempty"`
	Dockerfile  string   `json:"dockerfile_path,omitempty" toml:"dockerfile_path,omitempty"`
	BuildPath   string   `json:"build_path,omitempty" toml:"build_path,omitempty"`
	BuildArgs   []EnvVar `json:"build_args,omitempty" toml:"build_args,omitempty"`
	ImageName   string   `json:"image_name,omitempty" toml:"image_name,omitempty"`
	ImageRegistry string `json:"image_registry,omitempty" toml:"image_registry,omitempty"`
	ImageAccount  string `json:"image_account,omitempty" toml:"image_account,omitempty"` // registry account for push/pull
	Version     Version  `json:"version" toml:"version"`
	WebhookEnabled bool  `json:"webhook_enabled" toml:"webhook_enabled"`
	WebhookSecret  string `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// Version is the semantic build version, auto-incremented per RunBuild.
type Version struct {
	Major int `json:"major" toml:"major"`
	Minor int `json:"minor" toml:"minor"`
	Patch int `json:"patch" toml:"patch"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Increment bumps the patch component.
func (v Version) Increment() Version {
	v.Patch++
	return v
}

// RepoConfig declares a git repo cloned onto a server.
type RepoConfig struct {
	ServerID    string `json:"server_id" toml:"server_id"`
	Repo        string `json:"repo" toml:"repo"`
	Branch      string `json:"branch,omitempty" toml:"branch,omitempty"`
	GitProvider string `json:"git_provider,omitempty" toml:"git_provider,omitempty"`
	GitAccount  string `json:"git_account,omitempty" toml:"git_account,omitempty"`
	Path        string `json:"path,omitempty" toml:"path,omitempty"`
	OnClone     string `json:"on_clone,omitempty" toml:"on_clone,omitempty"` // command run after clone
	OnPull      string `json:"on_pull,omitempty" toml:"on_pull,omitempty"`   // command run after pull
	WebhookEnabled bool   `json:"webhook_enabled" toml:"webhook_enabled"`
	WebhookSecret  string `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// StackSource selects where a stack's compose files come from.
type StackSource struct {
	Type   string            `json:"type" toml:"type"` // "UiDefined" | "Files" | "Git"
	Params StackSourceParams `json:"params" toml:"params"`
}

// StackSourceParams carries the variant payload for StackSource.
type StackSourceParams struct {
	FileContents string   `json:"file_contents,omitempty" toml:"file_contents,omitempty"` // UiDefined
	RunDirectory string   `json:"run_directory,omitempty" toml:"run_directory,omitempty"` // Files | Git
	FilePaths    []string `json:"file_paths,omitempty" toml:"file_paths,omitempty"`
	Repo         string   `json:"repo,omitempty" toml:"repo,omitempty"`   // Git
	Branch       string   `json:"branch,omitempty" toml:"branch,omitempty"`
	GitAccount   string   `json:"git_account,omitempty" toml:"git_account,omitempty"`
}

// StackConfig declares a docker-compose unit on a server.
type StackConfig struct {
	ServerID    string      `json:"server_id" toml:"server_id"`
	Source      StackSource `json:"source" toml:"source"`
	Environment []EnvVar    `json:"environment,omitempty" toml:"environment,omitempty"`
	ExtraArgs   []string    `json:"extra_args,omitempty" toml:"extra_args,omitempty"`
	After       []string    `json:"after,omitempty" toml:"after,omitempty"`
	SendAlerts  bool        `json:"send_alerts" toml:"send_alerts"`
	WebhookEnabled bool     `json:"webhook_enabled" toml:"webhook_enabled"`
	WebhookSecret  string   `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// ProcedureStageKind selects how a stage runs its items.
type ProcedureStageKind string

const (
	StageSequence ProcedureStageKind = "Sequence"
	StageParallel ProcedureStageKind = "Parallel"
)

// ProcedureStageItem is one execution inside a stage.
type ProcedureStageItem struct {
	Execution Execution `json:"execution" toml:"execution"`
	Enabled   bool      `json:"enabled" toml:"enabled"`
}

// ProcedureStage is one ordered step of a procedure.
type ProcedureStage struct {
	Name  string               `json:"name,omitempty" toml:"name,omitempty"`
	Kind  ProcedureStageKind   `json:"kind" toml:"kind"`
	Items []ProcedureStageItem `json:"items" toml:"items"`
}

// ProcedureConfig is an ordered list of stages of executions.
type ProcedureConfig struct {
	Stages         []ProcedureStage `json:"stages" toml:"stages"`
	WebhookEnabled bool             `json:"webhook_enabled" toml:"webhook_enabled"`
	WebhookSecret  string           `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// SyncFileSource selects where a ResourceSync reads its documents from.
type SyncFileSource struct {
	Type   string               `json:"type" toml:"type"` // "UiDefined" | "FilesOnHost" | "Git"
	Params SyncFileSourceParams `json:"params" toml:"params"`
}

// SyncFileSourceParams carries the variant payload for SyncFileSource.
type SyncFileSourceParams struct {
	FileContents string `json:"file_contents,omitempty" toml:"file_contents,omitempty"` // UiDefined
	ResourcePath string `json:"resource_path,omitempty" toml:"resource_path,omitempty"` // FilesOnHost | Git subpath
	Repo         string `json:"repo,omitempty" toml:"repo,omitempty"`                   // Git
	Branch       string `json:"branch,omitempty" toml:"branch,omitempty"`
	GitAccount   string `json:"git_account,omitempty" toml:"git_account,omitempty"`
}

// ResourceSyncConfig declares a declarative-state document applied to the
// system, with optional pruning of undeclared resources.
type ResourceSyncConfig struct {
	Source       SyncFileSource `json:"source" toml:"source"`
	MatchTags    []string       `json:"match_tags,omitempty" toml:"match_tags,omitempty"`
	Delete       bool           `json:"delete" toml:"delete"`
	DeployOnSync bool           `json:"deploy_on_sync" toml:"deploy_on_sync"`
	WebhookEnabled bool         `json:"webhook_enabled" toml:"webhook_enabled"`
	WebhookSecret  string       `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// BuilderConfig is the tagged union over builder endpoints: run builds on an
// attached server, or launch a short-lived cloud instance.
type BuilderConfig struct {
	Type   string              `json:"type" toml:"type"` // "Server" | "Aws"
	Params BuilderConfigParams `json:"params" toml:"params"`
}

// BuilderConfigParams carries the variant payload for BuilderConfig.
type BuilderConfigParams struct {
	ServerID string `json:"server_id,omitempty" toml:"server_id,omitempty"` // Server variant

	// Aws variant.
	Region       string `json:"region,omitempty" toml:"region,omitempty"`
	InstanceType string `json:"instance_type,omitempty" toml:"instance_type,omitempty"`
	AmiID        string `json:"ami_id,omitempty" toml:"ami_id,omitempty"`
	KeyPairName  string `json:"key_pair_name,omitempty" toml:"key_pair_name,omitempty"`
}

// AlerterEndpoint is the tagged union over alert sinks.
type AlerterEndpoint struct {
	Type   string                `json:"type" toml:"type"` // "Slack" | "Discord" | "Ntfy" | "Custom" | "Mqtt"
	Params AlerterEndpointParams `json:"params" toml:"params"`
}

// AlerterEndpointParams carries the variant payload for AlerterEndpoint.
type AlerterEndpointParams struct {
	URL string `json:"url,omitempty" toml:"url,omitempty"` // Slack | Discord | Ntfy | Custom

	// Mqtt variant.
	Broker string `json:"broker,omitempty" toml:"broker,omitempty"`
	Topic  string `json:"topic,omitempty" toml:"topic,omitempty"`
	Username string `json:"username,omitempty" toml:"username,omitempty"`
	Password string `json:"password,omitempty" toml:"password,omitempty"`
}

// AlerterConfig declares one alert sink and which alerts reach it.
type AlerterConfig struct {
	Endpoint AlerterEndpoint `json:"endpoint" toml:"endpoint"`
	Enabled  bool            `json:"enabled" toml:"enabled"`
	// AlertTypes restricts delivery; empty means all variants.
	AlertTypes []AlertVariant `json:"alert_types,omitempty" toml:"alert_types,omitempty"`
	// ResourceWhitelist/Blacklist restrict by alert target id.
	ResourceWhitelist []string `json:"resource_whitelist,omitempty" toml:"resource_whitelist,omitempty"`
	ResourceBlacklist []string `json:"resource_blacklist,omitempty" toml:"resource_blacklist,omitempty"`
}

// ServerTemplateConfig declares a cloud-launchable server shape.
type ServerTemplateConfig struct {
	Type   string                     `json:"type" toml:"type"` // "Aws" | "Hetzner"
	Params ServerTemplateConfigParams `json:"params" toml:"params"`
}

// ServerTemplateConfigParams carries the variant payload for ServerTemplateConfig.
type ServerTemplateConfigParams struct {
	Region       string `json:"region,omitempty" toml:"region,omitempty"`
	InstanceType string `json:"instance_type,omitempty" toml:"instance_type,omitempty"`
	AmiID        string `json:"ami_id,omitempty" toml:"ami_id,omitempty"`
	VolumeGB     int    `json:"volume_gb,omitempty" toml:"volume_gb,omitempty"`
	UserData     string `json:"user_data,omitempty" toml:"user_data,omitempty"`
	Port         int    `json:"port,omitempty" toml:"port,omitempty"`
}

// ActionConfig is a named scripted operation attached to the system.
type ActionConfig struct {
	FileContents   string `json:"file_contents,omitempty" toml:"file_contents,omitempty"`
	Shell          string `json:"shell,omitempty" toml:"shell,omitempty"`
	ServerID       string `json:"server_id,omitempty" toml:"server_id,omitempty"`
	WebhookEnabled bool   `json:"webhook_enabled" toml:"webhook_enabled"`
	WebhookSecret  string `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// Concrete resource aliases. Info types are runtime caches; resources
// without one use the empty struct.

type NoInfo struct{}

// BuildInfo caches the last built version and timestamp.
type BuildInfo struct {
	LastBuiltAt time.Time `json:"last_built_at,omitempty"`
	BuiltVersion Version  `json:"built_version,omitempty"`
}

// RepoInfo caches the last clone/pull result.
type RepoInfo struct {
	LastPulledAt time.Time `json:"last_pulled_at,omitempty"`
	LatestHash   string    `json:"latest_hash,omitempty"`
	Cloned       bool      `json:"cloned,omitempty"`
}

// SyncInfo caches the last sync outcome and any pending diff.
type SyncInfo struct {
	LastSyncTS      time.Time `json:"last_sync_ts,omitempty"`
	PendingError    string    `json:"pending_error,omitempty"`
	PendingHash     string    `json:"pending_hash,omitempty"`
	ResourceUpdates int       `json:"resource_updates,omitempty"`
}

type (
	Server         = Resource[ServerConfig, NoInfo]
	Deployment     = Resource[DeploymentConfig, NoInfo]
	Build          = Resource[BuildConfig, BuildInfo]
	Repo           = Resource[RepoConfig, RepoInfo]
	Stack          = Resource[StackConfig, NoInfo]
	Procedure      = Resource[ProcedureConfig, NoInfo]
	ResourceSync   = Resource[ResourceSyncConfig, SyncInfo]
	Builder        = Resource[BuilderConfig, NoInfo]
	Alerter        = Resource[AlerterConfig, NoInfo]
	ServerTemplate = Resource[ServerTemplateConfig, NoInfo]
	Action         = Resource[ActionConfig, NoInfo]
)
