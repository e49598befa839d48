// Package syncer implements declarative resource syncs: TOML or YAML
// documents describing desired resources, diffed against stored state and
// applied in dependency order.
package syncer

import (
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// ResourceSpec is one declared resource in a sync document. Config is a
// partial config in patch form: declared fields overwrite, absent fields
// keep their stored (or default) value.
type ResourceSpec struct {
	Name        string         `toml:"name" yaml:"name" json:"name"`
	Description string         `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string       `toml:"tags,omitempty" yaml:"tags,omitempty" json:"tags,omitempty"`
	Deploy      bool           `toml:"deploy,omitempty" yaml:"deploy,omitempty" json:"deploy,omitempty"`
	Config      map[string]any `toml:"config,omitempty" yaml:"config,omitempty" json:"config,omitempty"`
}

// UserGroupSpec declares one user group and its members by username.
type UserGroupSpec struct {
	Name  string   `toml:"name" yaml:"name" json:"name"`
	Users []string `toml:"users,omitempty" yaml:"users,omitempty" json:"users,omitempty"`
}

// Doc is the aggregate parse of one or more sync documents.
type Doc struct {
	Servers         []ResourceSpec `toml:"server,omitempty" yaml:"server,omitempty" json:"server,omitempty"`
	Deployments     []ResourceSpec `toml:"deployment,omitempty" yaml:"deployment,omitempty" json:"deployment,omitempty"`
	Builds          []ResourceSpec `toml:"build,omitempty" yaml:"build,omitempty" json:"build,omitempty"`
	Repos           []ResourceSpec `toml:"repo,omitempty" yaml:"repo,omitempty" json:"repo,omitempty"`
	Stacks          []ResourceSpec `toml:"stack,omitempty" yaml:"stack,omitempty" json:"stack,omitempty"`
	Procedures      []ResourceSpec `toml:"procedure,omitempty" yaml:"procedure,omitempty" json:"procedure,omitempty"`
	Syncs           []ResourceSpec `toml:"resource_sync,omitempty" yaml:"resource_sync,omitempty" json:"resource_sync,omitempty"`
	Builders        []ResourceSpec `toml:"builder,omitempty" yaml:"builder,omitempty" json:"builder,omitempty"`
	Alerters        []ResourceSpec `toml:"alerter,omitempty" yaml:"alerter,omitempty" json:"alerter,omitempty"`
	ServerTemplates []ResourceSpec `toml:"server_template,omitempty" yaml:"server_template,omitempty" json:"server_template,omitempty"`
	Actions         []ResourceSpec `toml:"action,omitempty" yaml:"action,omitempty" json:"action,omitempty"`

	UserGroups []UserGroupSpec  `toml:"user_group,omitempty" yaml:"user_group,omitempty" json:"user_group,omitempty"`
	Variables  []types.Variable `toml:"variable,omitempty" yaml:"variable,omitempty" json:"variable,omitempty"`
}

// specs returns the declared specs for a resource type.
func (d *Doc) specs(typ types.ResourceType) []ResourceSpec {
	switch typ {
	case types.ResourceServer:
		return d.Servers
	case types.ResourceDeployment:
		return d.Deployments
	case types.ResourceBuild:
		return d.Builds
	case types.ResourceRepo:
		return d.Repos
	case types.ResourceStack:
		return d.Stacks
	case types.ResourceProcedure:
		return d.Procedures
	case types.ResourceResourceSync:
		return d.Syncs
	case types.ResourceBuilder:
		return d.Builders
	case types.ResourceAlerter:
		return d.Alerters
	case types.ResourceServerTemplate:
		return d.ServerTemplates
	case types.ResourceAction:
		return d.Actions
	default:
		return nil
	}
}

// merge appends another document's declarations.
func (d *Doc) merge(other *Doc) {
	d.Servers = append(d.Servers, other.Servers...)
	d.Deployments = append(d.Deployments, other.Deployments...)
	d.Builds = append(d.Builds, other.Builds...)
	d.Repos = append(d.Repos, other.Repos...)
	d.Stacks = append(d.Stacks, other.Stacks...)
	d.Procedures = append(d.Procedures, other.Procedures...)
	d.Syncs = append(d.Syncs, other.Syncs...)
	d.Builders = append(d.Builders, other.Builders...)
	d.Alerters = append(d.Alerters, other.Alerters...)
	d.ServerTemplates = append(d.ServerTemplates, other.ServerTemplates...)
	d.Actions = append(d.Actions, other.Actions...)
	d.UserGroups = append(d.UserGroups, other.UserGroups...)
	d.Variables = append(d.Variables, other.Variables...)
}

// validate rejects documents with unnamed or duplicate declarations.
func (d *Doc) validate() error {
	for _, typ := range types.AllResourceTypes() {
		seen := map[string]bool{}
		for _, spec := range d.specs(typ) {
			if spec.Name == "" {
				return oops.New(oops.InvalidConfig, "%s declaration without a name", typ)
			}
			if seen[spec.Name] {
				return oops.New(oops.InvalidConfig, "%s %q declared twice", typ, spec.Name)
			}
			seen[spec.Name] = true
		}
	}
	for _, v := range d.Variables {
		if v.Name == "" {
			return oops.New(oops.InvalidConfig, "variable declaration without a name")
		}
	}
	for _, g := range d.UserGroups {
		if g.Name == "" {
			return oops.New(oops.InvalidConfig, "user group declaration without a name")
		}
	}
	return nil
}

// ParseDoc decodes one document by file extension; bare content with no
// name parses as TOML.
func ParseDoc(name string, data []byte) (*Doc, error) {
	var doc Doc
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, oops.Wrap(oops.InvalidConfig, err, "parse %s", name)
		}
		return &doc, nil
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, oops.Wrap(oops.InvalidConfig, err, "parse %s", name)
	}
	return &doc, nil
}

// ParseDocs parses and merges a set of named documents, then validates the
// aggregate.
func ParseDocs(files map[string][]byte) (*Doc, error) {
	out := &Doc{}
	for name, data := range files {
		doc, err := ParseDoc(name, data)
		if err != nil {
			return nil, err
		}
		out.merge(doc)
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}
