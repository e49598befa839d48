// Package types defines the resource data model shared by the store, the
// execution dispatcher, the sync engine, and the HTTP surface.
package types

import (
	"fmt"
	"time"
)

// ResourceType tags every managed resource kind.
type ResourceType string

const (
	ResourceSystem         ResourceType = "System"
	ResourceServer         ResourceType = "Server"
	ResourceDeployment     ResourceType = "Deployment"
	ResourceBuild          ResourceType = "Build"
	ResourceRepo           ResourceType = "Repo"
	ResourceStack          ResourceType = "Stack"
	ResourceProcedure      ResourceType = "Procedure"
	ResourceResourceSync   ResourceType = "ResourceSync"
	ResourceBuilder        ResourceType = "Builder"
	ResourceAlerter        ResourceType = "Alerter"
	ResourceServerTemplate ResourceType = "ServerTemplate"
	ResourceAction         ResourceType = "Action"
)

// AllResourceTypes lists every user-manageable resource type
// (System is a permission subject only).
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceServer, ResourceDeployment, ResourceBuild, ResourceRepo,
		ResourceStack, ResourceProcedure, ResourceResourceSync,
		ResourceBuilder, ResourceAlerter, ResourceServerTemplate,
		ResourceAction,
	}
}

// ResourceTarget identifies the subject of an Update, a Permission, or a
// webhook: a (type, id) pair used uniformly across the system.
type ResourceTarget struct {
	Type ResourceType `json:"type"`
	ID   string       `json:"id"`
}

func (t ResourceTarget) String() string {
	return fmt.Sprintf("%s/%s", t.Type, t.ID)
}

// SystemTarget is the target for operations without a specific resource.
func SystemTarget() ResourceTarget {
	return ResourceTarget{Type: ResourceSystem, ID: "system"}
}

// Resource is the generic envelope every managed resource is stored in.
// Config is the polymorphic typed config for the resource's type; Info is a
// runtime-maintained cache the store may update without a user write.
type Resource[C any, I any] struct {
	ID          string       `json:"id"`
	Type        ResourceType `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Config      C            `json:"config"`
	Info        I            `json:"info,omitempty"`
}

// Target returns the resource's target pair.
func (r *Resource[C, I]) Target() ResourceTarget {
	return ResourceTarget{Type: r.Type, ID: r.ID}
}

// ListItem is the projection returned by permission-gated listings.
type ListItem struct {
	ID          string       `json:"id"`
	Type        ResourceType `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TagBehavior selects how a query's tag set matches a resource's tags.
type TagBehavior string

const (
	TagsMatchAll TagBehavior = "All"
	TagsMatchAny TagBehavior = "Any"
)

// Query filters listings by ids, names, and tag sets.
type Query struct {
	IDs         []string    `json:"ids,omitempty"`
	Names       []string    `json:"names,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	TagBehavior TagBehavior `json:"tag_behavior,omitempty"`
}

// Matches reports whether a resource's identifying fields pass the query.
func (q Query) Matches(id, name string, tags []string) bool {
	if len(q.IDs) > 0 && !contains(q.IDs, id) {
		return false
	}
	if len(q.Names) > 0 && !contains(q.Names, name) {
		return false
	}
	if len(q.Tags) > 0 {
		switch q.TagBehavior {
		case TagsMatchAny:
			any := false
			for _, t := range q.Tags {
				if contains(tags, t) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		default: // All
			for _, t := range q.Tags {
				if !contains(tags, t) {
					return false
				}
			}
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Tag is a user-defined label attachable to any resource.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Owner string `json:"owner,omitempty"` // user id of creator
}

// Variable is a named value interpolated as [[NAME]] in configs.
type Variable struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	IsSecret    bool   `json:"is_secret,omitempty"`
}
