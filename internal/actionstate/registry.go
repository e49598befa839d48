// Package actionstate tracks which operations are in flight per resource
// and enforces the one-operation-at-a-time discipline with scoped guards.
package actionstate

import (
	"sync"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// Flag selects which ActionState field an operation sets.
type Flag string

const (
	Building   Flag = "building"
	Deploying  Flag = "deploying"
	Starting   Flag = "starting"
	Stopping   Flag = "stopping"
	Removing   Flag = "removing"
	Destroying Flag = "destroying"
	Cloning    Flag = "cloning"
	Pulling    Flag = "pulling"
	Syncing    Flag = "syncing"
	Pruning    Flag = "pruning"
	Launching  Flag = "launching"
	Running    Flag = "running"
)

// entry is the mutex-guarded state of one resource id. Entries are created
// lazily and never removed; the map is bounded by total resource count.
type entry struct {
	mu    sync.Mutex
	state types.ActionState
}

// Registry maps (resource type, id) to busy state.
type Registry struct {
	mu      sync.Mutex
	entries map[types.ResourceTarget]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[types.ResourceTarget]*entry)}
}

func (r *Registry) entryFor(target types.ResourceTarget) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[target]
	if !ok {
		e = &entry{}
		r.entries[target] = e
	}
	return e
}

// Guard releases a held action flag when closed. Close is idempotent and
// must run on every exit path (defer it immediately after Acquire).
type Guard struct {
	entry *entry
	once  sync.Once
}

// Close resets the resource's state to defaults.
func (g *Guard) Close() {
	g.once.Do(func() {
		g.entry.mu.Lock()
		g.entry.state = types.ActionState{}
		g.entry.mu.Unlock()
	})
}

// Acquire sets the requested flag and returns a guard, or fails fast with
// Busy when any operation is already in flight on the resource.
func (r *Registry) Acquire(target types.ResourceTarget, flag Flag) (*Guard, error) {
	e := r.entryFor(target)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Busy() {
		return nil, oops.New(oops.Busy, "%s is busy: %s already in flight", target, activeFlag(e.state))
	}
	setFlag(&e.state, flag)
	return &Guard{entry: e}, nil
}

// Get returns a copy of the resource's current state.
func (r *Registry) Get(target types.ResourceTarget) types.ActionState {
	e := r.entryFor(target)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Drop erases a resource's state (called when the resource is deleted).
func (r *Registry) Drop(target types.ResourceTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, target)
}

func setFlag(s *types.ActionState, f Flag) {
	switch f {
	case Building:
		s.Building = true
	case Deploying:
		s.Deploying = true
	case Starting:
		s.Starting = true
	case Stopping:
		s.Stopping = true
	case Removing:
		s.Removing = true
	case Destroying:
		s.Destroying = true
	case Cloning:
		s.Cloning = true
	case Pulling:
		s.Pulling = true
	case Syncing:
		s.Syncing = true
	case Pruning:
		s.Pruning = true
	case Launching:
		s.Launching = true
	case Running:
		s.Running = true
	}
}

// activeFlag names the flag currently set, for Busy error messages.
func activeFlag(s types.ActionState) Flag {
	switch {
	case s.Building:
		return Building
	case s.Deploying:
		return Deploying
	case s.Starting:
		return Starting
	case s.Stopping:
		return Stopping
	case s.Removing:
		return Removing
	case s.Destroying:
		return Destroying
	case s.Cloning:
		return Cloning
	case s.Pulling:
		return Pulling
	case s.Syncing:
		return Syncing
	case s.Pruning:
		return Pruning
	case s.Launching:
		return Launching
	default:
		return Running
	}
}
