package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// OpenAlert persists a new unresolved alert. The (target, variant)
// uniqueness invariant is enforced here: an existing unresolved alert at
// the same severity is returned unchanged instead of opening a duplicate.
// When the severity changed, the existing alert is resolved and returned
// as superseded, and a fresh alert opens at the new level.
func (s *Store) OpenAlert(a *types.Alert) (opened, superseded *types.Alert, created bool, err error) {
	existing, err := s.UnresolvedAlert(a.Target, a.Variant)
	if err != nil && !oops.Is(err, oops.NotFound) {
		return nil, nil, false, err
	}
	if existing != nil {
		if existing.Severity == a.Severity {
			return existing, nil, false, nil
		}
		existing.Resolved = true
		existing.ResolvedTS = time.Now().UTC()
		if err := s.putJSON(bucketAlerts, existing.ID, existing); err != nil {
			return nil, nil, false, err
		}
		superseded = existing
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.TS.IsZero() {
		a.TS = time.Now().UTC()
	}
	a.Resolved = false
	if err := s.putJSON(bucketAlerts, a.ID, a); err != nil {
		return nil, nil, false, err
	}
	return a, superseded, true, nil
}

// ResolveAlert stamps an alert resolved. Returns the resolved alert, or
// nil when no unresolved alert exists for the pair.
func (s *Store) ResolveAlert(target types.ResourceTarget, variant types.AlertVariant) (*types.Alert, error) {
	a, err := s.UnresolvedAlert(target, variant)
	if err != nil {
		if oops.Is(err, oops.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	a.Resolved = true
	a.ResolvedTS = time.Now().UTC()
	if err := s.putJSON(bucketAlerts, a.ID, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UnresolvedAlert finds the open alert for a (target, variant) pair.
func (s *Store) UnresolvedAlert(target types.ResourceTarget, variant types.AlertVariant) (*types.Alert, error) {
	var found *types.Alert
	err := forEach(s, bucketAlerts, func(a types.Alert) bool {
		if !a.Resolved && a.Target == target && a.Variant == variant {
			ac := a
			found = &ac
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, oops.New(oops.NotFound, "no unresolved %s alert on %s", variant, target)
	}
	return found, nil
}

// AlertQuery filters alert listings.
type AlertQuery struct {
	Target     *types.ResourceTarget `json:"target,omitempty"`
	Unresolved bool                  `json:"unresolved,omitempty"`
	Limit      int                   `json:"limit,omitempty"`
}

// ListAlerts returns matching alerts newest first.
func (s *Store) ListAlerts(q AlertQuery) ([]*types.Alert, error) {
	var out []*types.Alert
	err := forEach(s, bucketAlerts, func(a types.Alert) bool {
		if q.Target != nil && a.Target != *q.Target {
			return true
		}
		if q.Unresolved && a.Resolved {
			return true
		}
		ac := a
		out = append(out, &ac)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.After(out[j].TS) })
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ResolveAlertsForTarget resolves every open alert on a target
// (called from resource pre-delete). Returns the resolved alerts.
func (s *Store) ResolveAlertsForTarget(target types.ResourceTarget) ([]*types.Alert, error) {
	open, err := s.ListAlerts(AlertQuery{Target: &target, Unresolved: true, Limit: 1 << 30})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, a := range open {
		a.Resolved = true
		a.ResolvedTS = now
		if err := s.putJSON(bucketAlerts, a.ID, a); err != nil {
			return nil, err
		}
	}
	return open, nil
}

// PruneAlerts removes resolved alerts older than the cutoff. Returns how
// many were removed.
func (s *Store) PruneAlerts(olderThan time.Time) (int, error) {
	var victims []string
	err := forEach(s, bucketAlerts, func(a types.Alert) bool {
		if a.Resolved && a.TS.Before(olderThan) {
			victims = append(victims, a.ID)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, id := range victims {
		if err := s.deleteKey(bucketAlerts, id); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}

// statsRecord is one persisted server stats sample.
type statsRecord struct {
	ServerID string            `json:"server_id"`
	TS       time.Time         `json:"ts"`
	Stats    types.SystemStats `json:"stats"`
}

// RecordStats persists a server stats sample for threshold history.
func (s *Store) RecordStats(serverID string, stats types.SystemStats) error {
	rec := statsRecord{ServerID: serverID, TS: stats.PolledAt, Stats: stats}
	key := serverID + "::" + stats.PolledAt.UTC().Format(time.RFC3339Nano)
	return s.putJSON(bucketStats, key, rec)
}

// PruneStats removes stats samples older than the cutoff. Returns how many
// were removed.
func (s *Store) PruneStats(olderThan time.Time) (int, error) {
	var victims []string
	err := forEach(s, bucketStats, func(r statsRecord) bool {
		if r.TS.Before(olderThan) {
			victims = append(victims, r.ServerID+"::"+r.TS.UTC().Format(time.RFC3339Nano))
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, key := range victims {
		if err := s.deleteKey(bucketStats, key); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}
