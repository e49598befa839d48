package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/convoy-ops/convoy/internal/types"
)

// AddUpdate assigns the update an id (if absent), persists it, and returns
// the id.
func (s *Store) AddUpdate(u *types.Update) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.putJSON(bucketUpdates, u.ID, u); err != nil {
		return "", err
	}
	return u.ID, nil
}

// PutUpdate overwrites a persisted update.
func (s *Store) PutUpdate(u *types.Update) error {
	return s.putJSON(bucketUpdates, u.ID, u)
}

// GetUpdate loads an update by id.
func (s *Store) GetUpdate(id string) (*types.Update, error) {
	var u types.Update
	if err := s.getJSON(bucketUpdates, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateQuery filters update history listings.
type UpdateQuery struct {
	Target    *types.ResourceTarget `json:"target,omitempty"`
	Operation types.Operation       `json:"operation,omitempty"`
	Operator  string                `json:"operator,omitempty"`
	Skip      int                   `json:"skip,omitempty"`
	Limit     int                   `json:"limit,omitempty"`
}

// ListUpdates returns matching updates newest first, honoring skip/limit.
func (s *Store) ListUpdates(q UpdateQuery) ([]*types.Update, error) {
	var all []*types.Update
	err := forEach(s, bucketUpdates, func(u types.Update) bool {
		if q.Target != nil && u.Target != *q.Target {
			return true
		}
		if q.Operation != "" && u.Operation != q.Operation {
			return true
		}
		if q.Operator != "" && u.Operator != q.Operator {
			return true
		}
		uc := u
		all = append(all, &uc)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTS.After(all[j].StartTS) })

	if q.Skip > 0 {
		if q.Skip >= len(all) {
			return nil, nil
		}
		all = all[q.Skip:]
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// DeleteUpdatesForTarget removes every update on a target
// (called from resource pre-delete when history pruning is requested).
func (s *Store) DeleteUpdatesForTarget(target types.ResourceTarget) error {
	updates, err := s.ListUpdates(UpdateQuery{Target: &target, Limit: 1 << 30})
	if err != nil {
		return err
	}
	for _, u := range updates {
		if err := s.deleteKey(bucketUpdates, u.ID); err != nil {
			return err
		}
	}
	return nil
}

// FailStaleInProgress sweeps updates stuck InProgress from before the given
// process start and finalizes them failed. Returns how many were swept.
func (s *Store) FailStaleInProgress(processStart time.Time) (int, error) {
	var stale []*types.Update
	err := forEach(s, bucketUpdates, func(u types.Update) bool {
		if u.Status == types.UpdateInProgress && u.StartTS.Before(processStart) {
			uc := u
			stale = append(stale, &uc)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, u := range stale {
		u.PushLog(types.Log{
			Stage:   "abandoned",
			Stderr:  "operation was in progress when the coordinator restarted",
			Success: false,
			StartTS: time.Now().UTC(),
			EndTS:   time.Now().UTC(),
		})
		u.Finalize()
		if err := s.PutUpdate(u); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
