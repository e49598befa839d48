package store

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// Collection provides typed CRUD over one resource type's bucket.
type Collection[C any, I any] struct {
	store    *Store
	typ      types.ResourceType
	validate func(C) error
}

// SetValidator installs a config check run on every Create and
// UpdateConfig. Installed by OpenDB for configs carrying cross-resource
// references.
func (c *Collection[C, I]) SetValidator(fn func(C) error) { c.validate = fn }

// NewCollection binds a typed collection to the store.
func NewCollection[C any, I any](s *Store, typ types.ResourceType) *Collection[C, I] {
	return &Collection[C, I]{store: s, typ: typ}
}

// Create inserts a new resource with a fresh id. Fails with AlreadyExists
// when the name is taken within the type.
func (c *Collection[C, I]) Create(name, description string, tags []string, config C) (*types.Resource[C, I], error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, oops.New(oops.InvalidConfig, "%s: name must not be empty", c.typ)
	}
	if _, err := c.GetByName(name); err == nil {
		return nil, oops.New(oops.AlreadyExists, "%s named %q already exists", c.typ, name)
	}
	if c.validate != nil {
		if err := c.validate(config); err != nil {
			return nil, err
		}
	}

	res := &types.Resource[C, I]{
		ID:          uuid.NewString(),
		Type:        c.typ,
		Name:        name,
		Description: description,
		Tags:        tags,
		UpdatedAt:   time.Now().UTC(),
		Config:      config,
	}
	if err := c.store.putJSON(resourceBucket(c.typ), res.ID, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Get loads a resource by id or, failing that, by name.
func (c *Collection[C, I]) Get(idOrName string) (*types.Resource[C, I], error) {
	var res types.Resource[C, I]
	err := c.store.getJSON(resourceBucket(c.typ), idOrName, &res)
	if err == nil {
		return &res, nil
	}
	if !oops.Is(err, oops.NotFound) {
		return nil, err
	}
	return c.GetByName(idOrName)
}

// GetByName scans the bucket for a resource with the given name.
func (c *Collection[C, I]) GetByName(name string) (*types.Resource[C, I], error) {
	var found *types.Resource[C, I]
	err := forEach(c.store, resourceBucket(c.typ), func(r types.Resource[C, I]) bool {
		if r.Name == name {
			found = &r
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, oops.New(oops.NotFound, "no %s named %q", c.typ, name)
	}
	return found, nil
}

// Put overwrites a resource record, bumping its updated-at timestamp.
func (c *Collection[C, I]) Put(res *types.Resource[C, I]) error {
	res.UpdatedAt = time.Now().UTC()
	return c.store.putJSON(resourceBucket(c.typ), res.ID, res)
}

// UpdateConfig merges a partial config over the stored one.
func (c *Collection[C, I]) UpdateConfig(id string, patch ConfigPatch) (*types.Resource[C, I], error) {
	res, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	merged, err := ApplyPatch(res.Config, patch)
	if err != nil {
		return nil, oops.Wrap(oops.InvalidConfig, err, "apply %s config patch", c.typ)
	}
	if c.validate != nil {
		if err := c.validate(merged); err != nil {
			return nil, err
		}
	}
	res.Config = merged
	if err := c.Put(res); err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateInfo overwrites only the runtime info cache without touching
// config or updated-at ordering semantics for user edits.
func (c *Collection[C, I]) UpdateInfo(id string, info I) error {
	res, err := c.Get(id)
	if err != nil {
		return err
	}
	res.Info = info
	return c.store.putJSON(resourceBucket(c.typ), res.ID, res)
}

// Rename changes a resource's name, enforcing per-type uniqueness.
func (c *Collection[C, I]) Rename(id, newName string) (*types.Resource[C, I], error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, oops.New(oops.InvalidConfig, "%s: name must not be empty", c.typ)
	}
	if existing, err := c.GetByName(newName); err == nil && existing.ID != id {
		return nil, oops.New(oops.AlreadyExists, "%s named %q already exists", c.typ, newName)
	}
	res, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	res.Name = newName
	if err := c.Put(res); err != nil {
		return nil, err
	}
	return res, nil
}

// Delete removes the record and returns the deleted resource.
func (c *Collection[C, I]) Delete(id string) (*types.Resource[C, I], error) {
	res, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	if err := c.store.deleteKey(resourceBucket(c.typ), res.ID); err != nil {
		return nil, err
	}
	return res, nil
}

// List returns all resources passing the query, sorted by name.
func (c *Collection[C, I]) List(q types.Query) ([]*types.Resource[C, I], error) {
	var out []*types.Resource[C, I]
	err := forEach(c.store, resourceBucket(c.typ), func(r types.Resource[C, I]) bool {
		if q.Matches(r.ID, r.Name, r.Tags) {
			rc := r
			out = append(out, &rc)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListItems returns the list-item projection of List.
func (c *Collection[C, I]) ListItems(q types.Query) ([]types.ListItem, error) {
	full, err := c.List(q)
	if err != nil {
		return nil, err
	}
	items := make([]types.ListItem, 0, len(full))
	for _, r := range full {
		items = append(items, types.ListItem{
			ID: r.ID, Type: r.Type, Name: r.Name,
			Description: r.Description, Tags: r.Tags, UpdatedAt: r.UpdatedAt,
		})
	}
	return items, nil
}

// RawResource is the untyped envelope used by cross-type operations
// (tag detachment, generic listings).
type RawResource struct {
	ID          string             `json:"id"`
	Type        types.ResourceType `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Config      json.RawMessage    `json:"config"`
}

// ListRaw lists a resource type without decoding its config.
func (s *Store) ListRaw(typ types.ResourceType, q types.Query) ([]RawResource, error) {
	var out []RawResource
	err := forEach(s, resourceBucket(typ), func(r RawResource) bool {
		if q.Matches(r.ID, r.Name, r.Tags) {
			out = append(out, r)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DetachTag removes a tag id from every resource of every type.
func (s *Store) DetachTag(tagID string) error {
	for _, typ := range types.AllResourceTypes() {
		bucket := resourceBucket(typ)
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucket)
			type edit struct {
				key  []byte
				data []byte
			}
			var edits []edit
			err := b.ForEach(func(k, v []byte) error {
				var raw map[string]json.RawMessage
				if err := json.Unmarshal(v, &raw); err != nil {
					return nil
				}
				var tags []string
				if err := json.Unmarshal(raw["tags"], &tags); err != nil {
					return nil
				}
				kept := tags[:0]
				removed := false
				for _, t := range tags {
					if t == tagID {
						removed = true
						continue
					}
					kept = append(kept, t)
				}
				if !removed {
					return nil
				}
				raw["tags"], _ = json.Marshal(kept)
				data, err := json.Marshal(raw)
				if err != nil {
					return nil
				}
				kc := make([]byte, len(k))
				copy(kc, k)
				edits = append(edits, edit{key: kc, data: data})
				return nil
			})
			if err != nil {
				return err
			}
			for _, e := range edits {
				if err := b.Put(e.key, e.data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return oops.Wrap(oops.Storage, err, "detach tag from %s", typ)
		}
	}
	return nil
}
