package store

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// CreateTag inserts a tag, enforcing name uniqueness.
func (s *Store) CreateTag(t *types.Tag) error {
	if t.Name == "" {
		return oops.New(oops.InvalidConfig, "tag name must not be empty")
	}
	if _, err := s.GetTagByName(t.Name); err == nil {
		return oops.New(oops.AlreadyExists, "tag %q already exists", t.Name)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.putJSON(bucketTags, t.ID, t)
}

// GetTag loads a tag by id or name.
func (s *Store) GetTag(idOrName string) (*types.Tag, error) {
	var t types.Tag
	err := s.getJSON(bucketTags, idOrName, &t)
	if err == nil {
		return &t, nil
	}
	if !oops.Is(err, oops.NotFound) {
		return nil, err
	}
	return s.GetTagByName(idOrName)
}

// GetTagByName scans for a tag with the given name.
func (s *Store) GetTagByName(name string) (*types.Tag, error) {
	var found *types.Tag
	err := forEach(s, bucketTags, func(t types.Tag) bool {
		if t.Name == name {
			tc := t
			found = &tc
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, oops.New(oops.NotFound, "no tag named %q", name)
	}
	return found, nil
}

// PutTag overwrites a tag record.
func (s *Store) PutTag(t *types.Tag) error {
	return s.putJSON(bucketTags, t.ID, t)
}

// DeleteTag removes the tag and detaches it from every resource.
func (s *Store) DeleteTag(id string) error {
	if err := s.DetachTag(id); err != nil {
		return err
	}
	return s.deleteKey(bucketTags, id)
}

// ListTags returns all tags sorted by name.
func (s *Store) ListTags() ([]*types.Tag, error) {
	var out []*types.Tag
	err := forEach(s, bucketTags, func(t types.Tag) bool {
		tc := t
		out = append(out, &tc)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PutVariable upserts a variable keyed by name.
func (s *Store) PutVariable(v *types.Variable) error {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return oops.New(oops.InvalidConfig, "variable name must not be empty")
	}
	return s.putJSON(bucketVariables, v.Name, v)
}

// GetVariable loads a variable by name.
func (s *Store) GetVariable(name string) (*types.Variable, error) {
	var v types.Variable
	if err := s.getJSON(bucketVariables, name, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteVariable removes a variable.
func (s *Store) DeleteVariable(name string) error {
	return s.deleteKey(bucketVariables, name)
}

// ListVariables returns all variables sorted by name.
func (s *Store) ListVariables() ([]*types.Variable, error) {
	var out []*types.Variable
	err := forEach(s, bucketVariables, func(v types.Variable) bool {
		vc := v
		out = append(out, &vc)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// VariableMap returns name → value for interpolation.
func (s *Store) VariableMap() (map[string]string, error) {
	vars, err := s.ListVariables()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(vars))
	for _, v := range vars {
		m[v.Name] = v.Value
	}
	return m, nil
}
