package store

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// CreateUser inserts a user, enforcing username uniqueness.
func (s *Store) CreateUser(u *types.User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return oops.New(oops.InvalidConfig, "username must not be empty")
	}
	if _, err := s.GetUserByUsername(u.Username); err == nil {
		return oops.New(oops.AlreadyExists, "username %q already taken", u.Username)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return s.putJSON(bucketUsers, u.ID, u)
}

// GetUser loads a user by id.
func (s *Store) GetUser(id string) (*types.User, error) {
	var u types.User
	if err := s.getJSON(bucketUsers, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername scans for a user with the given username.
func (s *Store) GetUserByUsername(username string) (*types.User, error) {
	var found *types.User
	err := forEach(s, bucketUsers, func(u types.User) bool {
		if u.Username == username {
			uc := u
			found = &uc
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, oops.New(oops.NotFound, "no user named %q", username)
	}
	return found, nil
}

// PutUser overwrites a user record.
func (s *Store) PutUser(u *types.User) error {
	return s.putJSON(bucketUsers, u.ID, u)
}

// ListUsers returns all users sorted by username.
func (s *Store) ListUsers() ([]*types.User, error) {
	var out []*types.User
	err := forEach(s, bucketUsers, func(u types.User) bool {
		uc := u
		out = append(out, &uc)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// DeleteUser removes a user and their api keys and permissions.
func (s *Store) DeleteUser(id string) error {
	keys, err := s.ListAPIKeysForUser(id)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.deleteKey(bucketAPIKeys, k.Key); err != nil {
			return err
		}
	}
	if err := s.DeletePermissionsForSubject(types.PermissionSubject{Type: types.SubjectUser, ID: id}); err != nil {
		return err
	}
	return s.deleteKey(bucketUsers, id)
}

// CreateAPIKey stores an api key record keyed by its public key string.
func (s *Store) CreateAPIKey(k *types.ApiKey) error {
	var existing types.ApiKey
	if err := s.getJSON(bucketAPIKeys, k.Key, &existing); err == nil {
		return oops.New(oops.AlreadyExists, "api key %q already exists", k.Key)
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	return s.putJSON(bucketAPIKeys, k.Key, k)
}

// GetAPIKey loads an api key by its public key string.
func (s *Store) GetAPIKey(key string) (*types.ApiKey, error) {
	var k types.ApiKey
	if err := s.getJSON(bucketAPIKeys, key, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// DeleteAPIKey removes an api key.
func (s *Store) DeleteAPIKey(key string) error {
	return s.deleteKey(bucketAPIKeys, key)
}

// ListAPIKeysForUser returns a user's api keys, newest first.
func (s *Store) ListAPIKeysForUser(userID string) ([]*types.ApiKey, error) {
	var out []*types.ApiKey
	err := forEach(s, bucketAPIKeys, func(k types.ApiKey) bool {
		if k.UserID == userID {
			kc := k
			out = append(out, &kc)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateUserGroup inserts a group, enforcing name uniqueness.
func (s *Store) CreateUserGroup(g *types.UserGroup) error {
	if g.Name == "" {
		return oops.New(oops.InvalidConfig, "group name must not be empty")
	}
	if _, err := s.GetUserGroupByName(g.Name); err == nil {
		return oops.New(oops.AlreadyExists, "user group %q already exists", g.Name)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return s.putJSON(bucketUserGroups, g.ID, g)
}

// GetUserGroup loads a group by id or name.
func (s *Store) GetUserGroup(idOrName string) (*types.UserGroup, error) {
	var g types.UserGroup
	err := s.getJSON(bucketUserGroups, idOrName, &g)
	if err == nil {
		return &g, nil
	}
	if !oops.Is(err, oops.NotFound) {
		return nil, err
	}
	return s.GetUserGroupByName(idOrName)
}

// GetUserGroupByName scans for a group with the given name.
func (s *Store) GetUserGroupByName(name string) (*types.UserGroup, error) {
	var found *types.UserGroup
	err := forEach(s, bucketUserGroups, func(g types.UserGroup) bool {
		if g.Name == name {
			gc := g
			found = &gc
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, oops.New(oops.NotFound, "no user group named %q", name)
	}
	return found, nil
}

// PutUserGroup overwrites a group record.
func (s *Store) PutUserGroup(g *types.UserGroup) error {
	return s.putJSON(bucketUserGroups, g.ID, g)
}

// DeleteUserGroup removes a group and its permissions.
func (s *Store) DeleteUserGroup(id string) error {
	if err := s.DeletePermissionsForSubject(types.PermissionSubject{Type: types.SubjectUserGroup, ID: id}); err != nil {
		return err
	}
	return s.deleteKey(bucketUserGroups, id)
}

// ListUserGroups returns all groups sorted by name.
func (s *Store) ListUserGroups() ([]*types.UserGroup, error) {
	var out []*types.UserGroup
	err := forEach(s, bucketUserGroups, func(g types.UserGroup) bool {
		gc := g
		out = append(out, &gc)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GroupsForUser returns every group the user belongs to.
func (s *Store) GroupsForUser(userID string) ([]*types.UserGroup, error) {
	groups, err := s.ListUserGroups()
	if err != nil {
		return nil, err
	}
	var out []*types.UserGroup
	for _, g := range groups {
		for _, uid := range g.Users {
			if uid == userID {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

// permissionKey builds the composite key for a permission record.
func permissionKey(p types.Permission) string {
	return string(p.Subject.Type) + "::" + p.Subject.ID + "::" + string(p.Target.Type) + "::" + p.Target.ID
}

// PutPermission upserts a permission grant. LevelNone deletes the grant.
func (s *Store) PutPermission(p types.Permission) error {
	if p.Level == types.LevelNone {
		return s.deleteKey(bucketPermissions, permissionKey(p))
	}
	return s.putJSON(bucketPermissions, permissionKey(p), p)
}

// PermissionsForSubject lists every grant held by a subject.
func (s *Store) PermissionsForSubject(subject types.PermissionSubject) ([]types.Permission, error) {
	var out []types.Permission
	err := forEach(s, bucketPermissions, func(p types.Permission) bool {
		if p.Subject == subject {
			out = append(out, p)
		}
		return true
	})
	return out, err
}

// PermissionsOnTarget lists every grant against a target.
func (s *Store) PermissionsOnTarget(target types.ResourceTarget) ([]types.Permission, error) {
	var out []types.Permission
	err := forEach(s, bucketPermissions, func(p types.Permission) bool {
		if p.Target == target {
			out = append(out, p)
		}
		return true
	})
	return out, err
}

// DeletePermissionsForSubject removes every grant held by a subject.
func (s *Store) DeletePermissionsForSubject(subject types.PermissionSubject) error {
	perms, err := s.PermissionsForSubject(subject)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if err := s.deleteKey(bucketPermissions, permissionKey(p)); err != nil {
			return err
		}
	}
	return nil
}

// DeletePermissionsOnTarget removes every grant against a target
// (called from resource pre-delete).
func (s *Store) DeletePermissionsOnTarget(target types.ResourceTarget) error {
	perms, err := s.PermissionsOnTarget(target)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if err := s.deleteKey(bucketPermissions, permissionKey(p)); err != nil {
			return err
		}
	}
	return nil
}
