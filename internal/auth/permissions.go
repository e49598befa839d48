package auth

import (
	"github.com/convoy-ops/convoy/internal/types"
)

// PermissionStore is the subset of the store the permission gate reads.
type PermissionStore interface {
	PermissionsForSubject(subject types.PermissionSubject) ([]types.Permission, error)
	GroupsForUser(userID string) ([]*types.UserGroup, error)
}

// EffectiveLevel computes a user's level on a target as the monotone join
// of: admin override (Write), direct user grants, grants inherited from
// every group the user belongs to, and the user's base level on the
// target's resource type (a grant whose target id is empty).
func EffectiveLevel(ps PermissionStore, user *types.User, target types.ResourceTarget) (types.PermissionLevel, error) {
	if user.Admin || user.SuperAdmin {
		return types.LevelWrite, nil
	}

	level := types.LevelNone

	direct, err := ps.PermissionsForSubject(types.PermissionSubject{Type: types.SubjectUser, ID: user.ID})
	if err != nil {
		return types.LevelNone, err
	}
	level = level.Max(joinGrants(direct, target))

	groups, err := ps.GroupsForUser(user.ID)
	if err != nil {
		return types.LevelNone, err
	}
	for _, g := range groups {
		grants, err := ps.PermissionsForSubject(types.PermissionSubject{Type: types.SubjectUserGroup, ID: g.ID})
		if err != nil {
			return types.LevelNone, err
		}
		level = level.Max(joinGrants(grants, target))
	}

	return level, nil
}

// joinGrants folds matching grants into a single level. A grant matches the
// target exactly, or matches the whole type when its target id is empty.
func joinGrants(grants []types.Permission, target types.ResourceTarget) types.PermissionLevel {
	level := types.LevelNone
	for _, g := range grants {
		if g.Target.Type != target.Type {
			continue
		}
		if g.Target.ID == target.ID || g.Target.ID == "" {
			level = level.Max(g.Level)
		}
	}
	return level
}
