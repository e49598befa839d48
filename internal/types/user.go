package types

import "time"

// UserCredential is the tagged union over identity sources.
type UserCredential struct {
	Type   string               `json:"type"` // "Local" | "Github" | "Google" | "Service"
	Params UserCredentialParams `json:"params"`
}

// UserCredentialParams carries the variant payload for UserCredential.
type UserCredentialParams struct {
	PasswordHash string `json:"password_hash,omitempty"` // Local
	ProviderID   string `json:"provider_id,omitempty"`   // Github | Google
	Avatar       string `json:"avatar,omitempty"`        // Github | Google
	Description  string `json:"description,omitempty"`   // Service
}

// User is an identity that can authenticate and hold permissions.
type User struct {
	ID             string         `json:"id"`
	Username       string         `json:"username"`
	Enabled        bool           `json:"enabled"`
	Admin          bool           `json:"admin"`
	SuperAdmin     bool           `json:"super_admin"`
	Credential     UserCredential `json:"credential"`
	RecentStack    string         `json:"recently_viewed_stack,omitempty"`
	LastUpdateView time.Time      `json:"last_update_view,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ApiKey authenticates programmatic callers on behalf of a user.
// Expires zero means the key never expires.
type ApiKey struct {
	Key        string    `json:"key"`
	SecretHash string    `json:"secret_hash"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	Expires    int64     `json:"expires"` // unix ms, 0 = never
}

// UserGroup carries permissions shared by its member users.
type UserGroup struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Users []string `json:"users,omitempty"` // member user ids
}

// PermissionLevel is totally ordered: None < Read < Execute < Write.
type PermissionLevel string

const (
	LevelNone    PermissionLevel = "None"
	LevelRead    PermissionLevel = "Read"
	LevelExecute PermissionLevel = "Execute"
	LevelWrite   PermissionLevel = "Write"
)

// Rank returns the ordering value of a level.
func (l PermissionLevel) Rank() int {
	switch l {
	case LevelWrite:
		return 3
	case LevelExecute:
		return 2
	case LevelRead:
		return 1
	default:
		return 0
	}
}

// Meets reports whether l satisfies the required level.
func (l PermissionLevel) Meets(required PermissionLevel) bool {
	return l.Rank() >= required.Rank()
}

// Max returns the higher of two levels.
func (l PermissionLevel) Max(other PermissionLevel) PermissionLevel {
	if other.Rank() > l.Rank() {
		return other
	}
	return l
}

// PermissionSubjectType distinguishes user-held from group-held permissions.
type PermissionSubjectType string

const (
	SubjectUser      PermissionSubjectType = "User"
	SubjectUserGroup PermissionSubjectType = "UserGroup"
)

// PermissionSubject is the holder side of a permission.
type PermissionSubject struct {
	Type PermissionSubjectType `json:"type"`
	ID   string                `json:"id"`
}

// Permission grants a subject a level on a resource target.
type Permission struct {
	Subject PermissionSubject `json:"subject"`
	Target  ResourceTarget    `json:"target"`
	Level   PermissionLevel   `json:"level"`
}
