package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Role is one of the four assignable roles
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleEditor      Role = "editor"
	RoleContributor Role = "contributor"
	RoleReadOnly    Role = "read_only"
)

// ProjectWildcard is the reserved project scope granting a role on every
// project. Case-sensitive, exact match only.
const ProjectWildcard = "ALL"

// AllRoles lists every valid role
var AllRoles = []Role{RoleAdmin, RoleEditor, RoleContributor, RoleReadOnly}

// Valid reports whether the role is one of the four canonical values
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleContributor, RoleReadOnly:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole translates a wire-format role string into the canonical
// vocabulary. Older clients still send "read_write" for contributor and
// capitalized display names like "Read Only".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "editor":
		return RoleEditor, nil
	case "contributor", "read_write":
		return RoleContributor, nil
	case "read_only", "read only", "readonly":
		return RoleReadOnly, nil
	}
	return "", fmt.Errorf("unknown role %q (valid roles: admin, editor, contributor, read_only)", s)
}

// RoleNames renders a role list for error messages
func RoleNames(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// Capabilities is the set of permission flags a role grants. It is derived
// from the role, never stored.
type Capabilities struct {
	CanView           bool `json:"canView"`
	CanCreate         bool `json:"canCreate"`
	CanEdit           bool `json:"canEdit"`
	CanDelete         bool `json:"canDelete"`
	CanManageUsers    bool `json:"canManageUsers"`
	CanManageProjects bool `json:"canManageProjects"`
}

// Resolve maps a role to its capability set. Unknown or empty roles resolve
// to the all-false set; this function never fails.
//
// Note: CanEdit is item-agnostic. The ownership restriction on contributors
// (edit only items they created) is enforced by the resource handlers with an
// explicit created-by check, not here.
func Resolve(role Role) Capabilities {
	switch role {
	case RoleAdmin:
		return Capabilities{
			CanView:           true,
			CanCreate:         true,
			CanEdit:           true,
			CanDelete:         true,
			CanManageUsers:    true,
			CanManageProjects: true,
		}
	case RoleEditor:
		return Capabilities{
			CanView:           true,
			CanCreate:         true,
			CanEdit:           true,
			CanManageProjects: true,
		}
	case RoleContributor:
		return Capabilities{
			CanView:   true,
			CanCreate: true,
			CanEdit:   true,
		}
	case RoleReadOnly:
		return Capabilities{
			CanView: true,
		}
	default:
		return Capabilities{}
	}
}

// RoleAssignment is one user's grant on one project scope. At most one
// assignment exists per (user, project) pair.
type RoleAssignment struct {
	UserID    string    `json:"user_id"`
	Project   string    `json:"project"`
	Role      Role      `json:"role"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wildcard reports whether the assignment applies to all projects
func (a RoleAssignment) Wildcard() bool {
	return a.Project == ProjectWildcard
}

// AuthContext is the immutable result of a successful authentication: the
// verified identity plus the role and capabilities resolved for the target
// project.
type AuthContext struct {
	UserID       string       `json:"user_id"`
	Email        string       `json:"email"`
	Project      string       `json:"project,omitempty"`
	Role         Role         `json:"role,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// HasRole reports whether the resolved role is one of the given roles
func (c *AuthContext) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}
