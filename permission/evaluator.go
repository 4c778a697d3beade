package permission

import (
	"sort"
	"strings"
)

// Role is the read side of a role record owned by the persistence
// collaborator: a name plus the set of permission names it grants.
type Role interface {
	Name() string
	HasPermission(name string) bool
	Permissions() []string
}

// StaticRole is an in-memory [Role] backed by a fixed grant list.
// Persistence layers with richer role records can implement [Role]
// directly; StaticRole covers tests, fixtures, and small deployments.
type StaticRole struct {
	RoleName string
	Grants   []string
}

// Name returns the role's name.
func (r StaticRole) Name() string { return r.RoleName }

// HasPermission reports whether the role grants the named permission.
func (r StaticRole) HasPermission(name string) bool {
	for _, g := range r.Grants {
		if g == name {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the role's grant list.
func (r StaticRole) Permissions() []string {
	out := make([]string, len(r.Grants))
	copy(out, r.Grants)
	return out
}

// Evaluator resolves whether a principal's roles grant named
// permissions. A reserved superuser id bypasses role evaluation
// entirely; the bypass is isolated behind [Evaluator.IsSuperuser] so it
// can be reconfigured or retired without touching resolution logic.
type Evaluator struct {
	superuserID int64
}

// NewEvaluator creates an Evaluator. superuserID <= 0 disables the
// bypass.
func NewEvaluator(superuserID int64) *Evaluator {
	return &Evaluator{superuserID: superuserID}
}

// IsSuperuser reports whether the principal id is the reserved
// all-permissions id.
func (e *Evaluator) IsSuperuser(id int64) bool {
	return e.superuserID > 0 && id == e.superuserID
}

// Has reports whether any of the principal's roles grants the named
// permission, with the superuser short-circuit applied first.
func (e *Evaluator) Has(id int64, roles []Role, name string) bool {
	if e.IsSuperuser(id) {
		return true
	}

	for _, role := range roles {
		if role.HasPermission(name) {
			return true
		}
	}
	return false
}

// HasAny accepts a comma-separated permission list and reports whether
// ANY requested permission is granted by ANY role (logical OR across
// both dimensions). Blank entries are skipped.
func (e *Evaluator) HasAny(id int64, roles []Role, permissionsCsv string) bool {
	if e.IsSuperuser(id) {
		return true
	}

	for _, name := range strings.Split(permissionsCsv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for _, role := range roles {
			if role.HasPermission(name) {
				return true
			}
		}
	}
	return false
}

// PermissionSet returns the union of permission names across roles,
// deduplicated and sorted. Duplicate grants across roles collapse to a
// single entry, matching the OR semantics of [Evaluator.HasAny].
func (e *Evaluator) PermissionSet(roles []Role) []string {
	seen := make(map[string]struct{})
	for _, role := range roles {
		for _, name := range role.Permissions() {
			seen[name] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
