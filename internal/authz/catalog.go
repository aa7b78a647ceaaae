package authz

import (
	"fmt"
	"sort"
	"strings"
)

// Role is one of the portal role names, ordered by hierarchy level.
type Role string

// Portal roles from lowest to highest hierarchy level.
const (
	RoleCitizen    Role = "citizen"
	RoleOfficer    Role = "officer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ConfigurationError indicates an invalid catalog definition. It is fatal:
// the process must refuse to serve requests when NewCatalog returns one.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "authz: invalid catalog: " + e.Reason
}

// RoleDefinition declares a role, its hierarchy level and its default
// permission set.
type RoleDefinition struct {
	Role        Role
	Level       int
	Permissions []string
}

// Catalog answers static role/permission questions. It is immutable after
// construction and performs no I/O.
type Catalog struct {
	levels   map[Role]int
	defaults map[Role]map[string]struct{}
}

// DefaultDefinitions returns the built-in portal role catalog. Higher roles
// repeat every permission of the roles below them so the superset invariant
// holds by construction.
func DefaultDefinitions() []RoleDefinition {
	citizen := []string{
		"reports:create",
		"reports:view:own",
		"profile:edit:own",
	}
	officer := append(append([]string{}, citizen...),
		"reports:view:assigned",
		"reports:update:status",
		"reports:comment",
	)
	admin := append(append([]string{}, officer...),
		"reports:view:all",
		"reports:assign",
		"users:view",
		"users:manage",
	)
	superadmin := append(append([]string{}, admin...),
		"roles:manage",
		"sessions:terminate:any",
		"audit:view",
	)
	return []RoleDefinition{
		{Role: RoleCitizen, Level: 10, Permissions: citizen},
		{Role: RoleOfficer, Level: 20, Permissions: officer},
		{Role: RoleAdmin, Level: 30, Permissions: admin},
		{Role: RoleSuperAdmin, Level: 40, Permissions: superadmin},
	}
}

// NewCatalog validates the definitions and builds a Catalog. It returns a
// ConfigurationError when a role is duplicated, a level is reused, or a
// higher role is missing a permission held by a lower one.
func NewCatalog(defs []RoleDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, &ConfigurationError{Reason: "no roles defined"}
	}

	levels := make(map[Role]int, len(defs))
	defaults := make(map[Role]map[string]struct{}, len(defs))
	usedLevels := make(map[int]Role, len(defs))

	for _, def := range defs {
		name := Role(strings.TrimSpace(strings.ToLower(string(def.Role))))
		if name == "" {
			return nil, &ConfigurationError{Reason: "role with empty name"}
		}
		if _, ok := levels[name]; ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("role %q defined twice", name)}
		}
		if prev, ok := usedLevels[def.Level]; ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("roles %q and %q share level %d", prev, name, def.Level)}
		}
		perms := make(map[string]struct{}, len(def.Permissions))
		for _, p := range def.Permissions {
			p = strings.TrimSpace(p)
			if p == "" {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("role %q has an empty permission", name)}
			}
			perms[p] = struct{}{}
		}
		levels[name] = def.Level
		defaults[name] = perms
		usedLevels[def.Level] = name
	}

	// Superset invariant: every role's defaults must contain every
	// permission of every role below it.
	ordered := make([]Role, 0, len(levels))
	for role := range levels {
		ordered = append(ordered, role)
	}
	sort.Slice(ordered, func(i, j int) bool { return levels[ordered[i]] < levels[ordered[j]] })
	for i := 1; i < len(ordered); i++ {
		lower, higher := ordered[i-1], ordered[i]
		for p := range defaults[lower] {
			if _, ok := defaults[higher][p]; !ok {
				return nil, &ConfigurationError{
					Reason: fmt.Sprintf("role %q is missing permission %q held by lower role %q", higher, p, lower),
				}
			}
		}
	}

	return &Catalog{levels: levels, defaults: defaults}, nil
}

// DefaultPermissions returns a copy of the role's default permission set.
// Unknown roles yield an empty set.
func (c *Catalog) DefaultPermissions(role Role) map[string]struct{} {
	perms := make(map[string]struct{}, len(c.defaults[role]))
	for p := range c.defaults[role] {
		perms[p] = struct{}{}
	}
	return perms
}

// HierarchyLevel returns the role's level, or -1 for unknown roles so that
// unknown principals never outrank a defined role.
func (c *Catalog) HierarchyLevel(role Role) int {
	if level, ok := c.levels[role]; ok {
		return level
	}
	return -1
}

// IsAtLeast reports whether role ranks at or above other in the hierarchy.
func (c *Catalog) IsAtLeast(role, other Role) bool {
	level, ok := c.levels[role]
	if !ok {
		return false
	}
	otherLevel, ok := c.levels[other]
	if !ok {
		return false
	}
	return level >= otherLevel
}

// Roles lists all defined roles ordered by ascending hierarchy level.
func (c *Catalog) Roles() []Role {
	roles := make([]Role, 0, len(c.levels))
	for role := range c.levels {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return c.levels[roles[i]] < c.levels[roles[j]] })
	return roles
}
