package authz

import "time"

// Evaluator answers role and permission queries for a principal. All
// queries are pure: absence of evidence is always false or an empty set,
// never an error, so guards compose decisions with plain boolean logic.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator constructs an Evaluator over the given catalog.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// EffectivePermissions materializes the union of role defaults, custom
// permissions and temporary grants that have not expired at now. Expired
// grants are filtered on every call.
func (e *Evaluator) EffectivePermissions(p Principal, now time.Time) map[string]struct{} {
	perms := e.catalog.DefaultPermissions(p.Role)
	for _, custom := range p.CustomPermissions {
		if custom != "" {
			perms[custom] = struct{}{}
		}
	}
	for _, grant := range p.TemporaryGrants {
		if !grant.Active(now) {
			continue
		}
		for _, granted := range grant.Permissions {
			if granted != "" {
				perms[granted] = struct{}{}
			}
		}
	}
	return perms
}

// HasPermission reports whether the principal holds the permission at now.
func (e *Evaluator) HasPermission(p Principal, permission string, now time.Time) bool {
	if permission == "" {
		return false
	}
	_, ok := e.EffectivePermissions(p, now)[permission]
	return ok
}

// HasAnyPermission reports whether the principal holds at least one of the
// given permissions at now.
func (e *Evaluator) HasAnyPermission(p Principal, permissions []string, now time.Time) bool {
	if len(permissions) == 0 {
		return false
	}
	effective := e.EffectivePermissions(p, now)
	for _, required := range permissions {
		if _, ok := effective[required]; ok {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the principal holds every one of the
// given permissions at now.
func (e *Evaluator) HasAllPermissions(p Principal, permissions []string, now time.Time) bool {
	if len(permissions) == 0 {
		return false
	}
	effective := e.EffectivePermissions(p, now)
	for _, required := range permissions {
		if _, ok := effective[required]; !ok {
			return false
		}
	}
	return true
}

// HasRole reports an exact role match.
func (e *Evaluator) HasRole(p Principal, role Role) bool {
	return p.Role == role
}

// HasAnyRole reports access-list membership: the principal's role must be
// explicitly listed. An admin does not satisfy HasAnyRole([officer]); use
// MeetsMinimumRole for hierarchy gating.
func (e *Evaluator) HasAnyRole(p Principal, roles []Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// MeetsMinimumRole reports whether the principal's role ranks at or above
// the given role in the hierarchy.
func (e *Evaluator) MeetsMinimumRole(p Principal, role Role) bool {
	return e.catalog.IsAtLeast(p.Role, role)
}
